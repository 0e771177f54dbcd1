package handler

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"shuttled/internal/domain"
)

type contextKey string

const roleKey contextKey = "role"

// RoleHeader is set by the upstream authenticated request layer; auth
// mechanics themselves are out of scope here.
const RoleHeader = "X-Shuttle-Role"

func GzipMiddleware(next http.Handler) http.Handler {
	wrapper, _ := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
	return wrapper(next)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RoleHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RoleMiddleware resolves the caller's role from the trusted header and
// stashes it in the request context. Missing or unknown roles default to
// rider, the least privileged.
func RoleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := domain.ParseRole(r.Header.Get(RoleHeader))
		ctx := context.WithValue(r.Context(), roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RoleFrom(r *http.Request) domain.Role {
	if role, ok := r.Context().Value(roleKey).(domain.Role); ok {
		return role
	}
	return domain.RoleRider
}

// requireRole guards an endpoint; admins pass every gate.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...domain.Role) bool {
	got := RoleFrom(r)
	if got == domain.RoleAdmin {
		return true
	}
	for _, role := range roles {
		if got == role {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient role")
	return false
}
