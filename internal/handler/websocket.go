package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"shuttled/internal/domain"
	"shuttled/internal/hub"
	"shuttled/internal/metrics"
	"shuttled/internal/registry"
)

// WSHandler owns subscriber connections. Each client gets a full snapshot
// on connect (and on every filter change) followed by incremental events;
// a reconnecting client resynchronizes the same way.
type WSHandler struct {
	hub      *hub.Hub
	registry *registry.Registry
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewWSHandler(h *hub.Hub, reg *registry.Registry, col *metrics.Collector, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, registry: reg, metrics: col, logger: logger}
}

type wsMessage struct {
	Type    string `json:"type"`
	RouteID string `json:"route_id,omitempty"`
}

type snapshotMessage struct {
	Type string            `json:"type"`
	Data []*domain.Vehicle `json:"data"`
}

type pongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	role := RoleFrom(r)
	client := hub.NewClient(uuid.New().String(), role, 256)
	if routeID := r.URL.Query().Get("route_id"); routeID != "" {
		client.SetRoute(routeID)
	}

	h.hub.Register(client)
	h.metrics.Subscribers.Inc()

	h.sendSnapshot(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		h.metrics.Subscribers.Dec()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "filter":
			client.SetRoute(msg.RouteID)
			h.sendSnapshot(client)

		case "snapshot":
			h.sendSnapshot(client)

		case "ping":
			h.sendPong(client)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendSnapshot delivers the current vehicle states matching the client's
// filter, sanitized for riders.
func (h *WSHandler) sendSnapshot(client *hub.Client) {
	all := h.registry.Snapshot()
	route := client.Route()

	vehicles := make([]*domain.Vehicle, 0, len(all))
	for _, v := range all {
		if route != "" && v.RouteID != route {
			continue
		}
		if client.Role == domain.RoleRider {
			v = v.Sanitized()
		}
		vehicles = append(vehicles, v)
	}

	data, err := json.Marshal(snapshotMessage{Type: "snapshot", Data: vehicles})
	if err != nil {
		return
	}

	if !client.TrySend(data) {
		h.logger.Debug("failed to send snapshot, buffer full", "client_id", client.ID)
	}
}

func (h *WSHandler) sendPong(client *hub.Client) {
	data, err := json.Marshal(pongMessage{Type: "pong"})
	if err != nil {
		return
	}

	client.TrySend(data)
}
