package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"shuttled/internal/assignment"
	"shuttled/internal/cache"
	"shuttled/internal/config"
	"shuttled/internal/demand"
	"shuttled/internal/handler"
	"shuttled/internal/hub"
	"shuttled/internal/ingest"
	"shuttled/internal/metrics"
	"shuttled/internal/middleware"
	"shuttled/internal/registry"
	"shuttled/internal/store"
	"shuttled/internal/trip"
	"shuttled/pkg/topology"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting shuttled",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"mongo_enabled", cfg.MongoEnabled,
		"redis_enabled", cfg.RedisEnabled,
		"nats_enabled", cfg.NATSEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	if cfg.MongoEnabled {
		mongoStore, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			logger.Error("failed to connect to mongo", "error", err)
			os.Exit(1)
		}
		defer mongoStore.Close(context.Background())
		st = mongoStore
	} else {
		logger.Warn("mongo disabled, using in-memory store; data will not survive restarts")
		st = store.NewMemory()
	}

	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
	}

	topoClient := topology.New(cfg.TopologyBaseURL, cfg.TopologyAPIKey)
	topoCache := cache.NewTopologyCache(
		redisCache,
		topoClient,
		store.StopSequenceSource{Store: st},
		cfg.TopologyTTL,
		logger,
	)

	col := metrics.NewCollector()

	reg := registry.New(cfg.VehicleStaleAfter)
	resolver := topology.NewDirectionInference(topoCache, logger)
	trips := trip.NewSynthesizer(st, resolver, logger)
	aggregator := demand.NewAggregator(st, topoCache, logger)
	coordinator := assignment.NewCoordinator(st, logger)
	wsHub := hub.NewHub(col, logger)

	service := ingest.NewService(reg, trips, aggregator, wsHub, st, col, logger)

	var ready atomic.Bool
	warmer := cache.NewWarmer(st, reg, topoCache, logger)

	httpHandler := handler.NewHTTPHandler(reg, st)
	ingestHandler := handler.NewIngestHandler(service)
	assignmentHandler := handler.NewAssignmentHandler(coordinator, wsHub, col)
	demandHandler := handler.NewDemandHandler(aggregator)
	wsHandler := handler.NewWSHandler(wsHub, reg, col, logger)
	healthHandler := handler.NewHealthHandler(reg, ready.Load)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/telemetry", ingestHandler.PostTelemetry)
	mux.HandleFunc("POST /v1/occupancy", ingestHandler.PostOccupancy)
	mux.HandleFunc("POST /v1/trips/control", ingestHandler.PostTripControl)
	mux.HandleFunc("POST /v1/demand", ingestHandler.PostDemand)

	mux.HandleFunc("GET /v1/vehicles", httpHandler.ListVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}", httpHandler.GetVehicle)
	mux.HandleFunc("GET /v1/vehicles/{id}/trips", httpHandler.ListVehicleTrips)

	mux.HandleFunc("GET /v1/assignments", assignmentHandler.List)
	mux.HandleFunc("POST /v1/assignments", assignmentHandler.Create)
	mux.HandleFunc("PATCH /v1/assignments/{id}", assignmentHandler.Update)
	mux.HandleFunc("DELETE /v1/assignments/{id}", assignmentHandler.Delete)

	mux.HandleFunc("GET /v1/demand/{route}/{direction}", demandHandler.GetSummary)

	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	mux.Handle("GET /metrics", col.Handler())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)

	var root http.Handler = mux
	root = handler.RoleMiddleware(root)
	root = rateLimiter.Middleware(root)
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go trips.Run(ctx, cfg.SweepInterval, service.TripCompleted)
	go aggregator.Run(ctx, cfg.DemandGCInterval)

	go func() {
		warmer.WarmAll(ctx)
		ready.Store(true)
	}()

	var consumer *ingest.Consumer
	if cfg.NATSEnabled {
		consumer, err = ingest.NewConsumer(cfg.NATSURL, service, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Error("failed to start nats consumer", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
