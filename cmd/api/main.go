package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/postline/postline-backend/internal/api"
	"github.com/postline/postline-backend/internal/config"
	"github.com/postline/postline-backend/internal/engine"
	"github.com/postline/postline-backend/internal/jobs"
	"github.com/postline/postline-backend/internal/log"
	"github.com/postline/postline-backend/internal/metrics"
	"github.com/postline/postline-backend/internal/platform"
	platformmock "github.com/postline/postline-backend/internal/platform/mock"
	"github.com/postline/postline-backend/internal/remote"
	remotememory "github.com/postline/postline-backend/internal/remote/memory"
	"github.com/postline/postline-backend/internal/repository"
	"github.com/postline/postline-backend/internal/staleness"
	"github.com/postline/postline-backend/internal/store"
	"github.com/postline/postline-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, "postline-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Postline scheduling API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("postline-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Setup remote store: Postgres when a DSN is configured, in-memory
	// otherwise (dev runs and tests).
	var remoteStore remote.Store
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			logger.Fatalw("Failed to open database", "error", err)
		}
		defer db.Close()

		repo := repository.NewRepository(db, logger)
		if err := repo.Ping(ctx); err != nil {
			logger.Fatalw("Database ping failed", "error", err)
		}
		remoteStore = repo
		logger.Infow("Database connection established")
	} else {
		remoteStore = remotememory.NewStore()
		logger.Warnw("No Postgres DSN configured, using in-memory store")
	}

	// Setup Redis cache (falls back to an in-process map when Redis is down)
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		logger.Warnw("Cache ping failed, continuing in memory mode", "error", err)
	} else {
		logger.Infow("Cache connection established")
	}

	// Setup platform client for external scheduling
	var platformClient platform.Client
	if cfg.Platform.UseMock {
		platformClient = platformmock.NewClient()
		logger.Warnw("Using scripted platform client")
	} else {
		platformClient = platform.NewHTTPClient(cfg.Platform.BaseURL, cfg.Platform.Token, logger)
	}

	// Setup staleness poller
	poller := staleness.NewPoller(remoteStore, logger, metricsObj, staleness.PollerConfig{
		Interval:          cfg.Staleness.PollInterval,
		SuppressionWindow: cfg.Staleness.SuppressionWindow,
		PruneAge:          cfg.Staleness.PruneAge,
	})

	// Setup scheduling engine
	eng := engine.New(remoteStore, platformClient, cache, poller, logger, metricsObj, engine.Config{
		TaskPollInterval: cfg.Platform.TaskInterval,
		SnapshotTTL:      cfg.Cache.SnapshotTTL,
	})

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(eng, cfg.Security.CORSAllowedOrigins, logger, metricsObj)
	sseHandler := ws.NewSSEHandler(cache, cfg.Security.CORSAllowedOrigins, logger)

	// Create context for background services
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()

	// Start WebSocket hub and the staleness poll loop in background
	go wsHub.Run(hubCtx)
	go func() {
		if err := poller.Start(hubCtx); err != nil && err != context.Canceled {
			logger.Errorw("Staleness poller error", "error", err)
		}
	}()

	// Resync projects the poller flags as changed externally
	resyncWorker := jobs.NewResyncWorker(eng, poller, logger, jobs.ResyncWorkerConfig{
		Interval: cfg.Staleness.PollInterval,
	})
	go func() {
		if err := resyncWorker.Start(hubCtx); err != nil && err != context.Canceled {
			logger.Errorw("Resync worker error", "error", err)
		}
	}()

	// Setup API handler and middleware
	handler := api.NewHandler(eng, wsHub, sseHandler, cache, cfg, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	// Create router with middleware and routes - pass security config to Routes
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	// Log configured CORS origins for easier debugging in dev
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
