package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/api"
	"github.com/thinhdnn/ai-test-management/internal/bootstrap"
	"github.com/thinhdnn/ai-test-management/internal/config"
)

func main() {
	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := bootstrap.InitLogger(string(cfg.Env), cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting test management API",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
		zap.String("project_root", cfg.Consolidation.ProjectRoot),
	)

	app, err := bootstrap.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	routerCfg := api.RouterConfig{
		Service:        app.Service,
		Logger:         logger,
		Metrics:        app.Metrics,
		Checks:         map[string]api.HealthChecker{},
		EnableCORS:     cfg.Security.CORSEnabled,
		AllowedOrigins: cfg.Security.CORSAllowedOrigins,
		UserIDHeader:   cfg.Security.UserIDHeader,
		RequestTimeout: cfg.Server.WriteTimeout,
		MaxRequestSize: cfg.Server.MaxRequestSize,
	}
	if app.DB != nil {
		routerCfg.Checks["database"] = app.DB
	}
	if app.Cache != nil {
		routerCfg.Checks["redis"] = app.Cache
		routerCfg.Events = app.Cache
		if cfg.RateLimits.Enabled {
			routerCfg.Limiter = app.Cache
			routerCfg.RateLimit = cfg.RateLimits.RequestsPerMin
		}
	}

	// Create router
	router := api.NewRouter(routerCfg)

	// Create HTTP server. WriteTimeout stays zero so the event stream is
	// not cut off; ordinary routes are bounded by the router timeout.
	addr := cfg.Server.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			server.Close()
		}

		logger.Info("Server stopped gracefully")
	}
}
