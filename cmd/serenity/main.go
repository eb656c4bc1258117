package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/metrics"
	"github.com/serenitylabs/serenity/internal/queue"
	"github.com/serenitylabs/serenity/internal/router"
	"github.com/serenitylabs/serenity/internal/services"
	"github.com/serenitylabs/serenity/internal/store"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	logger.Info("Serenity starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// Run store (memory, redis or etcd)
	logger.Info("Opening run store", "type", cfg.Store.Type)
	runStore, err := store.New(cfg.Store)
	if err != nil {
		logger.Fatal("Failed to open run store", "error", err)
	}
	defer func() { _ = runStore.Close() }()

	// Event queue (configurable backend, optional)
	logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
	queueClient, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect to Queue", "error", err)
	}
	var events *queue.Events
	if queueClient != nil {
		defer func() { _ = queueClient.Close() }()
		events = queue.NewEvents(queueClient, cfg.Queue.Subject)
		logger.Info("Run events enabled", "subject", events.Subject())
	} else {
		logger.Warn("Queue disabled - run events will not be published")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	// Run service
	runService := services.NewRunService(logger, runStore, events, recorder, cfg.EngineOptions(), cfg.Runs)

	// Log authentication status
	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled", "num_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	// Initialize router
	app := router.New(logger, runService, recorder, registry, *cfg)

	// Start server in goroutine
	go func() {
		addr := cfg.GetServerAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with 10 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Cancel in-flight runs and mark queued ones as interrupted
	runService.Stop()

	logger.Info("Server exited")
}
