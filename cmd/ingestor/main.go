package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"data_pipeline/internal/api"
	"data_pipeline/internal/config"
	"data_pipeline/internal/ingest"
	"data_pipeline/internal/queue"
	"data_pipeline/internal/rawstore"
	"data_pipeline/internal/scheduler"
	"data_pipeline/internal/source"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize raw store
	raw, err := rawstore.New(ctx, rawstore.Config{
		Endpoint:  cfg.RawStore.Endpoint,
		AccessKey: cfg.RawStore.AccessKey,
		SecretKey: cfg.RawStore.SecretKey,
		Bucket:    cfg.RawStore.Bucket,
		UseSSL:    cfg.RawStore.UseSSL,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to raw store", "error", err)
		os.Exit(1)
	}

	// Initialize RabbitMQ publisher
	rabbitMQ, err := queue.NewRabbitMQ(queue.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize sources
	registry := source.NewRegistry(cfg.Sources)
	remote := source.NewRemote(source.RemoteConfig{
		Timeout:        cfg.Ingest.FetchTimeout,
		MaxAttempts:    cfg.Ingest.Retry.MaxAttempts,
		InitialBackoff: cfg.Ingest.Retry.InitialBackoff,
		MaxBackoff:     cfg.Ingest.Retry.MaxBackoff,
	}, cfg.Sources, logger)
	dispatcher := source.NewDispatcher(remote, source.NewSynthetic())

	orchestrator := ingest.NewOrchestrator(registry, dispatcher, raw, rabbitMQ, logger)

	// Manual trigger API
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: api.NewIngestServer(orchestrator, logger),
	}
	go func() {
		logger.Info("api listening", "port", cfg.API.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown error", "error", err)
		}
	}()

	sched := scheduler.NewScheduler(orchestrator, cfg.Ingest.Interval, logger)

	logger.Info("starting ingestor",
		"sources", len(cfg.Sources),
		"interval", cfg.Ingest.Interval,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
