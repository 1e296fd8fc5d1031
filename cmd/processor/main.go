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

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"data_pipeline/internal/api"
	"data_pipeline/internal/config"
	"data_pipeline/internal/consumer"
	"data_pipeline/internal/process"
	"data_pipeline/internal/queue"
	"data_pipeline/internal/rawstore"
	"data_pipeline/internal/storage/postgres"
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

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

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

	// Initialize RabbitMQ consumer
	rabbitMQ, err := queue.NewRabbitMQ(queue.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
		Prefetch:   cfg.Consumer.MaxBatch,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores and engine
	ledgerStore := postgres.NewLedgerStore(db)
	curatedStore := postgres.NewCuratedStore(db)

	normalizers := process.NewNormalizers()
	engine := process.NewEngine(raw, ledgerStore, curatedStore, normalizers, logger)

	cons, err := consumer.New(rabbitMQ, engine, consumer.Config{
		MaxBatch:        cfg.Consumer.MaxBatch,
		PollWait:        cfg.Consumer.PollWait,
		IdleDelay:       cfg.Consumer.IdleDelay,
		ErrorDelay:      cfg.Consumer.ErrorDelay,
		MaxConcurrency:  cfg.Consumer.MaxConcurrency,
		MaxReceiveCount: cfg.Consumer.MaxReceiveCount,
	}, logger)
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}

	// Manual reprocess API
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: api.NewProcessServer(engine, logger),
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

	logger.Info("starting processor",
		"max_batch", cfg.Consumer.MaxBatch,
		"max_concurrency", cfg.Consumer.MaxConcurrency,
	)

	if err := cons.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
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
