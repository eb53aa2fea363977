package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"media_tracker/internal/config"
	"media_tracker/internal/publisher"
	"media_tracker/internal/remote"
	"media_tracker/internal/storage/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file at the default path
// falls back to the built-in configuration with the in-memory store.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// openStore connects the remote document store selected by the config.
// The returned function releases its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (remote.Store, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, nothing will outlive this process")
		return remote.NewMemoryStore(logger), func() {}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
	}, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	store := remote.NewFeedStore(postgres.NewDocumentStore(db), rabbitMQ, logger)
	return store, func() {
		if err := rabbitMQ.Close(); err != nil {
			logger.Warn("failed to close rabbitmq", "error", err)
		}
		db.Close()
	}, nil
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
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
