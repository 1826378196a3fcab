package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolerp/gamification/internal/app"
	"github.com/schoolerp/gamification/internal/events"
	"github.com/schoolerp/gamification/internal/infra"
	"github.com/schoolerp/gamification/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = infra.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.StoreBackend != infra.BackendPostgres {
		return fmt.Errorf("outbox relay needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}
	if !cfg.KafkaEnabled {
		return fmt.Errorf("outbox relay needs KAFKA_ENABLED=true")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	relay := events.NewRelay(pool, repository.NewOutboxRepository(), producer,
		cfg.KafkaTopicPrefix, cfg.OutboxBatchSize, logger)

	sched, err := infra.NewScheduler(ctx, logger)
	if err != nil {
		return err
	}
	if err := app.RegisterJobs(sched, cfg, nil, relay, nil); err != nil {
		return err
	}

	logger.Info("outbox-relay starting", "poll_interval", cfg.OutboxPollInterval, "batch_size", cfg.OutboxBatchSize)
	return sched.Run()
}
