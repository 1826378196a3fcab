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
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("action consumer failed", "error", err)
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
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = infra.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if !cfg.KafkaEnabled {
		return fmt.Errorf("action consumer needs KAFKA_ENABLED=true")
	}

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	cat, err := app.LoadCatalog(cfg.CatalogPath, logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	svc := app.NewService(backend.Store, cat, app.NewPublisher(backend, producer, cfg), logger)

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaActionsTopic, cfg.KafkaGroupID, cfg.KafkaEnabled, logger)
	defer consumer.Close()

	logger.Info("action-consumer starting", "topic", cfg.KafkaActionsTopic, "group_id", cfg.KafkaGroupID)
	if err := events.NewActionConsumer(consumer, svc, logger).Run(ctx); err != nil {
		return err
	}
	logger.Info("action-consumer stopped")
	return nil
}
