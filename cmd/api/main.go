package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schoolerp/gamification/internal/app"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/events"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/infra"
	"github.com/schoolerp/gamification/internal/repository"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = infra.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Storage
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	cat, err := app.LoadCatalog(cfg.CatalogPath, logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	// Events
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	publisher := app.NewPublisher(backend, producer, cfg)

	// Engine
	svc := app.NewService(backend.Store, cat, publisher, logger)

	// Guards
	idem, err := guard.NewIdempotencyGuard(cfg.IdempotencyCacheSize)
	if err != nil {
		return err
	}
	limiter := guard.NewRateLimiter(cfg.ActionRateLimit, cfg.ActionRateWindow)

	var serviceAuth *auth.ServiceAuthManager
	if cfg.ServiceSecret != "" {
		serviceAuth = auth.NewServiceAuthManager(cfg.ServiceSecret)
	}

	r := app.NewRouter(app.RouterDeps{
		Service:     svc,
		JWTMgr:      auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry),
		ServiceAuth: serviceAuth,
		Idempotency: idem,
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Background jobs; the relay runs in-process when the outbox is used
	// and Kafka is enabled.
	sched, err := infra.NewScheduler(gctx, logger)
	if err != nil {
		return err
	}
	var relay *events.Relay
	if backend.Pool != nil && producer.Enabled() {
		relay = events.NewRelay(backend.Pool, repository.NewOutboxRepository(), producer,
			cfg.KafkaTopicPrefix, cfg.OutboxBatchSize, logger)
	}
	if err := app.RegisterJobs(sched, cfg, svc, relay, limiter); err != nil {
		return err
	}
	g.Go(sched.Run)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
