package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/events"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/infra"
	"github.com/schoolerp/gamification/internal/ledger"
	"github.com/schoolerp/gamification/internal/progress"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/schedule"
	"github.com/schoolerp/gamification/internal/service"
)

// Backend is an opened store plus what it needs for events and shutdown.
type Backend struct {
	Store repository.Store
	// Pool is set for the Postgres backend only.
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend connects the store selected by STORE_BACKEND.
func OpenBackend(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreBackend {
	case infra.BackendPostgres:
		if cfg.RunMigrations {
			if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("store backend ready", "backend", cfg.StoreBackend)
		return &Backend{Store: repository.NewPostgresStore(pool), Pool: pool, close: pool.Close}, nil

	case infra.BackendMongo:
		client, db, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := repository.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		txns, err := store.DetectTransactions(ctx)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("detect mongo topology: %w", err)
		}
		logger.Info("store backend ready", "backend", cfg.StoreBackend, "database", cfg.MongoDatabase, "transactions", txns)
		return &Backend{Store: store, close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}}, nil

	case infra.BackendMemory:
		logger.Warn("using in-memory store; points are lost on restart")
		return &Backend{Store: repository.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewPublisher picks the event path for a backend: the outbox table for
// Postgres, direct broker writes behind a circuit breaker otherwise. With
// Kafka disabled events are dropped.
func NewPublisher(b *Backend, producer *infra.KafkaProducer, cfg *infra.Config) events.Publisher {
	if producer == nil || !producer.Enabled() {
		return events.Nop{}
	}
	if b.Pool != nil {
		return events.NewOutboxPublisher(b.Pool, repository.NewOutboxRepository())
	}
	return events.NewBrokerPublisher(producer, cfg.KafkaTopicPrefix).
		WithBreaker(guard.NewCircuitBreaker(5, 30*time.Second))
}

// LoadCatalog returns the default economy, or the TOML file at path merged
// over it.
func LoadCatalog(path string, logger *slog.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded", "path", path, "action_types", len(cat.ActionTypes()))
	return cat, nil
}

// NewService assembles the accrual engine over store.
func NewService(store repository.Store, cat *catalog.Catalog, publisher events.Publisher, logger *slog.Logger) *service.GamificationService {
	l := ledger.New(store, cat)
	evaluator := progress.NewEvaluator(store, l, cat, schedule.NewCalendarWindows(nil))
	return service.NewGamificationService(store, cat, l, evaluator, publisher, logger)
}

// RegisterJobs adds the background jobs shared by the API and the relay
// worker. relay is nil when there is no outbox to drain.
func RegisterJobs(sched *infra.Scheduler, cfg *infra.Config, svc *service.GamificationService, relay *events.Relay, limiter *guard.RateLimiter) error {
	if relay != nil {
		if err := sched.Every("outbox-relay", cfg.OutboxPollInterval, 30*time.Second, func(ctx context.Context) error {
			_, err := relay.RunOnce(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	if svc != nil {
		if err := sched.Every("challenge-sweep", cfg.ChallengeSweepInterval, 5*time.Minute, func(ctx context.Context) error {
			_, err := svc.SweepExpiredChallenges(ctx, cfg.ChallengeRetention)
			return err
		}); err != nil {
			return err
		}
	}
	if limiter != nil {
		if err := sched.Every("rate-limit-sweep", 5*time.Minute, 10*time.Second, func(context.Context) error {
			limiter.Sweep()
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
