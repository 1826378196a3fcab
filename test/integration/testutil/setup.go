//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolerp/gamification/internal/app"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/events"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/infra"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/service"
)

const (
	TestJWTSecret     = "integration-test-secret-0123456789abcdef"
	TestServiceSecret = "integration-service-secret-0123456789"
	TestDBHost        = "localhost"
	TestDBPort        = 5435
	TestDBUser        = "schoolerp"
	TestDBPass        = "schoolerp"
	TestDBName        = "gamification_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server      *httptest.Server
	Pool        *pgxpool.Pool
	Store       *repository.PostgresStore
	Outbox      repository.OutboxRepository
	Service     *service.GamificationService
	JWTMgr      *auth.JWTManager
	ServiceAuth *auth.ServiceAuthManager
	t           *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "postgres")
}

func ensureTestDB() error {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		if err := infra.RunMigrations(testDSN(), "", quietLogger()); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 20
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router, the Postgres store and the transactional outbox.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := quietLogger()

	store := repository.NewPostgresStore(pool)
	outbox := repository.NewOutboxRepository()
	svc := app.NewService(store, catalog.Default(), events.NewOutboxPublisher(pool, outbox), logger)

	idem, err := guard.NewIdempotencyGuard(guard.DefaultIdempotencyCacheSize)
	if err != nil {
		t.Fatalf("idempotency guard: %v", err)
	}

	jwtMgr := auth.NewJWTManager(TestJWTSecret, time.Hour)
	serviceAuth := auth.NewServiceAuthManager(TestServiceSecret)

	router := app.NewRouter(app.RouterDeps{
		Service:     svc,
		JWTMgr:      jwtMgr,
		ServiceAuth: serviceAuth,
		Idempotency: idem,
		RateLimiter: guard.NewRateLimiter(1000, time.Minute),
		CORSOrigins: "*",
		Logger:      logger,
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:      server,
		Pool:        pool,
		Store:       store,
		Outbox:      outbox,
		Service:     svc,
		JWTMgr:      jwtMgr,
		ServiceAuth: serviceAuth,
		t:           t,
	}

	t.Cleanup(func() {
		server.Close()
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
