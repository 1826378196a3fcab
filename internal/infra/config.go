package infra

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// Postgres
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"schoolerp"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"schoolerp"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"schoolerp"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`

	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Mongo
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"schoolerp"`
	MongoMaxPool  uint64 `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`

	// Auth
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry     time.Duration `env:"JWT_EXPIRY" envDefault:"8h"`
	ServiceSecret string        `env:"SERVICE_TOKEN_SECRET"`

	// Server
	APIPort            int    `env:"API_PORT" envDefault:"3200"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Kafka
	KafkaBrokers      string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled      bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix  string `env:"KAFKA_TOPIC_PREFIX" envDefault:"schoolerp.gamification"`
	KafkaActionsTopic string `env:"KAFKA_ACTIONS_TOPIC" envDefault:"schoolerp.actions"`
	KafkaGroupID      string `env:"KAFKA_GROUP_ID" envDefault:"gamification-tracker"`

	// Economy
	CatalogPath string `env:"CATALOG_PATH"`

	// Background jobs
	OutboxPollInterval     time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize        int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	ChallengeSweepInterval time.Duration `env:"CHALLENGE_SWEEP_INTERVAL" envDefault:"1h"`
	ChallengeRetention     time.Duration `env:"CHALLENGE_RETENTION" envDefault:"720h"`

	// Guards
	ActionRateLimit      int           `env:"ACTION_RATE_LIMIT" envDefault:"60"`
	ActionRateWindow     time.Duration `env:"ACTION_RATE_WINDOW" envDefault:"1m"`
	IdempotencyCacheSize int           `env:"IDEMPOTENCY_CACHE_SIZE" envDefault:"10000"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads an optional .env file (ENV_FILE, default ".env") and parses
// environment variables into a Config struct. Variables already set in the
// environment win over the file.
func LoadConfig() (*Config, error) {
	file := os.Getenv("ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret checks (local dev only).
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, mongo, memory; got %q", c.StoreBackend)
	}
	if c.OutboxBatchSize < 1 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.ChallengeRetention < 0 {
		return fmt.Errorf("CHALLENGE_RETENTION must not be negative")
	}

	if c.AllowInsecureDefaults {
		return nil
	}
	if c.StoreBackend == BackendMemory {
		return fmt.Errorf("STORE_BACKEND=memory loses all points on restart; set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.ServiceSecret != "" && len(c.ServiceSecret) < 32 {
		return fmt.Errorf("SERVICE_TOKEN_SECRET is too short (%d chars); minimum 32 characters required", len(c.ServiceSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
