package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	Lending      LendingConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolve(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Lending.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRARY_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARY_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIBRARY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRARY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"LIBRARY_DB_DSN"`
	SQLitePath string `envconfig:"LIBRARY_DB_SQLITE_PATH" default:"library.db"`

	Parts PostgresParts

	MaxOpenConns    int           `envconfig:"LIBRARY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LIBRARY_DB_SLOW_QUERY" default:"200ms"`

	// UseSQLite is copied from the feature flags so db.New can pick a dialector
	// without seeing the whole config.
	UseSQLite bool `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	Address      string        `envconfig:"LIBRARY_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LIBRARY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LIBRARY_AUTO_MIGRATE" default:"false"`
	// RequireLoanIdempotencyKey refuses loan writes without an Idempotency-Key.
	// Off by default since the web client does not send one.
	RequireLoanIdempotencyKey bool `envconfig:"LIBRARY_REQUIRE_LOAN_IDEMPOTENCY_KEY" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LIBRARY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// RateLimitConfig throttles mutating API calls per client IP. Zero disables it.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"LIBRARY_RATE_LIMIT_WINDOW" default:"1m"`
	WriteLimit int           `envconfig:"LIBRARY_RATE_LIMIT_WRITES" default:"120"`
}

// LendingConfig holds the lending policy. The loan window is a fixed policy of
// 30 days; the variable exists so tests and staging can shorten it.
type LendingConfig struct {
	MaxLoanDays int `envconfig:"LIBRARY_LENDING_MAX_LOAN_DAYS" default:"30"`
	// TimeZone is the library's calendar. Date-only due dates fall due at the
	// end of that day here.
	TimeZone string `envconfig:"LIBRARY_LENDING_TIMEZONE" default:"UTC"`
}

// Location resolves TimeZone, defaulting to UTC.
func (l LendingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(l.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvLendingTimeZone, err)
	}
	return loc, nil
}

// MaxLoanDuration returns the longest allowed distance between borrow and due date.
func (l LendingConfig) MaxLoanDuration() time.Duration {
	days := l.MaxLoanDays
	if days <= 0 {
		days = DefaultMaxLoanDays
	}
	return time.Duration(days) * 24 * time.Hour
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"LIBRARY_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"LIBRARY_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LIBRARY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LIBRARY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LIBRARY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LIBRARY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LoansTopic        string        `envconfig:"LIBRARY_PUBSUB_LOANS_TOPIC" default:"library-loan-events"`
	LoansSubscription string        `envconfig:"LIBRARY_PUBSUB_LOANS_SUBSCRIPTION"`
	ProcessedTTL      time.Duration `envconfig:"LIBRARY_PUBSUB_PROCESSED_TTL" default:"168h"`
}
