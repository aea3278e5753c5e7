package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sqliteParams = "?_foreign_keys=on&_busy_timeout=5000"
)

// Client owns the pooled gorm connection shared by repositories.
type Client struct {
	conn *gorm.DB
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens postgres, or the sqlite file when cfg.UseSQLite is set, and
// applies the pool limits.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	configurePool(pool, cfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialector.Name()), "db.connected")
	}
	return &Client{conn: conn}, nil
}

// NewFromGorm wraps a connection opened elsewhere, mostly tests.
func NewFromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch {
	case cfg.UseSQLite && cfg.SQLitePath == "":
		return nil, errors.New("sqlite path is required")
	case cfg.UseSQLite:
		return sqlite.Open(cfg.SQLitePath + sqliteParams), nil
	case cfg.DSN == "":
		return nil, errors.New("database DSN is required")
	}
	return postgres.New(postgres.Config{DSN: utcSession(cfg.DSN), PreferSimpleProtocol: true}), nil
}

// utcSession pins the session time zone to UTC unless the DSN already sets one,
// so timestamptz arithmetic in queries and constraints is zone independent.
func utcSession(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if strings.Contains(strings.ToLower(dsn), "timezone=") {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		q := u.Query()
		q.Set("timezone", "UTC")
		u.RawQuery = q.Encode()
		return u.String()
	}
	return dsn + " TimeZone=UTC"
}

func configurePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.UseSQLite {
		// one writer at a time; more connections only produce SQLITE_BUSY
		pool.SetMaxOpenConns(1)
		return
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Dialect is DialectPostgres or DialectSQLite.
func (c *Client) Dialect() string {
	return c.conn.Dialector.Name()
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction that commits when fn returns nil. Errors and
// panics roll it back; panics are re-raised.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
