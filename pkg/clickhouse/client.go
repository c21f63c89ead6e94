// Package clickhouse opens a database/sql pool on the clickhouse-go driver.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// HTTP selects the HTTP interface instead of the native protocol.
	HTTP bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration

	// AsyncInsert lets the server buffer small inserts; WaitForAsync makes
	// an insert return only after its buffer was flushed.
	AsyncInsert      bool
	WaitForAsync     bool
	MaxExecutionTime time.Duration
}

// Client owns the pool. Stores borrow DB and must not close it.
type Client struct {
	db       *sql.DB
	database string
}

// Open builds the pool and pings it within cfg.DialTimeout.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}
	opts := options(cfg)
	db := ch.OpenDB(opts)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr[0], err)
	}
	return &Client{db: db, database: opts.Auth.Database}, nil
}

func options(cfg Config) *ch.Options {
	port := cfg.Port
	protocol := ch.Native
	if cfg.HTTP {
		protocol = ch.HTTP
		if port == 0 {
			port = 8123
		}
	}
	if port == 0 {
		port = 9000
	}
	o := &ch.Options{
		Protocol: protocol,
		Addr:     []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
		Auth: ch.Auth{
			Database: orDefault(cfg.Database, "default"),
			Username: orDefault(cfg.User, "default"),
			Password: cfg.Password,
		},
		DialTimeout:     durationOr(cfg.DialTimeout, 5*time.Second),
		ReadTimeout:     durationOr(cfg.ReadTimeout, 10*time.Second),
		MaxOpenConns:    intOr(cfg.MaxOpenConns, 10),
		MaxIdleConns:    intOr(cfg.MaxIdleConns, 5),
		ConnMaxLifetime: durationOr(cfg.ConnMaxLifetime, 5*time.Minute),
		Settings:        ch.Settings{},
	}
	if cfg.MaxExecutionTime > 0 {
		o.Settings["max_execution_time"] = int(cfg.MaxExecutionTime.Seconds())
	}
	if cfg.AsyncInsert {
		o.Settings["async_insert"] = 1
		if cfg.WaitForAsync {
			o.Settings["wait_for_async_insert"] = 1
		} else {
			o.Settings["wait_for_async_insert"] = 0
		}
	}
	return o
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

func (c *Client) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// Migrate executes idempotent DDL in order.
func (c *Client) Migrate(ctx context.Context, ddl ...string) error {
	for i, stmt := range ddl {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
