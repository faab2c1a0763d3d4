package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// DriverName is the instrumented pgx driver registered by nrpgx
const DriverName = "nrpgx"

// Config configures a postgres connection pool
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	DbName   string
	SSLMode  string

	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DSN returns the connection URL for the config
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if len(sslMode) == 0 {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DbName, sslMode,
	)
}

// Open opens a connection pool using the instrumented pgx driver, applies the
// pool limits from the config and verifies connectivity.
func Open(ctx context.Context, c *Config) (*sql.DB, error) {
	db, err := sql.Open(DriverName, c.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "error opening db")
	}

	if c.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(c.MaxOpenConnections)
	}
	if c.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(c.MaxIdleConnections)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error connecting to db")
	}

	return db, nil
}
