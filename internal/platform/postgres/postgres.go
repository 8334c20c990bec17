// Package postgres opens pgx connection pools.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Settings configure the connection pool.
type Settings struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
}

// Connect builds a pool and verifies it with a ping.
func Connect(ctx context.Context, settings Settings) (*pgxpool.Pool, error) {
	dsn := strings.TrimSpace(settings.DSN)
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	if settings.MaxConns > 0 {
		cfg.MaxConns = settings.MaxConns
	}
	cfg.MinConns = 1
	if settings.MinConns > 0 && settings.MinConns <= cfg.MaxConns {
		cfg.MinConns = settings.MinConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	if settings.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = settings.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}
