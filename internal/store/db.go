package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/threadlens/internal/config"
)

// Connect opens a pgx pool and checks it answers.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// poolConfig builds the pool settings. Sessions run in UTC so timestamps
// round-trip in the zone the monthly rollups are computed in, and
// lock_timeout caps the wait on a per-thread advisory lock.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	params := poolCfg.ConnConfig.RuntimeParams
	params["timezone"] = "UTC"
	params["application_name"] = "threadlens"
	if cfg.ThreadLockTimeout > 0 {
		params["lock_timeout"] = fmt.Sprintf("%dms", cfg.ThreadLockTimeout.Milliseconds())
	}
	return poolCfg, nil
}
