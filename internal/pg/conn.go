package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx

	"graphorm/internal/retry"
)

// Open returns a database/sql pool over the pgx stdlib driver, pinged
// with retries.
func Open(ctx context.Context, url string, log hclog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	err = retry.Do(ctx, retry.Default, log, "postgres ping", func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenPool returns a native pgx pool, pinged with retries.
func OpenPool(ctx context.Context, url string, log hclog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	err = retry.Do(ctx, retry.Default, log, "postgres ping", func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pctx)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
