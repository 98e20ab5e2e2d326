package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite" // driver: sqlite

	"graphorm/internal/batch"
	"graphorm/internal/config"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
	"graphorm/internal/pg"
	"graphorm/internal/retry"
)

// Open connects every database of cfg and builds the engine over them.
// Postgres runs natively over pgxpool unless the descriptor asks for the
// stdlib driver; SQLite always goes through database/sql.
func Open(ctx context.Context, cfg *config.Config, reg *mapping.Registry, opts ...Option) (*Engine, error) {
	var set options
	for _, fn := range opts {
		fn(&set)
	}
	if set.log == nil {
		opts = append(opts, WithLogger(cfg.Log.NewLogger("graphorm")))
	}
	o := getOpts(opts...)
	log := o.log

	metrics := batch.NewMetrics(o.registerer)
	sqlExec := batch.NewSQLExecutor(batch.WithLogger(log), batch.WithMetrics(metrics))
	pgExec := pg.NewExecutor(batch.WithLogger(log), batch.WithMetrics(metrics))
	closers := []func() error{sqlExec.Close, func() error { pgExec.Close(); return nil }}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	mux := batch.Mux{}
	for _, d := range cfg.Ordered() {
		dl, err := dialect.ByName(d.Dialect)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		log.Info("connecting", "database", d.Name, "dialect", dl.Name(), "driver", d.Driver)

		switch {
		case dl.Name() == dialect.SQLiteName:
			db, err := openSQLite(ctx, d.DSN, log)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("%s: %w", d.Name, err)
			}
			sqlExec.Register(d.Name, db)
			mux[d.Name] = sqlExec
		case d.Driver == "stdlib":
			db, err := pg.Open(ctx, d.DSN, log)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("%s: %w", d.Name, err)
			}
			sqlExec.Register(d.Name, db)
			mux[d.Name] = sqlExec
		default:
			pool, err := pg.OpenPool(ctx, d.DSN, log)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("%s: %w", d.Name, err)
			}
			pgExec.Register(d.Name, pool)
			mux[d.Name] = pgExec
		}
	}

	e, err := New(ctx, reg, cfg.Databases, mux, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	e.closers = closers
	return e, nil
}

// openSQLite uses a single connection: an in-memory database lives only
// as long as its connection, and writes serialize anyway.
func openSQLite(ctx context.Context, dsn string, log hclog.Logger) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	err = retry.Do(ctx, retry.Default, log, "sqlite ping", func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err == nil {
		_, err = db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return db, nil
}
