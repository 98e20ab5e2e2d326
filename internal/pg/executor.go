// Package pg connects to Postgres and runs batches natively over pgx:
// every batch is queued as one pgx.Batch and sent in a single round trip
// inside a transaction.
package pg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"graphorm/internal/batch"
)

type Executor struct {
	mu      sync.RWMutex
	pools   map[string]*pgxpool.Pool
	log     hclog.Logger
	metrics *batch.Metrics
}

func NewExecutor(opts ...batch.Option) *Executor {
	o := batch.GetOpts(opts...)
	return &Executor{
		pools:   map[string]*pgxpool.Pool{},
		log:     o.Logger.Named("pgx"),
		metrics: o.Metrics,
	}
}

// Register serves database from pool.
func (e *Executor) Register(database string, pool *pgxpool.Pool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[database] = pool
}

func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, p := range e.pools {
		p.Close()
		delete(e.pools, name)
	}
}

func (e *Executor) NewBatch(database string) batch.Batch {
	return &pgBatch{e: e, database: database}
}

type pgBatch struct {
	batch.Commands
	e        *Executor
	database string
}

func (b *pgBatch) Add(kind batch.Kind, query string, args ...any) batch.Batch {
	b.Append(kind, query, args)
	return b
}

func (b *pgBatch) Execute(ctx context.Context) (_ []batch.RowSet, err error) {
	b.e.mu.RLock()
	pool, ok := b.e.pools[b.database]
	b.e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", batch.ErrUnknownDatabase, b.database)
	}
	if len(b.List) == 0 {
		return nil, nil
	}

	start := time.Now()
	ctx, span := batch.StartSpan(ctx, "postgresql", b.database, len(b.List))
	defer func() {
		b.e.metrics.Observe(b.database, b.List, start, err)
		batch.EndSpan(span, err)
	}()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", b.database, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	pb := &pgx.Batch{}
	for _, c := range b.List {
		b.e.log.Trace("queue", "database", b.database, "kind", c.Kind, "sql", c.SQL)
		pb.Queue(c.SQL, c.Args...)
	}
	br := tx.SendBatch(ctx, pb)

	out := make([]batch.RowSet, 0, len(b.List))
	for _, c := range b.List {
		rs, cerr := read(br, c)
		if cerr != nil {
			_ = br.Close()
			err = &batch.CommandError{Database: b.database, Index: c.Index, SQL: c.SQL, Err: cerr}
			return nil, err
		}
		out = append(out, rs)
	}
	if err = br.Close(); err != nil {
		return nil, fmt.Errorf("%s: batch: %w", b.database, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", b.database, err)
	}
	return out, nil
}

func read(br pgx.BatchResults, c batch.Command) (batch.RowSet, error) {
	if c.Kind == batch.Exec {
		tag, err := br.Exec()
		if err != nil {
			return batch.RowSet{}, err
		}
		return batch.RowSet{RowsAffected: tag.RowsAffected()}, nil
	}

	rows, err := br.Query()
	if err != nil {
		return batch.RowSet{}, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := batch.RowSet{Columns: make([]string, len(fields))}
	for i, f := range fields {
		rs.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return batch.RowSet{}, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return batch.RowSet{}, err
	}
	rs.RowsAffected = int64(len(rs.Rows))
	return rs, nil
}
