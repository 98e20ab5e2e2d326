package batch

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SQLExecutor runs batches over database/sql pools, one pool per
// database name. Any registered driver works; the engine uses the pgx
// stdlib driver and modernc sqlite.
type SQLExecutor struct {
	mu      sync.RWMutex
	dbs     map[string]*sql.DB
	log     hclog.Logger
	metrics *Metrics
}

type Option func(*Options)

// Options are shared by every executor implementation.
type Options struct {
	Logger  hclog.Logger
	Metrics *Metrics
}

func WithLogger(l hclog.Logger) Option { return func(o *Options) { o.Logger = l } }

func WithMetrics(m *Metrics) Option { return func(o *Options) { o.Metrics = m } }

// GetOpts applies opts over the defaults.
func GetOpts(opts ...Option) Options {
	o := Options{Logger: hclog.NewNullLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	return o
}

func NewSQLExecutor(opts ...Option) *SQLExecutor {
	o := GetOpts(opts...)
	return &SQLExecutor{
		dbs:     map[string]*sql.DB{},
		log:     o.Logger.Named("batch"),
		metrics: o.Metrics,
	}
}

// Register serves database from db.
func (e *SQLExecutor) Register(database string, db *sql.DB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dbs[database] = db
}

// Close closes every registered pool.
func (e *SQLExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for name, db := range e.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
		delete(e.dbs, name)
	}
	return first
}

func (e *SQLExecutor) NewBatch(database string) Batch {
	return &sqlBatch{e: e, database: database}
}

type sqlBatch struct {
	Commands
	e        *SQLExecutor
	database string
}

func (b *sqlBatch) Add(kind Kind, query string, args ...any) Batch {
	b.Append(kind, query, args)
	return b
}

func (b *sqlBatch) Execute(ctx context.Context) (_ []RowSet, err error) {
	b.e.mu.RLock()
	db, ok := b.e.dbs[b.database]
	b.e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDatabase, b.database)
	}
	if len(b.List) == 0 {
		return nil, nil
	}

	start := time.Now()
	ctx, span := StartSpan(ctx, "sql", b.database, len(b.List))
	defer func() {
		b.e.metrics.Observe(b.database, b.List, start, err)
		EndSpan(span, err)
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", b.database, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	out := make([]RowSet, 0, len(b.List))
	for _, c := range b.List {
		b.e.log.Trace("command", "database", b.database, "kind", c.Kind, "sql", c.SQL)
		rs, cerr := runSQL(ctx, tx, c)
		if cerr != nil {
			err = &CommandError{Database: b.database, Index: c.Index, SQL: c.SQL, Err: cerr}
			return nil, err
		}
		out = append(out, rs)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", b.database, err)
	}
	return out, nil
}

func runSQL(ctx context.Context, tx *sql.Tx, c Command) (RowSet, error) {
	if c.Kind == Exec {
		res, err := tx.ExecContext(ctx, c.SQL, c.Args...)
		if err != nil {
			return RowSet{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return RowSet{}, err
		}
		return RowSet{RowsAffected: n}, nil
	}

	rows, err := tx.QueryContext(ctx, c.SQL, c.Args...)
	if err != nil {
		return RowSet{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return RowSet{}, err
	}
	rs := RowSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return RowSet{}, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return RowSet{}, err
	}
	rs.RowsAffected = int64(len(rs.Rows))
	return rs, nil
}
