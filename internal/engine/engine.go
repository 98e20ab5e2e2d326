// Package engine is the composition root: it binds mapped types to
// databases, reconciles every writable database in Order and hands out
// sessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"graphorm/internal/batch"
	"graphorm/internal/config"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
	"graphorm/internal/query"
	"graphorm/internal/schema"
	"graphorm/internal/session"
)

var (
	ErrNoDatabase      = errors.New("no writable database to bind mappings to")
	ErrUnknownDatabase = errors.New("mapping bound to an unknown database")
	ErrDuplicateName   = errors.New("duplicate database name")
	ErrMissingName     = errors.New("database without a name")
)

type Option func(*options)

type options struct {
	log        hclog.Logger
	registerer prometheus.Registerer
	reconcile  bool
}

// WithLogger sets the root logger; sessions, batches and reconciliation
// log on named children of it.
func WithLogger(l hclog.Logger) Option { return func(o *options) { o.log = l } }

// WithRegisterer enables batch metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithoutReconcile skips schema reconciliation at construction.
func WithoutReconcile() Option { return func(o *options) { o.reconcile = false } }

func getOpts(opts ...Option) options {
	o := options{reconcile: true}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = hclog.NewNullLogger()
	}
	return o
}

type database struct {
	config.Database
	dialect dialect.Dialect
}

// Engine is immutable after construction and safe to share.
type Engine struct {
	reg     *mapping.Registry
	exec    batch.Executor
	dbs     []*database
	byName  map[string]*database
	routes  map[*mapping.Definition]*session.Route
	manager *schema.Manager
	log     hclog.Logger
	closers []func() error
}

// New binds the mappings of reg to dbs and reconciles the schema of
// every writable database in ascending Order. Types without a database
// go to the writable database with the lowest Order.
func New(ctx context.Context, reg *mapping.Registry, dbs []config.Database, exec batch.Executor, opts ...Option) (*Engine, error) {
	o := getOpts(opts...)
	e := &Engine{
		reg:    reg,
		exec:   exec,
		byName: map[string]*database{},
		routes: map[*mapping.Definition]*session.Route{},
		log:    o.log,
	}
	e.manager = schema.NewManager(exec, o.log)

	var errs *multierror.Error
	for _, d := range dbs {
		if d.Name == "" {
			errs = multierror.Append(errs, ErrMissingName)
			continue
		}
		if _, dup := e.byName[d.Name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrDuplicateName, d.Name))
			continue
		}
		dl, err := dialect.ByName(d.Dialect)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", d.Name, err))
			continue
		}
		db := &database{Database: d, dialect: dl}
		e.dbs = append(e.dbs, db)
		e.byName[d.Name] = db
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	sort.SliceStable(e.dbs, func(i, j int) bool {
		if e.dbs[i].Order != e.dbs[j].Order {
			return e.dbs[i].Order < e.dbs[j].Order
		}
		return e.dbs[i].Name < e.dbs[j].Name
	})

	defs := reg.Definitions()
	if def := e.defaultDatabase(); def != nil {
		reg.Bind(def.Name)
	} else {
		for _, d := range defs {
			if d.Database == "" {
				return nil, fmt.Errorf("%w: %s", ErrNoDatabase, d.Name)
			}
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mappings: %w", err)
	}

	for _, def := range defs {
		db, ok := e.byName[def.Database]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s -> %q", ErrUnknownDatabase, def.Name, def.Database))
			continue
		}
		e.routes[def] = &session.Route{
			Gen:      query.New(def, db.dialect),
			Database: db.Name,
			Readable: db.Readable,
			Writable: db.Writable,
			Update:   db.Update,
			Audit:    db.Audit,
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	if o.reconcile {
		if _, err := e.Reconcile(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) defaultDatabase() *database {
	for _, db := range e.dbs {
		if db.Writable {
			return db
		}
	}
	return nil
}

// Reconcile brings every writable database up to the mapped schema, in
// ascending Order, and returns the statements applied per database. It
// stops at the first database that fails.
func (e *Engine) Reconcile(ctx context.Context) (map[string][]schema.Statement, error) {
	applied := map[string][]schema.Statement{}
	for _, db := range e.dbs {
		if !db.Writable {
			e.log.Debug("skipping read-only database", "database", db.Name)
			continue
		}
		var defs []*mapping.Definition
		for _, def := range e.reg.Definitions() {
			if def.Database == db.Name {
				defs = append(defs, def)
			}
		}
		stmts, err := e.manager.Reconcile(ctx, db.Name, db.dialect, defs)
		if err != nil {
			return applied, err
		}
		applied[db.Name] = stmts
	}
	return applied, nil
}

// NewSession starts a unit of work with an empty identity map.
func (e *Engine) NewSession() *session.Session {
	return session.New(e, e.exec, e.log)
}

// Databases returns the descriptors in Order.
func (e *Engine) Databases() []config.Database {
	out := make([]config.Database, len(e.dbs))
	for i, db := range e.dbs {
		out[i] = db.Database
	}
	return out
}

// Definition implements session.Resolver.
func (e *Engine) Definition(t reflect.Type) (*mapping.Definition, error) {
	def, ok := e.reg.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrUnmapped, t)
	}
	return def, nil
}

// Route implements session.Resolver.
func (e *Engine) Route(def *mapping.Definition) (*session.Route, error) {
	r, ok := e.routes[def]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrUnmapped, def.Name)
	}
	return r, nil
}

// Close releases the connections opened by Open.
func (e *Engine) Close() error {
	var errs *multierror.Error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	e.closers = nil
	return errs.ErrorOrNil()
}
