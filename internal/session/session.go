// Package session is the unit of work over mapped entities: an identity
// map per session, cascading save and delete, and fetches that hydrate
// whole object graphs through the identity map.
//
// A Session is not safe for concurrent use. Keep one per goroutine and
// logical unit of work.
package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-hclog"

	"graphorm/internal/batch"
	"graphorm/internal/mapping"
	"graphorm/internal/query"
)

// Route is where a definition lives and what its database allows.
type Route struct {
	Gen      *query.Generator
	Database string
	Readable bool
	Writable bool
	Update   bool
	Audit    bool
}

// Resolver maps Go types to definitions and definitions to routes.
type Resolver interface {
	Definition(t reflect.Type) (*mapping.Definition, error)
	Route(def *mapping.Definition) (*Route, error)
}

type State int

const (
	Transient State = iota
	Persistent
	Deleted
)

func (s State) String() string {
	switch s {
	case Persistent:
		return "persistent"
	case Deleted:
		return "deleted"
	}
	return "transient"
}

type identityKey struct {
	def *mapping.Definition
	id  any
}

type Session struct {
	res   Resolver
	exec  batch.Executor
	log   hclog.Logger
	audit hclog.Logger

	identity map[identityKey]any
	states   map[any]State
}

func New(res Resolver, exec batch.Executor, log hclog.Logger) *Session {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Session{
		res:      res,
		exec:     exec,
		log:      log.Named("session"),
		audit:    log.Named("audit"),
		identity: map[identityKey]any{},
		states:   map[any]State{},
	}
}

// StateOf reports the lifecycle state of e in this session.
func (s *Session) StateOf(e any) State { return s.states[e] }

// Tracked is the number of entities in the identity map.
func (s *Session) Tracked() int { return len(s.identity) }

func (s *Session) readRoute(def *mapping.Definition) (*Route, error) {
	route, err := s.res.Route(def)
	if err != nil {
		return nil, err
	}
	if !route.Readable {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotReadable, route.Database, def.Name)
	}
	return route, nil
}

func (s *Session) writeRoute(def *mapping.Definition) (*Route, error) {
	route, err := s.res.Route(def)
	if err != nil {
		return nil, err
	}
	if !route.Writable {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotWritable, route.Database, def.Name)
	}
	return route, nil
}

// run executes cmds as one batch against the route's database.
func (s *Session) run(ctx context.Context, route *Route, op string, cmds ...query.Command) ([]batch.RowSet, error) {
	b := s.exec.NewBatch(route.Database)
	for _, c := range cmds {
		c.Add(b)
	}
	s.log.Trace("batch", "database", route.Database, "entity", route.Gen.Definition().Name, "op", op, "commands", b.Len())
	rs, err := b.Execute(ctx)
	if err != nil {
		return nil, &OpError{Entity: route.Gen.Definition().Name, Op: op, Err: err}
	}
	return rs, nil
}

func (s *Session) audited(route *Route, op string, e any) {
	if !route.Audit {
		return
	}
	def := route.Gen.Definition()
	s.audit.Info(op, "database", route.Database, "entity", def.Name, "id", def.ID.Raw(e))
}

func (s *Session) tracked(def *mapping.Definition, id any) (any, bool) {
	e, ok := s.identity[identityKey{def: def, id: id}]
	return e, ok
}

// track makes e the instance for its key, replacing any other one.
func (s *Session) track(def *mapping.Definition, e any) {
	k := identityKey{def: def, id: def.ID.Raw(e)}
	if old, ok := s.identity[k]; ok && old != e {
		delete(s.states, old)
	}
	s.identity[k] = e
	s.states[e] = Persistent
}

func (s *Session) untrack(def *mapping.Definition, e any) {
	k := identityKey{def: def, id: def.ID.Raw(e)}
	if s.identity[k] == e {
		delete(s.identity, k)
	}
	delete(s.states, e)
}
