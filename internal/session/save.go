package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"graphorm/internal/mapping"
	"graphorm/internal/query"
)

// Save inserts or updates e and cascades to its marked references.
// Owned references are written before e, collection elements after it.
// Link rows and foreign keys that pointed at not yet inserted entities
// are written last, once every key in the graph is known.
//
// A failure part way leaves already written rows in place.
func Save[T any](ctx context.Context, s *Session, e *T) error {
	if e == nil {
		return errors.New("session: save of nil entity")
	}
	def, err := s.res.Definition(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	c := &cascade{s: s, visited: map[any]bool{}, written: map[any]bool{}}
	if err := c.save(ctx, def, e); err != nil {
		return err
	}
	return c.flush(ctx)
}

type fixup struct {
	route *Route
	owned *mapping.Owned
	e     any
}

type link struct {
	route *Route
	rel   *mapping.Relation
	owner any
}

// cascade is the state of one Save call.
type cascade struct {
	s       *Session
	visited map[any]bool
	written map[any]bool
	fixups  []fixup
	links   []link
}

func (c *cascade) save(ctx context.Context, def *mapping.Definition, e any) error {
	if c.s.states[e] == Deleted {
		return fmt.Errorf("%w: %s", ErrDeleted, def.Name)
	}
	if c.visited[e] {
		return nil
	}
	c.visited[e] = true

	route, err := c.s.writeRoute(def)
	if err != nil {
		return err
	}

	var deferred []*mapping.Owned
	for _, o := range def.Owned {
		t := o.Get(e)
		if t == nil {
			continue
		}
		if c.visited[t] {
			// in progress further up: its row may not exist yet
			if !c.written[t] {
				deferred = append(deferred, o)
				c.fixups = append(c.fixups, fixup{route: route, owned: o, e: e})
			}
			continue
		}
		if err := c.reference(ctx, o.Target, t, o.Cascade, def.Name+"."+o.Property); err != nil {
			return err
		}
	}

	if err := c.writeDeferring(ctx, route, e, deferred); err != nil {
		return err
	}
	c.written[e] = true

	for _, rel := range def.Relations {
		for _, it := range rel.Items(e) {
			if c.visited[it] {
				continue
			}
			if err := c.reference(ctx, rel.Element, it, rel.Cascade, def.Name+"."+rel.Property); err != nil {
				return err
			}
		}
		c.links = append(c.links, link{route: route, rel: rel, owner: e})
	}
	return nil
}

// reference persists t when the relation cascades and otherwise checks
// that it can be pointed at.
func (c *cascade) reference(ctx context.Context, def *mapping.Definition, t any, cascade bool, path string) error {
	if cascade {
		return c.save(ctx, def, t)
	}
	if c.s.states[t] == Deleted {
		return fmt.Errorf("%w: %s", ErrDeleted, path)
	}
	if def.ID.IsZero(t) {
		return fmt.Errorf("%w: %s", ErrTransientReference, path)
	}
	return nil
}

// writeDeferring writes e with the deferred references left NULL; flush
// sets them once their targets exist.
func (c *cascade) writeDeferring(ctx context.Context, route *Route, e any, deferred []*mapping.Owned) error {
	targets := make([]any, len(deferred))
	for i, o := range deferred {
		targets[i] = o.Get(e)
		_ = o.Set(e, nil)
	}
	err := c.write(ctx, route, e)
	for i, o := range deferred {
		_ = o.Set(e, targets[i])
	}
	return err
}

func (c *cascade) write(ctx context.Context, route *Route, e any) error {
	def := route.Gen.Definition()
	if def.ID.IsZero(e) {
		return c.insert(ctx, route, e)
	}
	if !route.Update {
		if c.s.states[e] == Persistent || def.ID.AutoIncrement {
			return fmt.Errorf("%w: %s (%s)", ErrUpdateNotAllowed, route.Database, def.Name)
		}
		// a caller-assigned key that was never seen here is a new row
		return c.insert(ctx, route, e)
	}
	return c.update(ctx, route, e)
}

func (c *cascade) insert(ctx context.Context, route *Route, e any) error {
	def := route.Gen.Definition()
	id := def.ID
	if !id.AutoIncrement && id.IsZero(e) && !id.Generate(e) {
		return fmt.Errorf("%w: %s.%s", ErrMissingKey, def.Name, id.Property)
	}
	rs, err := c.s.run(ctx, route, "insert", route.Gen.Insert(e))
	if err != nil {
		return err
	}
	if id.AutoIncrement {
		if len(rs) == 0 || len(rs[0].Rows) == 0 || len(rs[0].Rows[0]) == 0 {
			return &OpError{Entity: def.Name, Op: "insert", Err: errors.New("no generated key returned")}
		}
		if err := id.Scan(e, rs[0].Rows[0][0]); err != nil {
			return &OpError{Entity: def.Name, Op: "insert", Err: err}
		}
	}
	c.s.track(def, e)
	c.s.audited(route, "insert", e)
	return nil
}

func (c *cascade) update(ctx context.Context, route *Route, e any) error {
	def := route.Gen.Definition()
	cmd, ok := route.Gen.Update(e)
	if !ok {
		cmd = route.Gen.Exists(e)
	}
	rs, err := c.s.run(ctx, route, "update", cmd)
	if err != nil {
		return err
	}
	if len(rs) == 0 || rs[0].RowsAffected == 0 {
		if def.ID.AutoIncrement {
			return fmt.Errorf("%w: %s %v", ErrStaleEntity, def.Name, def.ID.Raw(e))
		}
		return c.insert(ctx, route, e)
	}
	c.s.track(def, e)
	c.s.audited(route, "update", e)
	return nil
}

// flush writes deferred foreign keys and replaces the link rows of every
// collection visited.
func (c *cascade) flush(ctx context.Context) error {
	for _, f := range c.fixups {
		if t := f.owned.Get(f.e); t == nil || f.owned.Target.ID.IsZero(t) {
			continue
		}
		if _, err := c.s.run(ctx, f.route, "update", f.route.Gen.SetReference(f.owned, f.e)); err != nil {
			return err
		}
	}

	type owner struct {
		rel *mapping.Relation
		e   any
	}
	done := map[owner]bool{}
	for _, l := range c.links {
		k := owner{rel: l.rel, e: l.owner}
		if done[k] {
			continue
		}
		done[k] = true

		gen := l.route.Gen
		cmds := []query.Command{gen.LinkDelete(l.rel, l.owner)}
		seen := map[any]bool{}
		pos := 0
		for _, it := range l.rel.Items(l.owner) {
			if l.rel.Element.ID.IsZero(it) {
				continue
			}
			key := l.rel.Element.ID.Raw(it)
			if seen[key] {
				continue
			}
			seen[key] = true
			if l.rel.Kind == mapping.ToOneKind {
				// an element has one owner; take it from the previous one
				cmds = append(cmds, gen.Unlink(l.rel, it))
			}
			cmds = append(cmds, gen.LinkInsert(l.rel, l.owner, it, pos))
			pos++
		}
		if _, err := c.s.run(ctx, l.route, "link", cmds...); err != nil {
			return err
		}
	}
	return nil
}
