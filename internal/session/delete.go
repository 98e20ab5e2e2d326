package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"graphorm/internal/mapping"
	"graphorm/internal/query"
)

// Delete removes e and the link rows around it, nulls foreign keys that
// point at it, then cascades: cascaded owned references are deleted, and
// cascaded collections delete or only detach their elements according
// to the relation's policy.
func Delete[T any](ctx context.Context, s *Session, e *T) error {
	if e == nil {
		return errors.New("session: delete of nil entity")
	}
	def, err := s.res.Definition(reflect.TypeFor[T]())
	if err != nil {
		return err
	}
	d := &deleter{s: s, visited: map[any]bool{}}
	return d.delete(ctx, def, e)
}

type deleter struct {
	s       *Session
	visited map[any]bool
}

type pending struct {
	def *mapping.Definition
	e   any
}

func (d *deleter) delete(ctx context.Context, def *mapping.Definition, e any) error {
	if d.visited[e] {
		return nil
	}
	d.visited[e] = true
	if d.s.states[e] == Deleted {
		return fmt.Errorf("%w: %s", ErrDeleted, def.Name)
	}
	if def.ID.IsZero(e) {
		return fmt.Errorf("%w: %s", ErrTransient, def.Name)
	}
	route, err := d.s.writeRoute(def)
	if err != nil {
		return err
	}

	var cmds []query.Command
	for _, rel := range def.Relations {
		cmds = append(cmds, route.Gen.LinkDelete(rel, e))
	}
	for _, o := range def.Referrers {
		r, err := d.s.res.Route(o.Owner)
		if err != nil {
			return err
		}
		cmds = append(cmds, r.Gen.ClearReference(o, e))
	}
	for _, rel := range def.Containers {
		r, err := d.s.res.Route(rel.Owner)
		if err != nil {
			return err
		}
		cmds = append(cmds, r.Gen.Unlink(rel, e))
	}
	cmds = append(cmds, route.Gen.Delete(e))

	// a row already gone is not an error; the entity still ends Deleted
	if _, err := d.s.run(ctx, route, "delete", cmds...); err != nil {
		return err
	}

	next := d.cascades(def, e)
	d.s.detach(def, e)
	d.s.untrack(def, e)
	d.s.states[e] = Deleted
	d.s.audited(route, "delete", e)

	for _, p := range next {
		if d.visited[p.e] || d.s.states[p.e] == Deleted || p.def.ID.IsZero(p.e) {
			continue
		}
		if err := d.delete(ctx, p.def, p.e); err != nil {
			return err
		}
	}
	return nil
}

// cascades lists what deleting e takes with it.
func (d *deleter) cascades(def *mapping.Definition, e any) []pending {
	var out []pending
	for _, o := range def.Owned {
		if !o.Cascade {
			continue
		}
		if t := o.Get(e); t != nil {
			out = append(out, pending{def: o.Target, e: t})
		}
	}
	for _, rel := range def.Relations {
		if !rel.Cascade || rel.OnDelete != mapping.Remove {
			continue
		}
		for _, it := range rel.Items(e) {
			out = append(out, pending{def: rel.Element, e: it})
		}
	}
	return out
}

// detach drops e from tracked entities that reference it, mirroring the
// rows just updated.
func (s *Session) detach(def *mapping.Definition, e any) {
	for _, o := range def.Referrers {
		for k, owner := range s.identity {
			if k.def == o.Owner && o.Get(owner) == e {
				_ = o.Set(owner, nil)
			}
		}
	}
	for _, rel := range def.Containers {
		for k, owner := range s.identity {
			if k.def != rel.Owner {
				continue
			}
			items := rel.Items(owner)
			kept := items[:0]
			for _, it := range items {
				if it != e {
					kept = append(kept, it)
				}
			}
			if len(kept) != len(items) {
				_ = rel.SetItems(owner, kept)
			}
		}
	}
}
