package session

import (
	"context"
	"fmt"
	"reflect"

	"graphorm/internal/batch"
	"graphorm/internal/catalog"
	"graphorm/internal/mapping"
	"graphorm/internal/query"
)

const DefaultPageSize = 25

// Any returns the entity with the lowest key, or nil when the table is
// empty.
func Any[T any](ctx context.Context, s *Session) (*T, error) {
	return first[T](ctx, s, func(g *query.Generator) (query.Command, error) { return g.First(), nil })
}

// AnyWhere returns the first entity matching p, or nil.
func AnyWhere[T any](ctx context.Context, s *Session, p query.Predicate) (*T, error) {
	return first[T](ctx, s, func(g *query.Generator) (query.Command, error) { return g.Where(p, 1) })
}

// AnyByID returns the entity with key id, or nil. A tracked instance is
// returned without a query.
func AnyByID[T any, K comparable](ctx context.Context, s *Session, id K) (*T, error) {
	def, err := s.res.Definition(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if kt := reflect.TypeFor[K](); kt != def.ID.GoType {
		return nil, fmt.Errorf("%w: %s is keyed by %s, got %s", ErrKeyType, def.Name, def.ID.GoType, kt)
	}
	e, err := s.byKey(ctx, def, any(id))
	if err != nil || e == nil {
		return nil, err
	}
	return e.(*T), nil
}

// All returns every entity ordered by key.
func All[T any](ctx context.Context, s *Session) ([]*T, error) {
	return fetch[T](ctx, s, func(g *query.Generator) (query.Command, error) { return g.SelectAll(), nil })
}

// Where returns every entity matching p ordered by key.
func Where[T any](ctx context.Context, s *Session, p query.Predicate) ([]*T, error) {
	return fetch[T](ctx, s, func(g *query.Generator) (query.Command, error) { return g.Where(p, 0) })
}

// Paged returns the zero-based page of entities ordered by key. A
// pageSize of zero or less means DefaultPageSize.
func Paged[T any](ctx context.Context, s *Session, pageSize, page int) ([]*T, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return fetch[T](ctx, s, func(g *query.Generator) (query.Command, error) { return g.Page(pageSize, page) })
}

// PageCount is the number of pages of pageSize needed for every row.
func PageCount[T any](ctx context.Context, s *Session, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	n, err := Count[T](ctx, s)
	if err != nil {
		return 0, err
	}
	return int((n + int64(pageSize) - 1) / int64(pageSize)), nil
}

func Count[T any](ctx context.Context, s *Session) (int64, error) {
	def, err := s.res.Definition(reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	route, err := s.readRoute(def)
	if err != nil {
		return 0, err
	}
	rs, err := s.run(ctx, route, "select", route.Gen.Count())
	if err != nil {
		return 0, err
	}
	if len(rs) == 0 || len(rs[0].Rows) == 0 {
		return 0, nil
	}
	n, err := catalog.Int64(rs[0].Rows[0][0])
	if err != nil {
		return 0, &OpError{Entity: def.Name, Op: "select", Err: err}
	}
	return n, nil
}

func first[T any](ctx context.Context, s *Session, build func(*query.Generator) (query.Command, error)) (*T, error) {
	list, err := fetch[T](ctx, s, build)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func fetch[T any](ctx context.Context, s *Session, build func(*query.Generator) (query.Command, error)) ([]*T, error) {
	def, err := s.res.Definition(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	route, err := s.readRoute(def)
	if err != nil {
		return nil, err
	}
	cmd, err := build(route.Gen)
	if err != nil {
		return nil, err
	}
	rs, err := s.run(ctx, route, "select", cmd)
	if err != nil {
		return nil, err
	}
	rows := rowsOf(rs)
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		e, err := s.materialize(ctx, route, row)
		if err != nil {
			return nil, err
		}
		out = append(out, e.(*T))
	}
	return out, nil
}

func rowsOf(rs []batch.RowSet) [][]any {
	if len(rs) == 0 {
		return nil
	}
	return rs[0].Rows
}

// byKey returns the entity of def with key id, from the identity map or
// the database.
func (s *Session) byKey(ctx context.Context, def *mapping.Definition, id any) (any, error) {
	if e, ok := s.tracked(def, id); ok {
		return e, nil
	}
	route, err := s.readRoute(def)
	if err != nil {
		return nil, err
	}
	cmd, err := route.Gen.SelectByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyType, err)
	}
	rs, err := s.run(ctx, route, "select", cmd)
	if err != nil {
		return nil, err
	}
	rows := rowsOf(rs)
	if len(rows) == 0 {
		return nil, nil
	}
	return s.materialize(ctx, route, rows[0])
}

// materialize turns a selected row into the session's instance for its
// key. A new instance is tracked before its references load, so
// back-references resolve to it.
func (s *Session) materialize(ctx context.Context, route *Route, row []any) (any, error) {
	g := route.Gen
	def := g.Definition()
	key, err := g.Key(row)
	if err != nil {
		return nil, &OpError{Entity: def.Name, Op: "select", Err: err}
	}
	if e, ok := s.tracked(def, key); ok {
		return e, nil
	}

	e := def.New()
	fks, err := g.Hydrate(row, e)
	if err != nil {
		return nil, &OpError{Entity: def.Name, Op: "select", Err: err}
	}
	s.track(def, e)
	if err := s.loadGraph(ctx, route, e, fks); err != nil {
		s.untrack(def, e)
		return nil, err
	}
	return e, nil
}

func (s *Session) loadGraph(ctx context.Context, route *Route, e any, fks []any) error {
	def := route.Gen.Definition()
	for i, o := range def.Owned {
		if fks[i] == nil {
			continue
		}
		key, err := o.Target.ID.Decode(fks[i])
		if err != nil {
			return &OpError{Entity: def.Name, Op: "select", Err: fmt.Errorf("%s: %w", o.Property, err)}
		}
		t, err := s.byKey(ctx, o.Target, key)
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}
		if err := o.Set(e, t); err != nil {
			return err
		}
	}

	for _, rel := range def.Relations {
		rs, err := s.run(ctx, route, "select", route.Gen.LinkSelect(rel, e))
		if err != nil {
			return err
		}
		rows := rowsOf(rs)
		items := make([]any, 0, len(rows))
		for _, row := range rows {
			key, err := rel.Element.ID.Decode(row[0])
			if err != nil {
				return &OpError{Entity: def.Name, Op: "select", Err: fmt.Errorf("%s: %w", rel.Property, err)}
			}
			it, err := s.byKey(ctx, rel.Element, key)
			if err != nil {
				return err
			}
			if it != nil {
				items = append(items, it)
			}
		}
		if err := rel.SetItems(e, items); err != nil {
			return err
		}
	}
	return nil
}
