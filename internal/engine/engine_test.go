package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphorm/internal/config"
	"graphorm/internal/mapping"
	"graphorm/internal/session"
)

type author struct {
	ID    int64
	Name  string
	Books []*book
}

type book struct {
	ID    int64
	Title string
}

type entry struct {
	ID   string
	Text string
}

func registry(t *testing.T) *mapping.Registry {
	t.Helper()
	r := mapping.NewRegistry()
	mapping.MustRegister(r, func(b *mapping.Builder[author]) {
		mapping.Id(b, "ID", func(a *author) *int64 { return &a.ID }).AutoIncrement()
		mapping.Reference(b, "Name", func(a *author) *string { return &a.Name })
		mapping.ToMany(b, "Books", func(a *author) *[]*book { return &a.Books }).Cascade()
	})
	mapping.MustRegister(r, func(b *mapping.Builder[book]) {
		mapping.Id(b, "ID", func(x *book) *int64 { return &x.ID }).AutoIncrement()
		mapping.Reference(b, "Title", func(x *book) *string { return &x.Title })
	})
	mapping.MustRegister(r, func(b *mapping.Builder[entry]) {
		b.Database("archive").TableName("journal")
		mapping.Id(b, "ID", func(x *entry) *string { return &x.ID })
		mapping.Reference(b, "Text", func(x *entry) *string { return &x.Text })
	})
	return r
}

func memory(name string, order int) config.Database {
	return config.Database{
		Name: name, Dialect: "sqlite", DSN: ":memory:", Order: order,
		Readable: true, Writable: true, Update: true,
	}
}

func open(t *testing.T, dbs ...config.Database) *Engine {
	t.Helper()
	cfg := &config.Config{Databases: dbs, Log: config.Log{Level: "info", Format: "text"}}
	e, err := Open(context.Background(), cfg, registry(t), WithLogger(hclog.NewNullLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenServesSessions(t *testing.T) {
	ctx := context.Background()
	e := open(t, memory("archive", 2), memory("main", 1))

	a := &author{Name: "Le Guin", Books: []*book{{Title: "Earthsea"}, {Title: "Lathe"}}}
	s := e.NewSession()
	require.NoError(t, session.Save(ctx, s, a))
	require.NoError(t, session.Save(ctx, s, &entry{Text: "saved"}))

	fresh := e.NewSession()
	got, err := session.AnyByID[author](ctx, fresh, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Books, 2)
	assert.Equal(t, "Lathe", got.Books[1].Title)

	n, err := session.Count[entry](ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBindingAndOrder(t *testing.T) {
	ro := memory("replica", 0)
	ro.Writable = false
	e := open(t, memory("archive", 2), memory("main", 1), ro)

	var names []string
	for _, d := range e.Databases() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"replica", "main", "archive"}, names)

	def, err := e.Definition(reflect.TypeFor[author]())
	require.NoError(t, err)
	route, err := e.Route(def)
	require.NoError(t, err)
	assert.Equal(t, "main", route.Database, "lowest Order writable database is the default")

	def, err = e.Definition(reflect.TypeFor[entry]())
	require.NoError(t, err)
	route, err = e.Route(def)
	require.NoError(t, err)
	assert.Equal(t, "archive", route.Database)
	assert.Equal(t, "journal", def.Table)

	type stray struct{ ID int }
	_, err = e.Definition(reflect.TypeFor[stray]())
	assert.ErrorIs(t, err, session.ErrUnmapped)
}

func TestReconcileIsIdempotent(t *testing.T) {
	e := open(t, memory("main", 1), memory("archive", 2))
	applied, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	for db, stmts := range applied {
		assert.Empty(t, stmts, db)
	}
}

func TestNewRejectsBadDescriptors(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, registry(t), []config.Database{memory("main", 1), memory("main", 2)}, nil, WithoutReconcile())
	assert.ErrorIs(t, err, ErrDuplicateName)

	bad := memory("main", 1)
	bad.Dialect = "oracle"
	_, err = New(ctx, registry(t), []config.Database{bad}, nil, WithoutReconcile())
	assert.ErrorContains(t, err, "oracle")

	_, err = New(ctx, registry(t), []config.Database{memory("main", 1)}, nil, WithoutReconcile())
	assert.ErrorIs(t, err, ErrUnknownDatabase, "entry is bound to archive")

	ro := memory("main", 1)
	ro.Writable = false
	_, err = New(ctx, registry(t), []config.Database{ro, memory("archive", 2)}, nil, WithoutReconcile())
	require.NoError(t, err, "archive is writable and becomes the default")

	ro2 := memory("archive", 1)
	ro2.Writable = false
	_, err = New(ctx, registry(t), []config.Database{ro2}, nil, WithoutReconcile())
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestNewRejectsInvalidMappings(t *testing.T) {
	type orphan struct {
		ID    int64
		Owner *author
	}
	r := mapping.NewRegistry()
	mapping.MustRegister(r, func(b *mapping.Builder[orphan]) {
		mapping.Id(b, "ID", func(o *orphan) *int64 { return &o.ID }).AutoIncrement()
		mapping.Map(b, "Owner", func(o *orphan) **author { return &o.Owner })
	})
	_, err := New(context.Background(), r, []config.Database{memory("main", 1)}, nil, WithoutReconcile())
	require.Error(t, err)
	var issue *mapping.Issue
	require.True(t, errors.As(err, &issue))
	assert.Equal(t, "target_unmapped", issue.Code)
}

func TestMetricsRegistered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	cfg := &config.Config{Databases: []config.Database{memory("main", 1), memory("archive", 2)}}
	e, err := Open(ctx, cfg, registry(t), WithLogger(hclog.NewNullLogger()), WithRegisterer(reg))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, session.Save(ctx, e.NewSession(), &book{Title: "Dune"}))
	n, err := testutil.GatherAndCount(reg, "graphorm_batch_commands_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
