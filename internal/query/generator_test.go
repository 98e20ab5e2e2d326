package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphorm/internal/batch"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
)

type author struct {
	ID   int64
	Name string
}

type post struct {
	ID     int64
	Title  string
	Note   *string
	Author *author
	Tags   []*label
}

type label struct {
	Code string
}

func setup(t *testing.T) (*Generator, *mapping.Definition) {
	t.Helper()
	r := mapping.NewRegistry()
	mapping.MustRegister(r, func(b *mapping.Builder[author]) {
		mapping.Id(b, "ID", func(a *author) *int64 { return &a.ID }).AutoIncrement()
		mapping.Reference(b, "Name", func(a *author) *string { return &a.Name })
	})
	mapping.MustRegister(r, func(b *mapping.Builder[label]) {
		mapping.Id(b, "Code", func(l *label) *string { return &l.Code })
	})
	def := mapping.MustRegister(r, func(b *mapping.Builder[post]) {
		mapping.Id(b, "ID", func(p *post) *int64 { return &p.ID }).AutoIncrement()
		mapping.Reference(b, "Title", func(p *post) *string { return &p.Title }).MaxLength(120)
		mapping.Reference(b, "Note", func(p *post) **string { return &p.Note })
		mapping.Map(b, "Author", func(p *post) **author { return &p.Author })
		mapping.ToMany(b, "Tags", func(p *post) *[]*label { return &p.Tags })
	})
	require.NoError(t, r.Validate())
	return New(def, dialect.Postgres{}), def
}

func TestInsertReturnsGeneratedKey(t *testing.T) {
	g, _ := setup(t)
	p := &post{Title: "hello", Author: &author{ID: 4}}

	cmd := g.Insert(p)
	assert.Equal(t, batch.Query, cmd.Kind)
	assert.Equal(t, `INSERT INTO "posts" ("title", "note", "author_id") VALUES ($1, $2, $3) RETURNING "id"`, cmd.SQL)
	assert.Equal(t, []any{"hello", nil, int64(4)}, cmd.Args)
}

func TestInsertWithTransientTargetWritesNull(t *testing.T) {
	g, _ := setup(t)
	cmd := g.Insert(&post{Title: "x", Author: &author{}})
	assert.Nil(t, cmd.Args[2])
}

func TestUpdateAndDelete(t *testing.T) {
	g, _ := setup(t)
	note := "n"
	p := &post{ID: 9, Title: "t", Note: &note}

	cmd, ok := g.Update(p)
	require.True(t, ok)
	assert.Equal(t, batch.Exec, cmd.Kind)
	assert.Equal(t, `UPDATE "posts" SET "title" = $1, "note" = $2, "author_id" = $3 WHERE "id" = $4`, cmd.SQL)
	assert.Equal(t, []any{"t", "n", nil, int64(9)}, cmd.Args)

	cmd = g.Delete(p)
	assert.Equal(t, `DELETE FROM "posts" WHERE "id" = $1`, cmd.SQL)
	assert.Equal(t, []any{int64(9)}, cmd.Args)
}

func TestSelects(t *testing.T) {
	g, _ := setup(t)
	const cols = `SELECT "id", "title", "note", "author_id" FROM "posts"`

	assert.Equal(t, cols+` ORDER BY "id"`, g.SelectAll().SQL)
	assert.Equal(t, cols+` ORDER BY "id" LIMIT 1`, g.First().SQL)

	cmd, err := g.SelectByID(int64(3))
	require.NoError(t, err)
	assert.Equal(t, cols+` WHERE "id" = $1`, cmd.SQL)

	_, err = g.SelectByID("3")
	assert.ErrorIs(t, err, mapping.ErrValueType)

	cmd, err = g.Page(25, 2)
	require.NoError(t, err)
	assert.Equal(t, cols+` ORDER BY "id" ASC LIMIT $1 OFFSET $2`, cmd.SQL)
	assert.Equal(t, []any{int64(25), int64(50)}, cmd.Args)

	_, err = g.Page(0, 1)
	assert.Error(t, err)

	assert.Equal(t, `SELECT COUNT(*) FROM "posts"`, g.Count().SQL)
}

func TestWhere(t *testing.T) {
	g, _ := setup(t)
	const cols = `SELECT "id", "title", "note", "author_id" FROM "posts"`

	cmd, err := g.Where(Where("Title", GreaterEq, "m"), 0)
	require.NoError(t, err)
	assert.Equal(t, cols+` WHERE "title" >= $1 ORDER BY "id"`, cmd.SQL)
	assert.Equal(t, []any{"m"}, cmd.Args)

	cmd, err = g.Where(Where("title", Eq, "it's; DROP TABLE posts"), 1)
	require.NoError(t, err)
	assert.Equal(t, cols+` WHERE "title" = $1 ORDER BY "id" LIMIT $2`, cmd.SQL)
	assert.Equal(t, "it's; DROP TABLE posts", cmd.Args[0])

	cmd, err = g.Where(Where("Note", Eq, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, cols+` WHERE "note" IS NULL ORDER BY "id"`, cmd.SQL)
	assert.Empty(t, cmd.Args)

	cmd, err = g.Where(Where("Note", NotEq, (*string)(nil)), 0)
	require.NoError(t, err)
	assert.Equal(t, cols+` WHERE "note" IS NOT NULL ORDER BY "id"`, cmd.SQL)

	_, err = g.Where(Where("Missing", Eq, 1), 0)
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = g.Where(Where("Title", Op("LIKE"), "x"), 0)
	assert.ErrorIs(t, err, ErrOperator)

	_, err = g.Where(Where("Title", Eq, 5), 0)
	assert.ErrorIs(t, err, mapping.ErrValueType)
}

func TestLinkStatements(t *testing.T) {
	g, def := setup(t)
	rel := def.Relations[0]
	p := &post{ID: 1}
	l := &label{Code: "go"}

	assert.Equal(t, `SELECT "label_id" FROM "posts_tags" WHERE "post_id" = $1 ORDER BY "position"`, g.LinkSelect(rel, p).SQL)

	cmd := g.LinkInsert(rel, p, l, 2)
	assert.Equal(t, `INSERT INTO "posts_tags" ("post_id", "label_id", "position") VALUES ($1, $2, $3)`, cmd.SQL)
	assert.Equal(t, []any{int64(1), "go", int64(2)}, cmd.Args)

	assert.Equal(t, `DELETE FROM "posts_tags" WHERE "post_id" = $1`, g.LinkDelete(rel, p).SQL)
	assert.Equal(t, `DELETE FROM "posts_tags" WHERE "label_id" = $1`, g.Unlink(rel, l).SQL)
}

func TestReferenceFixups(t *testing.T) {
	g, def := setup(t)
	o := def.Owned[0]
	p := &post{ID: 5, Author: &author{ID: 8}}

	cmd := g.SetReference(o, p)
	assert.Equal(t, `UPDATE "posts" SET "author_id" = $1 WHERE "id" = $2`, cmd.SQL)
	assert.Equal(t, []any{int64(8), int64(5)}, cmd.Args)

	cmd = g.ClearReference(o, p.Author)
	assert.Equal(t, `UPDATE "posts" SET "author_id" = NULL WHERE "author_id" = $1`, cmd.SQL)
	assert.Equal(t, []any{int64(8)}, cmd.Args)
}

func TestHydrate(t *testing.T) {
	g, _ := setup(t)
	p := &post{}
	owned, err := g.Hydrate([]any{int64(2), "title", nil, int64(7)}, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ID)
	assert.Equal(t, "title", p.Title)
	assert.Nil(t, p.Note)
	assert.Equal(t, []any{int64(7)}, owned)

	key, err := g.Key([]any{int64(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), key)

	_, err = g.Hydrate([]any{int64(2)}, p)
	assert.Error(t, err)
}

func TestSQLitePlaceholders(t *testing.T) {
	_, def := setup(t)
	g := New(def, dialect.SQLite{})
	cmd, err := g.Page(10, 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "title", "note", "author_id" FROM "posts" ORDER BY "id" ASC LIMIT ? OFFSET ?`, cmd.SQL)
}
