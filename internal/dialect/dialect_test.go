package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphorm/internal/catalog"
)

func TestByName(t *testing.T) {
	d, err := ByName("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, PostgresName, d.Name())

	d, err = ByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLiteName, d.Name())

	_, err = ByName("oracle")
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	p := Postgres{}
	assert.Equal(t, "$3", p.Placeholder(3))
	assert.Equal(t, `"orders"`, p.Quote("Orders"))
	assert.Equal(t, "varchar(40)", p.ColumnType(catalog.String, 40))
	assert.Equal(t, "text", p.ColumnType(catalog.NullableString, 0))
	assert.Equal(t, "uuid", p.ColumnType(catalog.Guid, 0))
	assert.Equal(t, `"id" serial PRIMARY KEY`, p.IdentityColumn("id", catalog.Int))
	assert.Equal(t, `"id" bigserial PRIMARY KEY`, p.IdentityColumn("id", catalog.Long))
	assert.False(t, p.ForwardReferences())
}

func TestSQLite(t *testing.T) {
	s := SQLite{}
	assert.Equal(t, "?", s.Placeholder(7))
	assert.Equal(t, "TEXT", s.ColumnType(catalog.DateTime, 0))
	assert.Equal(t, "INTEGER", s.ColumnType(catalog.Bool, 0))
	assert.Equal(t, "BLOB", s.ColumnType(catalog.Bytes, 0))
	assert.Equal(t, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`, s.IdentityColumn("id", catalog.Short))
	assert.True(t, s.ForwardReferences())
}
