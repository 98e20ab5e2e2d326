// Package dialect holds the per-database differences the mapper needs:
// placeholders, identifier quoting, column types and the catalog query
// used to read the live schema.
package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"graphorm/internal/catalog"
)

const (
	PostgresName = "postgres"
	SQLiteName   = "sqlite"
)

type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	Quote(ident string) string
	// ColumnType is the declared type of a column holding kind.
	ColumnType(kind catalog.Kind, maxLength int) string
	// IdentityColumn is the full column definition of a generated key.
	IdentityColumn(name string, kind catalog.Kind) string
	// ForwardReferences reports whether CREATE TABLE may reference a
	// table that does not exist yet.
	ForwardReferences() bool
	// Introspect returns a query yielding (table_name, column_name) rows
	// for every user table.
	Introspect() string
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case PostgresName, "postgresql", "pgx":
		return Postgres{}, nil
	case SQLiteName, "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("dialect: unknown %q", name)
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(strings.ToLower(ident), `"`, `""`) + `"`
}

type Postgres struct{}

func (Postgres) Name() string { return PostgresName }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (Postgres) Quote(ident string) string { return quote(ident) }
func (Postgres) ForwardReferences() bool { return false }

func (Postgres) ColumnType(kind catalog.Kind, maxLength int) string {
	switch kind {
	case catalog.Bool:
		return "boolean"
	case catalog.Byte, catalog.Short:
		return "smallint"
	case catalog.Int:
		return "integer"
	case catalog.Long, catalog.Enum:
		return "bigint"
	case catalog.Float:
		return "real"
	case catalog.Double:
		return "double precision"
	case catalog.Decimal:
		return "numeric"
	case catalog.String, catalog.NullableString:
		if maxLength > 0 {
			return "varchar(" + strconv.Itoa(maxLength) + ")"
		}
		return "text"
	case catalog.Char:
		return "varchar(1)"
	case catalog.Guid:
		return "uuid"
	case catalog.Bytes:
		return "bytea"
	case catalog.DateTime:
		return "timestamp with time zone"
	}
	return "text"
}

func (p Postgres) IdentityColumn(name string, kind catalog.Kind) string {
	typ := "bigserial"
	switch kind {
	case catalog.Short:
		typ = "smallserial"
	case catalog.Int:
		typ = "serial"
	}
	return p.Quote(name) + " " + typ + " PRIMARY KEY"
}

func (Postgres) Introspect() string {
	return `SELECT table_name, column_name FROM information_schema.columns ` +
		`WHERE table_schema = current_schema() ORDER BY table_name, ordinal_position`
}

// SQLite stores time, decimals and guids as TEXT. Declared types such as
// DATETIME would make the driver reinterpret the stored values on read.
type SQLite struct{}

func (SQLite) Name() string { return SQLiteName }
func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) Quote(ident string) string { return quote(ident) }
func (SQLite) ForwardReferences() bool { return true }

func (SQLite) ColumnType(kind catalog.Kind, _ int) string {
	switch kind {
	case catalog.Bool, catalog.Byte, catalog.Short, catalog.Int, catalog.Long, catalog.Enum:
		return "INTEGER"
	case catalog.Float, catalog.Double:
		return "REAL"
	case catalog.Bytes:
		return "BLOB"
	}
	return "TEXT"
}

func (s SQLite) IdentityColumn(name string, _ catalog.Kind) string {
	return s.Quote(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (SQLite) Introspect() string {
	return `SELECT m.name AS table_name, p.name AS column_name ` +
		`FROM sqlite_master AS m JOIN pragma_table_info(m.name) AS p ` +
		`WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' ORDER BY m.name, p.cid`
}
