// Package schema reconciles the tables a set of mappings needs with what
// a live database already has. Reconciliation is additive: it creates
// missing tables and adds missing columns, and never drops or alters.
package schema

import (
	"sort"
	"strings"

	"graphorm/internal/catalog"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
)

// On-delete actions.
const (
	SetNull = "SET NULL"
	Cascade = "CASCADE"
)

type ForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

type Column struct {
	Name string
	Type string
	// SQL is the full column definition used by CREATE and ADD COLUMN.
	SQL string
}

type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Unique     []string
	Link       bool
}

// Schema is the desired layout of one database, tables in creation order.
type Schema struct {
	Tables []*Table
	// Deferred foreign keys close reference cycles once every table exists.
	Deferred []ForeignKey
}

func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func references(d dialect.Dialect, fk ForeignKey) string {
	return " REFERENCES " + d.Quote(fk.RefTable) + " (" + d.Quote(fk.RefColumn) + ") ON DELETE " + fk.OnDelete
}

func keyType(d dialect.Dialect, def *mapping.Definition) string {
	return d.ColumnType(def.ID.Kind, 0)
}

// Desired computes the schema of defs, which must all live in the same
// database. Entity tables are ordered so that referenced tables come
// first; link tables follow in name order.
func Desired(defs []*mapping.Definition, d dialect.Dialect) *Schema {
	sorted := append([]*mapping.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Table < sorted[j].Table })

	index := make(map[*mapping.Definition]int, len(sorted))
	for i, def := range sorted {
		index[def] = i
	}
	idx, cut := order(len(sorted), func(i int) []int {
		var deps []int
		for _, o := range sorted[i].Owned {
			if j, ok := index[o.Target]; ok {
				deps = append(deps, j)
			}
		}
		return deps
	})
	deferred := map[[2]*mapping.Definition]bool{}
	for _, e := range cut {
		deferred[[2]*mapping.Definition{sorted[e.from], sorted[e.to]}] = true
	}

	s := &Schema{}
	for _, i := range idx {
		def := sorted[i]
		t := &Table{Name: def.Table, PrimaryKey: []string{def.ID.Name}}
		if def.ID.AutoIncrement {
			t.Columns = append(t.Columns, Column{
				Name: def.ID.Name,
				Type: d.ColumnType(def.ID.Kind, 0),
				SQL:  d.IdentityColumn(def.ID.Name, def.ID.Kind),
			})
		} else {
			typ := d.ColumnType(def.ID.Kind, def.ID.MaxLength)
			t.Columns = append(t.Columns, Column{
				Name: def.ID.Name,
				Type: typ,
				SQL:  d.Quote(def.ID.Name) + " " + typ + " PRIMARY KEY",
			})
		}
		for _, c := range def.Columns {
			typ := d.ColumnType(c.Kind, c.MaxLength)
			t.Columns = append(t.Columns, Column{Name: c.Name, Type: typ, SQL: d.Quote(c.Name) + " " + typ})
		}
		for _, o := range def.Owned {
			if _, ok := index[o.Target]; !ok {
				continue
			}
			typ := keyType(d, o.Target)
			col := Column{Name: o.Column, Type: typ, SQL: d.Quote(o.Column) + " " + typ}
			fk := ForeignKey{Table: def.Table, Column: o.Column, RefTable: o.Target.Table, RefColumn: o.Target.ID.Name, OnDelete: SetNull}
			if deferred[[2]*mapping.Definition{def, o.Target}] && !d.ForwardReferences() {
				s.Deferred = append(s.Deferred, fk)
			} else {
				col.SQL += references(d, fk)
			}
			t.Columns = append(t.Columns, col)
		}
		s.Tables = append(s.Tables, t)
	}

	var links []*Table
	for _, def := range sorted {
		for _, rel := range def.Relations {
			if _, ok := index[rel.Element]; !ok {
				continue
			}
			ot, et := keyType(d, def), keyType(d, rel.Element)
			pt := d.ColumnType(catalog.Int, 0)
			t := &Table{
				Name: rel.Table,
				Link: true,
				Columns: []Column{
					{Name: rel.OwnerColumn, Type: ot, SQL: d.Quote(rel.OwnerColumn) + " " + ot + " NOT NULL" +
						references(d, ForeignKey{RefTable: def.Table, RefColumn: def.ID.Name, OnDelete: Cascade})},
					{Name: rel.ElementColumn, Type: et, SQL: d.Quote(rel.ElementColumn) + " " + et + " NOT NULL" +
						references(d, ForeignKey{RefTable: rel.Element.Table, RefColumn: rel.Element.ID.Name, OnDelete: Cascade})},
					{Name: rel.PositionColumn, Type: pt, SQL: d.Quote(rel.PositionColumn) + " " + pt + " NOT NULL DEFAULT 0"},
				},
				PrimaryKey: []string{rel.OwnerColumn, rel.ElementColumn},
			}
			if rel.Kind == mapping.ToOneKind {
				t.Unique = []string{rel.ElementColumn}
			}
			links = append(links, t)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	s.Tables = append(s.Tables, links...)
	return s
}

func quoteAll(d dialect.Dialect, names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = d.Quote(n)
	}
	return strings.Join(q, ", ")
}

// CreateSQL renders the CREATE TABLE statement of t.
func (t *Table) CreateSQL(d dialect.Dialect) string {
	parts := make([]string, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		parts = append(parts, c.SQL)
	}
	if t.Link {
		parts = append(parts, "PRIMARY KEY ("+quoteAll(d, t.PrimaryKey)+")")
	}
	if len(t.Unique) > 0 {
		parts = append(parts, "UNIQUE ("+quoteAll(d, t.Unique)+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + d.Quote(t.Name) + " (" + strings.Join(parts, ", ") + ")"
}
