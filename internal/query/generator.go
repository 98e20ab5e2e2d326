// Package query turns a mapping definition into parameterized SQL and
// hydrates entities from the rows it selects.
package query

import (
	"fmt"
	"strings"

	"graphorm/internal/batch"
	"graphorm/internal/dialect"
	"graphorm/internal/mapping"
)

// Command is one statement ready for a batch.
type Command struct {
	Kind batch.Kind
	SQL  string
	Args []any
}

// Add queues c on b.
func (c Command) Add(b batch.Batch) batch.Batch { return b.Add(c.Kind, c.SQL, c.Args...) }

// Generator builds the statements of one definition for one dialect.
// Selected rows are laid out as: identity, scalar columns in
// registration order, owned foreign keys.
type Generator struct {
	def       *mapping.Definition
	d         dialect.Dialect
	table     string
	id        string
	selectSQL string
}

func New(def *mapping.Definition, d dialect.Dialect) *Generator {
	g := &Generator{def: def, d: d, table: d.Quote(def.Table), id: d.Quote(def.ID.Name)}
	cols := []string{g.id}
	for _, c := range def.Columns {
		cols = append(cols, d.Quote(c.Name))
	}
	for _, o := range def.Owned {
		cols = append(cols, d.Quote(o.Column))
	}
	g.selectSQL = "SELECT " + strings.Join(cols, ", ") + " FROM " + g.table
	return g
}

func (g *Generator) Definition() *mapping.Definition { return g.def }

type args struct {
	d    dialect.Dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

func (g *Generator) args() *args { return &args{d: g.d} }

// ownedValue is the foreign key parameter of o on e: the target's key,
// or NULL when there is no target or it has no key yet.
func ownedValue(o *mapping.Owned, e any) any {
	t := o.Get(e)
	if t == nil || o.Target.ID.IsZero(t) {
		return nil
	}
	return o.Target.ID.Value(t)
}

// Insert writes e. With an auto-increment identity the key column is
// omitted and read back through RETURNING.
func (g *Generator) Insert(e any) Command {
	a := g.args()
	var cols, vals []string
	if !g.def.ID.AutoIncrement {
		cols = append(cols, g.id)
		vals = append(vals, a.add(g.def.ID.Value(e)))
	}
	for _, c := range g.def.Columns {
		cols = append(cols, g.d.Quote(c.Name))
		vals = append(vals, a.add(c.Value(e)))
	}
	for _, o := range g.def.Owned {
		cols = append(cols, g.d.Quote(o.Column))
		vals = append(vals, a.add(ownedValue(o, e)))
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + g.table)
	if len(cols) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		sb.WriteString(" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")")
	}
	if g.def.ID.AutoIncrement {
		sb.WriteString(" RETURNING " + g.id)
		return Command{Kind: batch.Query, SQL: sb.String(), Args: a.vals}
	}
	return Command{Kind: batch.Exec, SQL: sb.String(), Args: a.vals}
}

// Update rewrites every non-key column of e. It reports false when the
// type has no column besides its identity.
func (g *Generator) Update(e any) (Command, bool) {
	a := g.args()
	var sets []string
	for _, c := range g.def.Columns {
		sets = append(sets, g.d.Quote(c.Name)+" = "+a.add(c.Value(e)))
	}
	for _, o := range g.def.Owned {
		sets = append(sets, g.d.Quote(o.Column)+" = "+a.add(ownedValue(o, e)))
	}
	if len(sets) == 0 {
		return Command{}, false
	}
	sql := "UPDATE " + g.table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + g.id + " = " + a.add(g.def.ID.Value(e))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}, true
}

// Exists selects the key of e, used when an update has nothing to set.
func (g *Generator) Exists(e any) Command {
	a := g.args()
	sql := "SELECT " + g.id + " FROM " + g.table + " WHERE " + g.id + " = " + a.add(g.def.ID.Value(e))
	return Command{Kind: batch.Query, SQL: sql, Args: a.vals}
}

func (g *Generator) Delete(e any) Command {
	a := g.args()
	sql := "DELETE FROM " + g.table + " WHERE " + g.id + " = " + a.add(g.def.ID.Value(e))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

func (g *Generator) SelectAll() Command {
	return Command{Kind: batch.Query, SQL: g.selectSQL + " ORDER BY " + g.id}
}

// First selects the row with the lowest key.
func (g *Generator) First() Command {
	return Command{Kind: batch.Query, SQL: g.selectSQL + " ORDER BY " + g.id + " LIMIT 1"}
}

// SelectByID selects the row whose key is the Go value key.
func (g *Generator) SelectByID(key any) (Command, error) {
	v, err := g.def.ID.Encode(key)
	if err != nil {
		return Command{}, err
	}
	a := g.args()
	sql := g.selectSQL + " WHERE " + g.id + " = " + a.add(v)
	return Command{Kind: batch.Query, SQL: sql, Args: a.vals}, nil
}

// Where selects rows matching p ordered by key; limit <= 0 means all.
func (g *Generator) Where(p Predicate, limit int) (Command, error) {
	a := g.args()
	cond, err := g.condition(p, a)
	if err != nil {
		return Command{}, err
	}
	sql := g.selectSQL + " WHERE " + cond + " ORDER BY " + g.id
	if limit > 0 {
		sql += " LIMIT " + a.add(int64(limit))
	}
	return Command{Kind: batch.Query, SQL: sql, Args: a.vals}, nil
}

// Page selects the zero-based page of pageSize rows ordered by key.
func (g *Generator) Page(pageSize, page int) (Command, error) {
	if pageSize <= 0 || page < 0 {
		return Command{}, fmt.Errorf("query: invalid page %d of size %d", page, pageSize)
	}
	a := g.args()
	sql := g.selectSQL + " ORDER BY " + g.id + " ASC LIMIT " + a.add(int64(pageSize)) +
		" OFFSET " + a.add(int64(page)*int64(pageSize))
	return Command{Kind: batch.Query, SQL: sql, Args: a.vals}, nil
}

func (g *Generator) Count() Command {
	return Command{Kind: batch.Query, SQL: "SELECT COUNT(*) FROM " + g.table}
}

// SetReference points the foreign key of o on e at its current target.
func (g *Generator) SetReference(o *mapping.Owned, e any) Command {
	a := g.args()
	sql := "UPDATE " + g.table + " SET " + g.d.Quote(o.Column) + " = " + a.add(ownedValue(o, e)) +
		" WHERE " + g.id + " = " + a.add(g.def.ID.Value(e))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

// ClearReference nulls every foreign key of o that points at target.
// o must be owned by this generator's definition.
func (g *Generator) ClearReference(o *mapping.Owned, target any) Command {
	a := g.args()
	col := g.d.Quote(o.Column)
	sql := "UPDATE " + g.table + " SET " + col + " = NULL WHERE " + col + " = " + a.add(o.Target.ID.Value(target))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

// LinkSelect selects the element keys of rel for owner in position order.
func (g *Generator) LinkSelect(rel *mapping.Relation, owner any) Command {
	a := g.args()
	sql := "SELECT " + g.d.Quote(rel.ElementColumn) + " FROM " + g.d.Quote(rel.Table) +
		" WHERE " + g.d.Quote(rel.OwnerColumn) + " = " + a.add(rel.Owner.ID.Value(owner)) +
		" ORDER BY " + g.d.Quote(rel.PositionColumn)
	return Command{Kind: batch.Query, SQL: sql, Args: a.vals}
}

func (g *Generator) LinkInsert(rel *mapping.Relation, owner, element any, position int) Command {
	a := g.args()
	sql := "INSERT INTO " + g.d.Quote(rel.Table) + " (" +
		g.d.Quote(rel.OwnerColumn) + ", " + g.d.Quote(rel.ElementColumn) + ", " + g.d.Quote(rel.PositionColumn) +
		") VALUES (" + a.add(rel.Owner.ID.Value(owner)) + ", " + a.add(rel.Element.ID.Value(element)) + ", " +
		a.add(int64(position)) + ")"
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

// LinkDelete removes every link row of rel owned by owner.
func (g *Generator) LinkDelete(rel *mapping.Relation, owner any) Command {
	a := g.args()
	sql := "DELETE FROM " + g.d.Quote(rel.Table) +
		" WHERE " + g.d.Quote(rel.OwnerColumn) + " = " + a.add(rel.Owner.ID.Value(owner))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

// Unlink removes every link row of rel that holds element.
func (g *Generator) Unlink(rel *mapping.Relation, element any) Command {
	a := g.args()
	sql := "DELETE FROM " + g.d.Quote(rel.Table) +
		" WHERE " + g.d.Quote(rel.ElementColumn) + " = " + a.add(rel.Element.ID.Value(element))
	return Command{Kind: batch.Exec, SQL: sql, Args: a.vals}
}

// Key decodes the identity of a selected row.
func (g *Generator) Key(row []any) (any, error) {
	if len(row) == 0 {
		return nil, fmt.Errorf("query: empty row for %s", g.def.Name)
	}
	return g.def.ID.Decode(row[0])
}

// Hydrate fills e from a selected row and returns the raw foreign key
// values of its owned references, one per Owned.
func (g *Generator) Hydrate(row []any, e any) ([]any, error) {
	want := 1 + len(g.def.Columns) + len(g.def.Owned)
	if len(row) != want {
		return nil, fmt.Errorf("query: %s row has %d values, want %d", g.def.Name, len(row), want)
	}
	if err := g.def.ID.Scan(e, row[0]); err != nil {
		return nil, err
	}
	for i, c := range g.def.Columns {
		if err := c.Scan(e, row[1+i]); err != nil {
			return nil, err
		}
	}
	return row[1+len(g.def.Columns):], nil
}
