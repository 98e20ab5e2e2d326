package mapping

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphorm/internal/catalog"
)

type customer struct {
	ID   int64
	Name string
}

type orderLine struct {
	ID  uuid.UUID
	Qty int32
}

type order struct {
	ID       int64
	Number   string
	Grade    rune
	Status   orderStatus
	Customer *customer
	Lines    []*orderLine
	Tags     []*tag
}

type orderStatus int16

type tag struct {
	Code string
}

type node struct {
	ID       int64
	Children []*node
}

func registerShop(t *testing.T) (*Registry, *Definition) {
	t.Helper()
	r := NewRegistry()
	_, err := Register(r, func(b *Builder[customer]) {
		Id(b, "ID", func(c *customer) *int64 { return &c.ID }).AutoIncrement()
		Reference(b, "Name", func(c *customer) *string { return &c.Name }).MaxLength(80)
	})
	require.NoError(t, err)
	_, err = Register(r, func(b *Builder[orderLine]) {
		Id(b, "ID", func(l *orderLine) *uuid.UUID { return &l.ID })
		Reference(b, "Qty", func(l *orderLine) *int32 { return &l.Qty })
	})
	require.NoError(t, err)
	_, err = Register(r, func(b *Builder[tag]) {
		Id(b, "Code", func(g *tag) *string { return &g.Code })
	})
	require.NoError(t, err)
	def, err := Register(r, func(b *Builder[order]) {
		Id(b, "ID", func(o *order) *int64 { return &o.ID }).AutoIncrement()
		Reference(b, "Number", func(o *order) *string { return &o.Number })
		Char(b, "Grade", func(o *order) *rune { return &o.Grade })
		Enum(b, "Status", func(o *order) *orderStatus { return &o.Status })
		Map(b, "Customer", func(o *order) **customer { return &o.Customer }).Cascade()
		ToOne(b, "Lines", func(o *order) *[]*orderLine { return &o.Lines }).Cascade()
		ToMany(b, "Tags", func(o *order) *[]*tag { return &o.Tags })
	})
	require.NoError(t, err)
	return r, def
}

func TestRegisterBuildsDefinition(t *testing.T) {
	r, def := registerShop(t)
	require.NoError(t, r.Validate())

	assert.Equal(t, "orders", def.Table)
	assert.Equal(t, "id", def.ID.Name)
	assert.True(t, def.ID.AutoIncrement)
	require.Len(t, def.Columns, 3)
	assert.Equal(t, catalog.Char, def.Columns[1].Kind)
	assert.Equal(t, catalog.Enum, def.Columns[2].Kind)

	require.Len(t, def.Owned, 1)
	assert.Equal(t, "customer_id", def.Owned[0].Column)
	assert.Equal(t, "customer", def.Owned[0].Target.Name)

	lines := def.Relations[0]
	assert.Equal(t, "orders_lines", lines.Table)
	assert.Equal(t, "order_id", lines.OwnerColumn)
	assert.Equal(t, "order_line_id", lines.ElementColumn)
	assert.Equal(t, Remove, lines.OnDelete)
	assert.Equal(t, Detach, def.Relations[1].OnDelete)

	cust, ok := r.ByName("customers")
	require.True(t, ok)
	assert.Equal(t, []*Owned{def.Owned[0]}, cust.Referrers)
}

func TestClosuresReadAndWrite(t *testing.T) {
	r, def := registerShop(t)
	require.NoError(t, r.Validate())

	o := def.New().(*order)
	require.NoError(t, def.ID.Scan(o, int64(7)))
	assert.Equal(t, int64(7), o.ID)
	assert.False(t, def.ID.IsZero(o))

	require.NoError(t, def.Columns[1].Scan(o, "Z"))
	assert.Equal(t, 'Z', o.Grade)
	assert.Equal(t, "Z", def.Columns[1].Value(o))

	c := &customer{ID: 3}
	require.NoError(t, def.Owned[0].Set(o, c))
	assert.Same(t, c, o.Customer)
	assert.Same(t, c, def.Owned[0].Get(o))
	require.NoError(t, def.Owned[0].Set(o, nil))
	assert.Nil(t, def.Owned[0].Get(o))

	l1, l2 := &orderLine{}, &orderLine{}
	require.NoError(t, def.Relations[0].SetItems(o, []any{l1, l2}))
	assert.Equal(t, []*orderLine{l1, l2}, o.Lines)
	o.Lines = append(o.Lines, nil)
	assert.Len(t, def.Relations[0].Items(o), 2)

	_, err := def.ID.Encode(7)
	assert.ErrorIs(t, err, ErrValueType)
}

func TestKeyGeneration(t *testing.T) {
	r, _ := registerShop(t)
	lines, _ := r.ByName("orderline")
	l := &orderLine{}
	assert.True(t, lines.ID.IsZero(l))
	assert.True(t, lines.ID.Generate(l))
	assert.NotEqual(t, uuid.Nil, l.ID)

	tags, _ := r.ByName("tag")
	g := &tag{}
	assert.True(t, tags.ID.Generate(g))
	assert.Len(t, g.Code, 26)

	cust, _ := r.ByName("customer")
	assert.False(t, cust.ID.Generate(&customer{}))
}

func TestRegisterErrors(t *testing.T) {
	r := NewRegistry()

	_, err := Register(r, func(b *Builder[customer]) {
		Id(b, "ID", func(c *customer) *int64 { return &c.ID })
		Id(b, "Name", func(c *customer) *string { return &c.Name })
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = Register(r, func(b *Builder[customer]) {
		Reference(b, "Name", func(c *customer) *string { return &c.Name })
	})
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = Register(r, func(b *Builder[tag]) {
		Id(b, "Code", func(g *tag) *string { return &g.Code }).AutoIncrement()
	})
	assert.ErrorIs(t, err, ErrAutoIncrement)

	type bad struct {
		ID   int64
		Tags map[string]string
	}
	_, err = Register(r, func(b *Builder[bad]) {
		Id(b, "ID", func(x *bad) *int64 { return &x.ID })
		Reference(b, "Tags", func(x *bad) *map[string]string { return &x.Tags })
	})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Register(r, func(b *Builder[customer]) {
		Id(b, "ID", func(c *customer) *int64 { return &c.ID })
		Reference(b, "Name", func(c *customer) *string { return &c.Name }).Column("id")
	})
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = Register[int](r, nil)
	assert.ErrorIs(t, err, ErrNotStruct)

	MustRegister(r, func(b *Builder[customer]) {
		Id(b, "ID", func(c *customer) *int64 { return &c.ID })
	})
	_, err = Register(r, func(b *Builder[customer]) {
		Id(b, "ID", func(c *customer) *int64 { return &c.ID })
	})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestValidateReportsAllIssues(t *testing.T) {
	r := NewRegistry()
	MustRegister(r, func(b *Builder[order]) {
		Id(b, "ID", func(o *order) *int64 { return &o.ID })
		Map(b, "Customer", func(o *order) **customer { return &o.Customer })
		ToMany(b, "Tags", func(o *order) *[]*tag { return &o.Tags }).TableName("shared")
		ToMany(b, "Lines", func(o *order) *[]*orderLine { return &o.Lines }).TableName("shared")
	})
	MustRegister(r, func(b *Builder[tag]) {
		Id(b, "Code", func(g *tag) *string { return &g.Code })
	}).Table = "orders"

	err := r.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	codes := map[string]int{}
	for _, e := range merr.Errors {
		var is *Issue
		require.True(t, errors.As(e, &is))
		codes[is.Code]++
	}
	assert.Equal(t, 2, codes[CodeTargetUnmapped])
	assert.Equal(t, 1, codes[CodeTableCollision])
	assert.Equal(t, 1, codes[CodeLinkTableCollision])
}

func TestSelfRelationColumns(t *testing.T) {
	r := NewRegistry()
	def := MustRegister(r, func(b *Builder[node]) {
		Id(b, "ID", func(n *node) *int64 { return &n.ID }).AutoIncrement()
		ToMany(b, "Children", func(n *node) *[]*node { return &n.Children })
	})
	require.NoError(t, r.Validate())
	rel := def.Relations[0]
	assert.Equal(t, "nodes_children", rel.Table)
	assert.Equal(t, "node_id", rel.OwnerColumn)
	assert.Equal(t, "related_node_id", rel.ElementColumn)
	assert.Equal(t, []*Relation{rel}, def.Containers)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "order_lines", TableName("OrderLine"))
	assert.Equal(t, "e_values", TableName("Values"))
	assert.Equal(t, "addresses", TableName("Address"))
	assert.Equal(t, "statuses", TableName("Status"))
	assert.Equal(t, "boxes", TableName("Box"))
	assert.Equal(t, "batches", TableName("Batch"))
	assert.Equal(t, "wishes", TableName("Wish"))
	assert.Equal(t, "customer_id", ColumnName("CustomerID"))
	assert.Equal(t, "owner_id", ForeignKeyName("Owner"))
	assert.Equal(t, "orders_tags", LinkTableName("orders", "Tags"))
}
