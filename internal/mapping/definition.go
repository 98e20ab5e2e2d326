package mapping

import (
	"fmt"
	"reflect"

	"graphorm/internal/catalog"
)

// Definition describes how one Go type is persisted. Entities are passed
// around as `any` holding a *T; the closures built at registration do the
// typed work.
type Definition struct {
	Type     reflect.Type
	Name     string
	Table    string
	Database string

	ID        *Column
	Columns   []*Column
	Owned     []*Owned
	Relations []*Relation

	// filled by Registry.Validate
	Referrers  []*Owned
	Containers []*Relation

	New func() any
}

func (d *Definition) String() string { return d.Name }

// Column is a scalar property bound to one database column.
type Column struct {
	Property      string
	Name          string
	Kind          catalog.Kind
	MaxLength     int
	AutoIncrement bool
	GoType        reflect.Type

	value    func(e any) any
	raw      func(e any) any
	scan     func(e, src any) error
	decode   func(src any) (any, error)
	encode   func(v any) (any, error)
	assign   func(e, v any) error
	isZero   func(e any) bool
	generate func() any
}

func newColumn[T, F any](property string, acc func(*T) *F, codec catalog.Codec[F]) *Column {
	return &Column{
		Property: property,
		Name:     ColumnName(property),
		Kind:     codec.Kind,
		GoType:   reflect.TypeFor[F](),
		value:    func(e any) any { return codec.Encode(*acc(e.(*T))) },
		raw:      func(e any) any { return *acc(e.(*T)) },
		scan: func(e, src any) error {
			v, err := codec.Decode(src)
			if err != nil {
				return err
			}
			*acc(e.(*T)) = v
			return nil
		},
		decode: func(src any) (any, error) {
			v, err := codec.Decode(src)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		encode: func(v any) (any, error) {
			f, ok := v.(F)
			if !ok {
				return nil, fmt.Errorf("%w: %s wants %s, got %T", ErrValueType, property, reflect.TypeFor[F](), v)
			}
			return codec.Encode(f), nil
		},
		assign: func(e, v any) error {
			f, ok := v.(F)
			if !ok {
				return fmt.Errorf("%w: %s wants %s, got %T", ErrValueType, property, reflect.TypeFor[F](), v)
			}
			*acc(e.(*T)) = f
			return nil
		},
	}
}

// Value returns the database parameter for the column of entity e.
func (c *Column) Value(e any) any { return c.value(e) }

// Raw returns the Go value of the column of entity e.
func (c *Column) Raw(e any) any { return c.raw(e) }

// Scan decodes src into the column of entity e.
func (c *Column) Scan(e, src any) error {
	if err := c.scan(e, src); err != nil {
		return fmt.Errorf("%s: %w", c.Property, err)
	}
	return nil
}

// Decode converts a database value to the column's Go value.
func (c *Column) Decode(src any) (any, error) { return c.decode(src) }

// Encode converts a Go value of the column's type to a database parameter.
func (c *Column) Encode(v any) (any, error) { return c.encode(v) }

// IsZero reports whether the identity of e is still unassigned. Only
// identity columns carry it.
func (c *Column) IsZero(e any) bool { return c.isZero != nil && c.isZero(e) }

// Generate assigns a fresh key to e when the identity kind has a
// generator. It reports false when the caller must supply the key.
func (c *Column) Generate(e any) bool {
	if c.generate == nil {
		return false
	}
	return c.assign(e, c.generate()) == nil
}

// Owned is a single nested entity stored as a foreign key column on the
// owner's table.
type Owned struct {
	Property   string
	Column     string
	Cascade    bool
	TargetType reflect.Type

	Owner  *Definition
	Target *Definition

	get func(e any) any
	set func(e, v any) error
}

// Get returns the referenced entity (*Target) or nil.
func (o *Owned) Get(e any) any { return o.get(e) }

// Set assigns the referenced entity; v may be nil.
func (o *Owned) Set(e, v any) error { return o.set(e, v) }

type RelationKind int

const (
	ToOneKind RelationKind = iota
	ToManyKind
)

func (k RelationKind) String() string {
	if k == ToOneKind {
		return "to_one"
	}
	return "to_many"
}

// DeletePolicy decides what a cascaded delete does to collection elements.
type DeletePolicy int

const (
	// Detach removes the link rows and keeps the elements.
	Detach DeletePolicy = iota
	// Remove deletes the elements as well.
	Remove
)

// Relation is a collection property persisted through a link table.
type Relation struct {
	Property       string
	Kind           RelationKind
	Table          string
	OwnerColumn    string
	ElementColumn  string
	PositionColumn string
	Cascade        bool
	OnDelete       DeletePolicy
	ElementType    reflect.Type

	Owner   *Definition
	Element *Definition

	items    func(e any) []any
	setItems func(e any, items []any) error
}

// Items returns the non-nil elements of the collection in order.
func (r *Relation) Items(e any) []any { return r.items(e) }

// SetItems replaces the collection of e.
func (r *Relation) SetItems(e any, items []any) error { return r.setItems(e, items) }
