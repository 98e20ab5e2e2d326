package mapping

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"

	"graphorm/internal/catalog"
)

var (
	ErrDuplicateIdentity = errors.New("identity declared more than once")
	ErrNoIdentity        = errors.New("no identity declared")
	ErrUnsupportedType   = errors.New("unsupported property type")
	ErrAutoIncrement     = errors.New("auto-increment requires an integer identity")
	ErrDuplicateName     = errors.New("duplicate property or column")
	ErrNotStruct         = errors.New("mapped type must be a struct")
	ErrAlreadyRegistered = errors.New("type already registered")
	ErrValueType         = errors.New("value has wrong type")
)

// Builder collects the declarations of one mapped type.
type Builder[T any] struct {
	def  *Definition
	errs *multierror.Error
}

func (b *Builder[T]) fail(err error) {
	b.errs = multierror.Append(b.errs, fmt.Errorf("%s: %w", b.def.Name, err))
}

// TableName overrides the default table name.
func (b *Builder[T]) TableName(name string) *Builder[T] {
	b.def.Table = normalize(name)
	return b
}

// Database binds the type to a named database descriptor.
func (b *Builder[T]) Database(name string) *Builder[T] {
	b.def.Database = name
	return b
}

// Register declares T on the registry. Declaration errors are returned
// immediately; cross-type problems surface in Registry.Validate.
func Register[T any](r *Registry, declare func(b *Builder[T])) (*Definition, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s: %w", t, ErrNotStruct)
	}
	def := &Definition{
		Type:  t,
		Name:  t.Name(),
		Table: TableName(t.Name()),
		New:   func() any { return new(T) },
	}
	b := &Builder[T]{def: def}
	if declare != nil {
		declare(b)
	}
	if def.ID == nil {
		b.fail(ErrNoIdentity)
	}
	b.checkNames()
	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := r.add(def); err != nil {
		return nil, err
	}
	return def, nil
}

// MustRegister is Register for static mapping tables.
func MustRegister[T any](r *Registry, declare func(b *Builder[T])) *Definition {
	def, err := Register(r, declare)
	if err != nil {
		panic(err)
	}
	return def
}

func (b *Builder[T]) checkNames() {
	props := map[string]struct{}{}
	cols := map[string]struct{}{}
	seen := func(prop, col string) {
		if _, dup := props[prop]; dup {
			b.fail(fmt.Errorf("%w: property %s", ErrDuplicateName, prop))
		}
		props[prop] = struct{}{}
		if col == "" {
			return
		}
		if _, dup := cols[col]; dup {
			b.fail(fmt.Errorf("%w: column %s", ErrDuplicateName, col))
		}
		cols[col] = struct{}{}
	}
	if id := b.def.ID; id != nil {
		seen(id.Property, id.Name)
	}
	for _, c := range b.def.Columns {
		seen(c.Property, c.Name)
	}
	for _, o := range b.def.Owned {
		seen(o.Property, o.Column)
	}
	for _, r := range b.def.Relations {
		seen(r.Property, "")
	}
}

// IdentityBuilder refines an identity declaration.
type IdentityBuilder struct {
	c    *Column
	fail func(error)
}

// AutoIncrement lets the database generate the key on insert.
func (i *IdentityBuilder) AutoIncrement() *IdentityBuilder {
	if !i.c.Kind.IsAutoIncrement() {
		i.fail(fmt.Errorf("%w: %s is %s", ErrAutoIncrement, i.c.Property, i.c.Kind))
		return i
	}
	i.c.AutoIncrement = true
	i.c.generate = nil
	return i
}

// Column overrides the column name.
func (i *IdentityBuilder) Column(name string) *IdentityBuilder {
	i.c.Name = normalize(name)
	return i
}

// Id declares the primary key property. Guid keys default to random
// UUIDs and string keys to ULIDs when left empty on insert.
func Id[T any, K comparable](b *Builder[T], property string, acc func(*T) *K) *IdentityBuilder {
	codec, err := catalog.For[K]()
	if err == nil && !codec.Kind.IsKey() {
		err = fmt.Errorf("%s cannot be a key", codec.Kind)
	}
	if err != nil {
		b.fail(fmt.Errorf("%w: %s: %v", ErrUnsupportedType, property, err))
		return &IdentityBuilder{c: &Column{Property: property}, fail: b.fail}
	}
	if b.def.ID != nil {
		b.fail(fmt.Errorf("%w: %s and %s", ErrDuplicateIdentity, b.def.ID.Property, property))
		return &IdentityBuilder{c: &Column{Property: property}, fail: b.fail}
	}
	c := newColumn(property, acc, codec)
	var zero K
	c.isZero = func(e any) bool { return *acc(e.(*T)) == zero }
	switch codec.Kind {
	case catalog.Guid:
		c.generate = func() any { return newGUID() }
	case catalog.String:
		c.generate = func() any { return newULID() }
	}
	b.def.ID = c
	return &IdentityBuilder{c: c, fail: b.fail}
}

// ColumnBuilder refines a scalar declaration.
type ColumnBuilder struct{ c *Column }

// MaxLength bounds the stored length of a string column.
func (cb *ColumnBuilder) MaxLength(n int) *ColumnBuilder {
	cb.c.MaxLength = n
	return cb
}

// Column overrides the column name.
func (cb *ColumnBuilder) Column(name string) *ColumnBuilder {
	cb.c.Name = normalize(name)
	return cb
}

func addColumn[T, F any](b *Builder[T], property string, acc func(*T) *F, codec catalog.Codec[F]) *ColumnBuilder {
	c := newColumn(property, acc, codec)
	b.def.Columns = append(b.def.Columns, c)
	return &ColumnBuilder{c: c}
}

// Reference declares a scalar property.
func Reference[T, F any](b *Builder[T], property string, acc func(*T) *F) *ColumnBuilder {
	codec, err := catalog.For[F]()
	if err != nil {
		b.fail(fmt.Errorf("%w: %s: %v", ErrUnsupportedType, property, err))
		return &ColumnBuilder{c: &Column{Property: property}}
	}
	return addColumn(b, property, acc, codec)
}

// Enum declares a property stored as its underlying integer.
func Enum[T any, E catalog.Integer](b *Builder[T], property string, acc func(*T) *E) *ColumnBuilder {
	return addColumn(b, property, acc, catalog.EnumCodec[E]())
}

// Char declares a rune property stored as a single character.
func Char[T any](b *Builder[T], property string, acc func(*T) *rune) *ColumnBuilder {
	return addColumn(b, property, acc, catalog.CharCodec())
}

// OwnedBuilder refines a Map declaration.
type OwnedBuilder struct{ o *Owned }

// Cascade persists and deletes the referenced entity with its owner.
func (ob *OwnedBuilder) Cascade() *OwnedBuilder {
	ob.o.Cascade = true
	return ob
}

// Column overrides the foreign key column name.
func (ob *OwnedBuilder) Column(name string) *OwnedBuilder {
	ob.o.Column = normalize(name)
	return ob
}

// Map declares a single owned reference to another mapped type.
func Map[T, C any](b *Builder[T], property string, acc func(*T) **C) *OwnedBuilder {
	o := &Owned{
		Property:   property,
		Column:     ForeignKeyName(property),
		TargetType: reflect.TypeFor[C](),
		Owner:      b.def,
		get: func(e any) any {
			if p := *acc(e.(*T)); p != nil {
				return p
			}
			return nil
		},
		set: func(e, v any) error {
			if v == nil {
				*acc(e.(*T)) = nil
				return nil
			}
			p, ok := v.(*C)
			if !ok {
				return fmt.Errorf("%w: %s wants *%s, got %T", ErrValueType, property, reflect.TypeFor[C](), v)
			}
			*acc(e.(*T)) = p
			return nil
		},
	}
	b.def.Owned = append(b.def.Owned, o)
	return &OwnedBuilder{o: o}
}

// RelationBuilder refines a collection declaration.
type RelationBuilder struct{ r *Relation }

// TableName overrides the link table name.
func (rb *RelationBuilder) TableName(name string) *RelationBuilder {
	rb.r.Table = normalize(name)
	return rb
}

// Cascade persists elements with their owner and applies the delete
// policy when the owner is deleted.
func (rb *RelationBuilder) Cascade() *RelationBuilder {
	rb.r.Cascade = true
	return rb
}

// OnDelete overrides the default delete policy of the relation kind.
func (rb *RelationBuilder) OnDelete(p DeletePolicy) *RelationBuilder {
	rb.r.OnDelete = p
	return rb
}

// ToOne declares an exclusive collection: every element belongs to at
// most one owner, and a cascaded delete removes the elements.
func ToOne[T, E any](b *Builder[T], property string, acc func(*T) *[]*E) *RelationBuilder {
	return addRelation(b, property, acc, ToOneKind, Remove)
}

// ToMany declares a shared collection: a cascaded delete only detaches
// the elements.
func ToMany[T, E any](b *Builder[T], property string, acc func(*T) *[]*E) *RelationBuilder {
	return addRelation(b, property, acc, ToManyKind, Detach)
}

func addRelation[T, E any](b *Builder[T], property string, acc func(*T) *[]*E, kind RelationKind, policy DeletePolicy) *RelationBuilder {
	r := &Relation{
		Property:       property,
		Kind:           kind,
		PositionColumn: "position",
		OnDelete:       policy,
		ElementType:    reflect.TypeFor[E](),
		Owner:          b.def,
		items: func(e any) []any {
			list := *acc(e.(*T))
			out := make([]any, 0, len(list))
			for _, it := range list {
				if it != nil {
					out = append(out, it)
				}
			}
			return out
		},
		setItems: func(e any, items []any) error {
			list := make([]*E, 0, len(items))
			for _, it := range items {
				p, ok := it.(*E)
				if !ok {
					return fmt.Errorf("%w: %s wants *%s, got %T", ErrValueType, property, reflect.TypeFor[E](), it)
				}
				list = append(list, p)
			}
			*acc(e.(*T)) = list
			return nil
		},
	}
	b.def.Relations = append(b.def.Relations, r)
	return &RelationBuilder{r: r}
}
