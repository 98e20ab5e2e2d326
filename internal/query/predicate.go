package query

import (
	"errors"
	"fmt"
	"strings"

	"graphorm/internal/mapping"
)

var (
	ErrUnknownProperty = errors.New("unknown property")
	ErrOperator        = errors.New("unsupported operator")
)

type Op string

const (
	Eq        Op = "="
	NotEq     Op = "<>"
	Less      Op = "<"
	LessEq    Op = "<="
	Greater   Op = ">"
	GreaterEq Op = ">="
)

// Predicate compares one mapped property with a value. The value is
// always bound as a parameter and must have the property's Go type;
// nil compares against NULL with Eq and NotEq.
type Predicate struct {
	Property string
	Op       Op
	Value    any
}

func Where(property string, op Op, value any) Predicate {
	return Predicate{Property: property, Op: op, Value: value}
}

func (p Predicate) String() string { return fmt.Sprintf("%s %s %v", p.Property, p.Op, p.Value) }

func (g *Generator) resolve(property string) (*mapping.Column, error) {
	match := func(c *mapping.Column) bool {
		return c.Property == property || strings.EqualFold(c.Name, property)
	}
	if match(g.def.ID) {
		return g.def.ID, nil
	}
	for _, c := range g.def.Columns {
		if match(c) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, g.def.Name, property)
}

func (g *Generator) condition(p Predicate, a *args) (string, error) {
	col, err := g.resolve(p.Property)
	if err != nil {
		return "", err
	}
	lhs := g.d.Quote(col.Name)
	switch p.Op {
	case Eq, NotEq, Less, LessEq, Greater, GreaterEq:
	default:
		return "", fmt.Errorf("%w: %q", ErrOperator, p.Op)
	}
	if p.Value == nil {
		switch p.Op {
		case Eq:
			return lhs + " IS NULL", nil
		case NotEq:
			return lhs + " IS NOT NULL", nil
		}
		return "", fmt.Errorf("%w: %q with nil", ErrOperator, p.Op)
	}
	v, err := col.Encode(p.Value)
	if err != nil {
		return "", err
	}
	if v == nil {
		// a nil *string is still a NULL comparison
		return g.condition(Predicate{Property: p.Property, Op: p.Op}, a)
	}
	return lhs + " " + string(p.Op) + " " + a.add(v), nil
}
