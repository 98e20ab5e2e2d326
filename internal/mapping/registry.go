package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Registry holds every mapped type. Registration happens at startup;
// after Validate the registry is read-only.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*Definition
	order  []*Definition
}

func NewRegistry() *Registry {
	return &Registry{byType: map[reflect.Type]*Definition{}}
}

func (r *Registry) add(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byType[def.Type]; dup {
		return fmt.Errorf("%s: %w", def.Name, ErrAlreadyRegistered)
	}
	r.byType[def.Type] = def
	r.order = append(r.order, def)
	return nil
}

// Lookup returns the definition of a Go type.
func (r *Registry) Lookup(t reflect.Type) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byType[t]
	return def, ok
}

// ByName finds a definition by type or table name, case-insensitively.
// An ambiguous name is not found.
func (r *Registry) ByName(name string) (*Definition, bool) {
	n := normalize(name)
	if n == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Definition
	for _, def := range r.order {
		if strings.ToLower(def.Name) == n || def.Table == n {
			if found != nil && found != def {
				return nil, false
			}
			found = def
		}
	}
	return found, found != nil
}

// Definitions returns every definition in registration order.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Definition(nil), r.order...)
}

// Bind assigns database to every definition that has none.
func (r *Registry) Bind(database string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range r.order {
		if def.Database == "" {
			def.Database = database
		}
	}
}

// Validate resolves relation targets, fills derived names and reports
// every configuration problem at once.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolve()
	return Issues(r.lint()).Err()
}

func (r *Registry) resolve() {
	for _, def := range r.order {
		def.Referrers = nil
		def.Containers = nil
	}
	for _, def := range r.order {
		for _, o := range def.Owned {
			o.Target = r.byType[o.TargetType]
			if o.Target != nil {
				o.Target.Referrers = append(o.Target.Referrers, o)
			}
		}
		for _, rel := range def.Relations {
			rel.Element = r.byType[rel.ElementType]
			if rel.Table == "" {
				rel.Table = LinkTableName(def.Table, rel.Property)
			}
			if rel.Element != nil {
				rel.OwnerColumn, rel.ElementColumn = linkColumns(def, rel.Element)
				rel.Element.Containers = append(rel.Element.Containers, rel)
			}
		}
	}
}
