package mapping

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Issue codes reported by Validate.
const (
	CodeTargetUnmapped     = "target_unmapped"
	CodeTableCollision     = "table_collision"
	CodeLinkTableCollision = "link_table_collision"
	CodeColumnCollision    = "column_collision"
	CodeCrossDatabase      = "cross_database_relation"
)

type Issue struct {
	Entity   string
	Property string
	Code     string
	Message  string
}

func (i *Issue) Error() string {
	if i.Property == "" {
		return fmt.Sprintf("%s: %s: %s", i.Entity, i.Code, i.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %s", i.Entity, i.Property, i.Code, i.Message)
}

type Issues []*Issue

// Err aggregates the issues, nil when there are none.
func (is Issues) Err() error {
	var merr *multierror.Error
	for _, i := range is {
		merr = multierror.Append(merr, i)
	}
	return merr.ErrorOrNil()
}

func (r *Registry) lint() Issues {
	var issues Issues
	type owner struct {
		def  *Definition
		prop string
	}
	// table names per database
	tables := map[string]map[string]owner{}
	claim := func(db, table string, def *Definition, prop, code string) {
		if tables[db] == nil {
			tables[db] = map[string]owner{}
		}
		if prev, taken := tables[db][table]; taken {
			what := prev.def.Name
			if prev.prop != "" {
				what += "." + prev.prop
			}
			issues = append(issues, &Issue{
				Entity:   def.Name,
				Property: prop,
				Code:     code,
				Message:  fmt.Sprintf("table %q already used by %s", table, what),
			})
			return
		}
		tables[db][table] = owner{def: def, prop: prop}
	}

	for _, def := range r.order {
		claim(def.Database, def.Table, def, "", CodeTableCollision)
	}
	for _, def := range r.order {
		cols := map[string]bool{}
		if def.ID != nil {
			cols[def.ID.Name] = true
		}
		for _, c := range def.Columns {
			cols[c.Name] = true
		}
		for _, o := range def.Owned {
			if o.Target == nil {
				issues = append(issues, &Issue{
					Entity: def.Name, Property: o.Property, Code: CodeTargetUnmapped,
					Message: fmt.Sprintf("%s is not mapped", o.TargetType),
				})
				continue
			}
			if o.Target.Database != def.Database {
				issues = append(issues, &Issue{
					Entity: def.Name, Property: o.Property, Code: CodeCrossDatabase,
					Message: fmt.Sprintf("%s lives in database %q", o.Target.Name, o.Target.Database),
				})
			}
			if cols[o.Column] {
				issues = append(issues, &Issue{
					Entity: def.Name, Property: o.Property, Code: CodeColumnCollision,
					Message: fmt.Sprintf("foreign key column %q clashes with a scalar column", o.Column),
				})
			}
		}
		for _, rel := range def.Relations {
			claim(def.Database, rel.Table, def, rel.Property, CodeLinkTableCollision)
			if rel.Element == nil {
				issues = append(issues, &Issue{
					Entity: def.Name, Property: rel.Property, Code: CodeTargetUnmapped,
					Message: fmt.Sprintf("%s is not mapped", rel.ElementType),
				})
				continue
			}
			if rel.Element.Database != def.Database {
				issues = append(issues, &Issue{
					Entity: def.Name, Property: rel.Property, Code: CodeCrossDatabase,
					Message: fmt.Sprintf("%s lives in database %q", rel.Element.Name, rel.Element.Database),
				})
			}
		}
	}
	return issues
}
