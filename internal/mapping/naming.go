package mapping

import (
	"strings"

	"github.com/iancoleman/strcase"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// plural adds "es" after a sibilant ending and "s" otherwise. Any other
// trailing "s" is taken as already plural.
func plural(s string) string {
	for _, suf := range []string{"ss", "us", "x", "z", "ch", "sh"} {
		if strings.HasSuffix(s, suf) {
			return s + "es"
		}
	}
	if strings.HasSuffix(s, "s") {
		return s
	}
	return s + "s"
}

// TableName is the default table of a Go type name.
func TableName(typeName string) string {
	t := plural(strcase.ToSnake(typeName))
	if isReserved(t) {
		t = "e_" + t
	}
	return t
}

// ColumnName is the default column of a property.
func ColumnName(property string) string {
	return strcase.ToSnake(property)
}

// ForeignKeyName is the default column of an owned reference.
func ForeignKeyName(property string) string {
	return strcase.ToSnake(property) + "_id"
}

// LinkTableName is the default link table of a collection property.
func LinkTableName(ownerTable, property string) string {
	return ownerTable + "_" + strcase.ToSnake(property)
}

// linkColumns names the two key columns of a link table after the
// participant types; a self relation prefixes the element side.
func linkColumns(owner, element *Definition) (string, string) {
	oc := strcase.ToSnake(owner.Name) + "_id"
	ec := strcase.ToSnake(element.Name) + "_id"
	if oc == ec {
		ec = "related_" + ec
	}
	return oc, ec
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
