package schema

import (
	"sort"

	"entgo.io/ent"
)

// Tables maps each table name to its schema.
func Tables() map[string]ent.Interface {
	return map[string]ent.Interface{
		"tiers":            Tier{},
		"customers":        Customer{},
		"touchpoints":      Touchpoint{},
		"contact_activity": ContactActivity{},
	}
}

// Columns returns the sorted column names s declares, mixins included.
func Columns(s ent.Interface) []string {
	var fields []ent.Field
	for _, m := range s.Mixin() {
		fields = append(fields, m.Fields()...)
	}
	fields = append(fields, s.Fields()...)

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Descriptor().Name)
	}
	sort.Strings(out)
	return out
}
