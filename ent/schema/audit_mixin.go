package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/mixin"
)

// AuditMixin provides the creation and last-update stamps carried by every
// mutable row. Times are unix milliseconds, matching the rest of the schema.
type AuditMixin struct {
	mixin.Schema
}

// Fields of the AuditMixin.
func (AuditMixin) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("created_ms").
			Default(0).
			Immutable().
			Comment("When the row was created"),
		field.Int64("updated_ms").
			Default(0).
			Comment("When the row was last updated"),
	}
}
