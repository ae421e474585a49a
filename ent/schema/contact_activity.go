package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/matthewbaird/followup/internal/types"
)

// ContactActivity holds the schema definition for the append-only contact
// history.
type ContactActivity struct {
	ent.Schema
}

// Annotations of the ContactActivity.
func (ContactActivity) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "contact_activity"},
	}
}

// Fields of the ContactActivity.
func (ContactActivity) Fields() []ent.Field {
	return []ent.Field{
		field.String("event_id").NotEmpty(),
		field.String("event_type").NotEmpty(),
		field.Int64("occurred_ms"),
		field.String("customer_id").NotEmpty(),
		field.String("channel").
			Default("").
			Comment("Empty for tier assignment entries"),
		field.JSON("source_refs", []types.SourceRef{}),
		field.String("summary"),
		field.Text("payload").Optional().Nillable(),
	}
}

// Indexes of the ContactActivity.
func (ContactActivity) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("customer_id", "occurred_ms", "event_id").Unique(),
	}
}
