package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"

	"github.com/matthewbaird/followup/internal/types"
)

// Tier holds the schema definition for the Tier entity.
type Tier struct {
	ent.Schema
}

// Mixin of the Tier.
func (Tier) Mixin() []ent.Mixin {
	return []ent.Mixin{AuditMixin{}}
}

// Fields of the Tier.
func (Tier) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id").
			Positive().
			Immutable().
			Comment("Priority rank; higher is more valuable"),
		field.String("name").
			NotEmpty(),
		field.String("description").
			Default(""),
		field.JSON("cadence", map[types.Channel]types.ChannelRule{}).
			Comment("Per-channel frequency and lead days"),
		field.JSON("qualification", types.Qualification{}),
	}
}
