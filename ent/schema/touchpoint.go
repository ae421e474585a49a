package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// channels mirrors types.Channels.
var channels = []string{"email", "message", "phone", "visit"}

// Touchpoint holds the schema definition for the Touchpoint entity: the
// latest contact per customer and channel.
type Touchpoint struct {
	ent.Schema
}

// Fields of the Touchpoint.
func (Touchpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("customer_id").
			NotEmpty(),
		field.Enum("channel").
			Values(channels...),
		field.Int64("last_contacted_ms").
			Comment("Unix milliseconds of the most recent contact"),
	}
}

// Indexes of the Touchpoint.
func (Touchpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("customer_id", "channel").Unique(),
	}
}
