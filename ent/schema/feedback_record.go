package schema

import (
	"encoding/json"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// FeedbackRecord is one composed review of a submission. Body holds the
// scored dimensions and the cited video moments.
type FeedbackRecord struct {
	ent.Schema
}

func (FeedbackRecord) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (FeedbackRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("submission_id"),
		field.String("learning_item_id"),
		field.String("model").
			Default(""),
		field.Int("attempts").
			Default(0).
			Comment("Composer attempts including repairs"),
		field.Bool("grounded").
			Default(false),
		field.JSON("body", json.RawMessage{}),
	}
}

func (FeedbackRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("learning_item_id"),
		index.Fields("submission_id"),
	}
}
