package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ContextIndex stores the latest built index per learning item. The artifact
// is the versioned JSON document; the other columns make staleness checks
// possible without decoding it.
type ContextIndex struct {
	ent.Schema
}

func (ContextIndex) Fields() []ent.Field {
	return []ent.Field{
		field.String("learning_item_id").
			Unique().
			NotEmpty(),
		field.String("content_hash").
			Comment("SHA-256 of the video file the index was built from"),
		field.String("config_hash").
			Comment("Fingerprint of the extraction settings"),
		field.String("format_version"),
		field.JSON("artifact", json.RawMessage{}),
		field.Time("built_at"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

func (ContextIndex) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("content_hash"),
	}
}
