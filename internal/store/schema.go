package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// The tables below are the migration form of the models in ent/schema.
// Changing a model means changing its table here too.
var (
	// ContextIndexesColumns holds the columns for the "context_indexes" table.
	ContextIndexesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learning_item_id", Type: field.TypeString, Unique: true},
		{Name: "content_hash", Type: field.TypeString},
		{Name: "config_hash", Type: field.TypeString},
		{Name: "format_version", Type: field.TypeString},
		{Name: "artifact", Type: field.TypeJSON},
		{Name: "built_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// ContextIndexesTable holds the schema information for the "context_indexes" table.
	ContextIndexesTable = &schema.Table{
		Name:       "context_indexes",
		Columns:    ContextIndexesColumns,
		PrimaryKey: []*schema.Column{ContextIndexesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "contextindex_content_hash",
				Unique:  false,
				Columns: []*schema.Column{ContextIndexesColumns[2]},
			},
		},
	}

	// FeedbackRecordsColumns holds the columns for the "feedback_records" table.
	FeedbackRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "submission_id", Type: field.TypeString},
		{Name: "learning_item_id", Type: field.TypeString},
		{Name: "model", Type: field.TypeString, Default: ""},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "grounded", Type: field.TypeBool, Default: false},
		{Name: "body", Type: field.TypeJSON},
	}
	// FeedbackRecordsTable holds the schema information for the "feedback_records" table.
	FeedbackRecordsTable = &schema.Table{
		Name:       "feedback_records",
		Columns:    FeedbackRecordsColumns,
		PrimaryKey: []*schema.Column{FeedbackRecordsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "feedbackrecord_learning_item_id",
				Unique:  false,
				Columns: []*schema.Column{FeedbackRecordsColumns[4]},
			},
			{
				Name:    "feedbackrecord_submission_id",
				Unique:  false,
				Columns: []*schema.Column{FeedbackRecordsColumns[3]},
			},
		},
	}

	// LlmRequestEventsColumns holds the columns for the "llm_request_events" table.
	LlmRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	// LlmRequestEventsTable holds the schema information for the "llm_request_events" table.
	LlmRequestEventsTable = &schema.Table{
		Name:       "llm_request_events",
		Columns:    LlmRequestEventsColumns,
		PrimaryKey: []*schema.Column{LlmRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "llmrequestevent_provider",
				Unique:  false,
				Columns: []*schema.Column{LlmRequestEventsColumns[3]},
			},
			{
				Name:    "llmrequestevent_purpose",
				Unique:  false,
				Columns: []*schema.Column{LlmRequestEventsColumns[5]},
			},
			{
				Name:    "llmrequestevent_success",
				Unique:  false,
				Columns: []*schema.Column{LlmRequestEventsColumns[9]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ContextIndexesTable,
		FeedbackRecordsTable,
		LlmRequestEventsTable,
	}
)

// migrate creates or updates all tables.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("ent/migrate: %w", err)
	}
	return m.Create(ctx, Tables...)
}
