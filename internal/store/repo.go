package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// IndexRecord is the persisted form of one learning item's context index.
// Artifact holds the serialized index; the hashes decide whether it can be
// reused without a rebuild.
type IndexRecord struct {
	LearningItemID string
	ContentHash    string
	ConfigHash     string
	FormatVersion  string
	Artifact       []byte
	BuiltAt        time.Time
	UpdatedAt      time.Time
}

// IndexRepo stores at most one context index per learning item.
type IndexRepo interface {
	// Save inserts or replaces the index for rec.LearningItemID.
	Save(ctx context.Context, rec IndexRecord) error

	// Load returns the index for a learning item, or nil if none exists.
	Load(ctx context.Context, learningItemID string) (*IndexRecord, error)

	// List returns all stored indexes without their artifacts, ordered by
	// learning item id.
	List(ctx context.Context) ([]IndexRecord, error)
}

// FeedbackRow is the persisted form of one feedback record.
type FeedbackRow struct {
	ID             string
	Sequence       int64
	Timestamp      time.Time
	SubmissionID   string
	LearningItemID string
	Model          string
	Attempts       int
	Grounded       bool
	Body           []byte
}

// FeedbackRepo is append-only: every submission produces a new row.
type FeedbackRepo interface {
	Save(ctx context.Context, row FeedbackRow) (FeedbackRow, error)
	Get(ctx context.Context, id string) (*FeedbackRow, error)
	ListByLearningItem(ctx context.Context, learningItemID string, opts QueryOpts) ([]FeedbackRow, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates token usage for one purpose label.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates token usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns a single event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}
