package llm

import "context"

// Purposes label LLM traffic by pipeline stage in the event log.
const (
	PurposeFeedback = "feedback"
	PurposeOCR      = "ocr"
	PurposeEmbed    = "resolver-embed"
)

type purposeKey struct{}

// WithPurpose tags ctx so the requests made under it are logged as purpose.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the tag set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
