package feedback

import "github.com/abhisek/vidtutor/internal/llm"

// BuildSchema derives the response schema from the configured dimensions:
// an object with one required {score, comment, evidence_lines} entry per
// dimension.
func BuildSchema(cfg Config) *llm.Schema {
	props := make(map[string]any, len(cfg.Dimensions))
	required := make([]any, 0, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		props[d.Name] = map[string]any{
			"type":        "object",
			"description": d.Description,
			"properties": map[string]any{
				"score": map[string]any{
					"type":        "integer",
					"minimum":     cfg.MinScore,
					"maximum":     cfg.MaxScore,
					"description": "Score for this dimension",
				},
				"comment": map[string]any{
					"type":        "string",
					"description": "Feedback for the learner. Cite video moments only from the provided list.",
				},
				"evidence_lines": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "1-based line numbers of the submission that support the comment",
				},
			},
			"required":             []any{"score", "comment", "evidence_lines"},
			"additionalProperties": false,
		}
		required = append(required, d.Name)
	}
	return &llm.Schema{
		Name:        "code-feedback",
		Description: "Per-dimension scored feedback on a code submission",
		Definition: map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	}
}
