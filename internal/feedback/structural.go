package feedback

import (
	"fmt"
	"strings"
)

// StructuralValidator checks that exactly the configured dimensions are
// present, with in-range scores and non-empty comments.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(dims map[string]Dimension, _ Input, cfg Config) *ValidationError {
	for _, spec := range cfg.Dimensions {
		d, ok := dims[spec.Name]
		if !ok {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("dimension %q is missing", spec.Name)}
		}
		if d.Score < cfg.MinScore || d.Score > cfg.MaxScore {
			return &ValidationError{
				Validator: v.Name(),
				Message:   fmt.Sprintf("%s score %d is outside %d-%d", spec.Name, d.Score, cfg.MinScore, cfg.MaxScore),
			}
		}
		if strings.TrimSpace(d.Comment) == "" {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("%s comment is empty", spec.Name)}
		}
	}
	if len(dims) != len(cfg.Dimensions) {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("expected %d dimensions, got %d", len(cfg.Dimensions), len(dims)),
		}
	}
	return nil
}
