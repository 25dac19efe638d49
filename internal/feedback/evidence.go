package feedback

import "fmt"

// EvidenceValidator checks that every evidence line exists in the
// submission.
type EvidenceValidator struct{}

func (v *EvidenceValidator) Name() string { return "evidence" }

func (v *EvidenceValidator) Validate(dims map[string]Dimension, in Input, cfg Config) *ValidationError {
	n := countLines(in.Code)
	for _, spec := range cfg.Dimensions {
		for _, line := range dims[spec.Name].EvidenceLines {
			if line < 1 || line > n {
				return &ValidationError{
					Validator: v.Name(),
					Message:   fmt.Sprintf("%s cites line %d but the submission has %d lines", spec.Name, line, n),
				}
			}
		}
	}
	return nil
}
