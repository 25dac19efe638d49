package feedback

import "fmt"

// Validator checks a decoded response before it becomes a Record.
// Implementations are stateless and safe for concurrent use.
type Validator interface {
	// Name identifies the validator in errors and logs, e.g. "citation".
	Name() string

	// Validate returns nil when dims pass.
	Validate(dims map[string]Dimension, in Input, cfg Config) *ValidationError
}

// ValidationError describes why a response was rejected. The message is
// fed back to the backend in the repair instruction.
type ValidationError struct {
	Validator string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// DefaultValidators returns the standard chain. The first failure stops it.
func DefaultValidators() []Validator {
	return []Validator{
		&StructuralValidator{},
		&EvidenceValidator{},
		&CitationValidator{},
	}
}
