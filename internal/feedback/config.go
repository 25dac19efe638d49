package feedback

import (
	"fmt"
	"time"

	"github.com/abhisek/vidtutor/internal/llm"
)

// DimensionSpec names one axis the backend scores.
type DimensionSpec struct {
	Name        string
	Description string
}

// Config controls composition.
type Config struct {
	// Dimensions are the axes every response must score, in prompt order.
	Dimensions []DimensionSpec

	// MinScore and MaxScore bound every dimension score.
	MinScore int
	MaxScore int

	// MaxAttempts bounds generate-validate-repair rounds.
	MaxAttempts int

	// RequireCitation makes a grounded composition cite at least one of
	// the verified timestamps.
	RequireCitation bool

	// Timeout bounds one whole composition, backoff included.
	Timeout time.Duration

	MaxTokens   int
	Temperature float64

	// Retry is the backoff policy for transient backend failures.
	Retry llm.RetryConfig
}

// DefaultConfig returns the recommended composer settings.
func DefaultConfig() Config {
	retry := llm.DefaultRetryConfig()
	retry.InvalidRetries = 0
	return Config{
		Dimensions: []DimensionSpec{
			{Name: "correctness", Description: "Does the code produce the expected behavior? Name the mistake."},
			{Name: "approach", Description: "Is the algorithm or technique appropriate for the problem?"},
			{Name: "readability", Description: "Naming, structure and clarity of the code."},
		},
		MinScore:        1,
		MaxScore:        5,
		MaxAttempts:     3,
		RequireCitation: true,
		Timeout:         90 * time.Second,
		MaxTokens:       1024,
		Temperature:     0.2,
		Retry:           retry,
	}
}

func (c Config) Validate() error {
	if len(c.Dimensions) == 0 {
		return fmt.Errorf("feedback needs at least one dimension")
	}
	seen := make(map[string]bool, len(c.Dimensions))
	for _, d := range c.Dimensions {
		if d.Name == "" {
			return fmt.Errorf("feedback dimension name is empty")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate feedback dimension %q", d.Name)
		}
		seen[d.Name] = true
	}
	if c.MinScore > c.MaxScore {
		return fmt.Errorf("feedback score range [%d,%d] is empty", c.MinScore, c.MaxScore)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("feedback max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("feedback timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
