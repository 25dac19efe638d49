package feedback

import (
	"errors"
	"time"

	"github.com/abhisek/vidtutor/internal/resolver"
)

var (
	// ErrFeedbackGenerationFailed means no schema-valid, grounded response
	// was produced within the attempt or time budget.
	ErrFeedbackGenerationFailed = errors.New("feedback generation failed")

	// ErrBackendUnavailable means the generative backend kept failing
	// transiently. Callers may retry later.
	ErrBackendUnavailable = errors.New("generative backend unavailable")
)

// Input is everything the composer needs for one submission.
type Input struct {
	SubmissionID   string
	LearningItemID string
	Code           string
	Signature      resolver.ErrorSignature
	Matches        resolver.Matches
}

// Dimension is the assessment along one configured axis.
type Dimension struct {
	Score         int    `json:"score"`
	Comment       string `json:"comment"`
	EvidenceLines []int  `json:"evidence_lines"`
}

// Record is the persisted outcome of one composition. Records are never
// updated; a resubmission produces a new Record.
type Record struct {
	ID             string               `json:"id"`
	SubmissionID   string               `json:"submission_id"`
	LearningItemID string               `json:"learning_item_id"`
	Dimensions     map[string]Dimension `json:"dimensions"`
	Citations      resolver.Matches     `json:"citations"`
	Grounded       bool                 `json:"grounded"`
	Model          string               `json:"model"`
	Attempts       int                  `json:"attempts"`
	CreatedAt      time.Time            `json:"created_at"`
}
