// Package feedback turns a submission, its error signature and the
// resolved video moments into validated, timestamp-grounded feedback.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/vidtutor/internal/llm"
	"github.com/abhisek/vidtutor/internal/logger"
)

// Composer generates feedback records. It is safe for concurrent use; each
// Compose call is an independent, cancellable unit of work.
type Composer struct {
	provider   llm.Provider
	config     Config
	schema     *llm.Schema
	validators []Validator
	logger     *slog.Logger
}

// NewComposer wraps provider with the configured backoff policy.
func NewComposer(provider llm.Provider, cfg Config, log *slog.Logger) *Composer {
	return &Composer{
		provider:   llm.WithRetry(provider, cfg.Retry),
		config:     cfg,
		schema:     BuildSchema(cfg),
		validators: DefaultValidators(),
		logger:     logger.OrDefault(log),
	}
}

// Compose produces a Record for in.
//
// Responses failing validation are repaired up to MaxAttempts, then
// ErrFeedbackGenerationFailed is returned. Transient backend failures that
// outlast the retry policy return ErrBackendUnavailable. Exceeding Timeout
// returns ErrFeedbackGenerationFailed.
func (c *Composer) Compose(ctx context.Context, in Input) (*Record, error) {
	sc := logger.StartSpan(ctx, "feedback.compose")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		LearningItemID: in.LearningItemID,
		SubmissionID:   in.SubmissionID,
		Component:      "feedback",
	})

	rec, err := c.compose(ctx, in)
	if err != nil {
		sc.RecordError(err)
		c.logger.ErrorContext(ctx, "feedback composition failed", "error", err)
		return nil, err
	}
	c.logger.InfoContext(ctx, "feedback composed",
		"attempts", rec.Attempts,
		"grounded", rec.Grounded,
		"citations", len(rec.Citations))
	return rec, nil
}

func (c *Composer) compose(ctx context.Context, in Input) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	ctx = llm.WithPurpose(ctx, llm.PurposeFeedback)

	system, user, err := buildPrompts(in, c.config)
	if err != nil {
		return nil, err
	}
	msgs := []llm.Message{{Role: llm.RoleUser, Content: user}}

	var lastErr *ValidationError
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.provider.Generate(ctx, llm.Request{
			System:      system,
			Messages:    msgs,
			Schema:      c.schema,
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		})

		var content json.RawMessage
		var verr *ValidationError
		switch {
		case err == nil:
			content = resp.Content
			var dims map[string]Dimension
			dims, verr = c.check(content, in)
			if verr == nil {
				return c.record(in, dims, resp.Model, attempt), nil
			}
		case ctx.Err() != nil:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: timed out after %s", ErrFeedbackGenerationFailed, c.config.Timeout)
			}
			return nil, ctx.Err()
		default:
			var inv *llm.ErrInvalidResponse
			if !errors.As(err, &inv) {
				return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
			}
			content = inv.Content
			verr = &ValidationError{Validator: "schema", Message: inv.Err.Error()}
		}

		lastErr = verr
		c.logger.WarnContext(ctx, "feedback response rejected",
			"attempt", attempt,
			"validator", verr.Validator,
			"reason", verr.Message)
		if len(content) > 0 {
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: string(content)})
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: repairMessage(attempt, verr, in, c.config)})
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFeedbackGenerationFailed, c.config.MaxAttempts, lastErr)
}

// check validates raw against the schema and the validator chain.
func (c *Composer) check(raw json.RawMessage, in Input) (map[string]Dimension, *ValidationError) {
	if err := llm.ValidateContent(c.schema, raw); err != nil {
		msg := err.Error()
		var inv *llm.ErrInvalidResponse
		if errors.As(err, &inv) && inv.Err != nil {
			msg = inv.Err.Error()
		}
		return nil, &ValidationError{Validator: "schema", Message: msg}
	}

	var dims map[string]Dimension
	if err := json.Unmarshal(raw, &dims); err != nil {
		return nil, &ValidationError{Validator: "schema", Message: fmt.Sprintf("response is not a JSON object: %v", err)}
	}
	for _, v := range c.validators {
		if verr := v.Validate(dims, in, c.config); verr != nil {
			return nil, verr
		}
	}
	return dims, nil
}

func (c *Composer) record(in Input, dims map[string]Dimension, model string, attempts int) *Record {
	if model == "" {
		model = c.provider.ModelID()
	}
	return &Record{
		ID:             uuid.NewString(),
		SubmissionID:   in.SubmissionID,
		LearningItemID: in.LearningItemID,
		Dimensions:     dims,
		Citations:      citedMatches(dims, in.Matches),
		Grounded:       in.Matches.Grounded(),
		Model:          model,
		Attempts:       attempts,
		CreatedAt:      time.Now().UTC(),
	}
}
