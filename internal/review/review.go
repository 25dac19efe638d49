// Package review runs the per-submission flow: find the lecture index,
// resolve the error signature against it, compose grounded feedback and
// record the result.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abhisek/vidtutor/internal/contextindex"
	"github.com/abhisek/vidtutor/internal/feedback"
	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/resolver"
)

// Submission is one learner attempt awaiting feedback.
type Submission struct {
	ID             string
	LearningItemID string
	// VideoRef, when set, lets the service build or refresh the index
	// before resolving. Otherwise the stored index is used as is.
	VideoRef  string
	Code      string
	Signature resolver.ErrorSignature
}

// Indexes finds the context index for a learning item.
type Indexes interface {
	Ensure(ctx context.Context, itemID, fileRef string) (*contextindex.ContextIndex, error)
	Get(ctx context.Context, itemID string) (*contextindex.ContextIndex, error)
}

// Resolver ranks index content against a signature.
type Resolver interface {
	Resolve(ctx context.Context, sig resolver.ErrorSignature, idx *contextindex.ContextIndex) (resolver.Matches, error)
}

// Composer produces feedback.
type Composer interface {
	Compose(ctx context.Context, in feedback.Input) (*feedback.Record, error)
}

// Service wires the stages together. It holds no per-request state.
type Service struct {
	indexes  Indexes
	resolver Resolver
	composer Composer
	records  feedback.Repository
	logger   *slog.Logger
}

// NewService creates a Service. A nil records repository skips persistence.
func NewService(indexes Indexes, res Resolver, composer Composer, records feedback.Repository, log *slog.Logger) *Service {
	return &Service{
		indexes:  indexes,
		resolver: res,
		composer: composer,
		records:  records,
		logger:   logger.OrDefault(log),
	}
}

// Review produces and records feedback for sub.
//
// A missing index or a resolver failure degrades to ungrounded feedback.
// Media failures while building, composer failures and persistence
// failures are returned.
func (s *Service) Review(ctx context.Context, sub Submission) (*feedback.Record, error) {
	if sub.ID == "" || sub.LearningItemID == "" {
		return nil, errors.New("review: submission and learning item ids are required")
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		LearningItemID: sub.LearningItemID,
		SubmissionID:   sub.ID,
		Component:      "review",
	})

	idx, err := s.index(ctx, sub)
	if err != nil {
		return nil, err
	}

	matches := resolver.Matches{}
	if idx != nil {
		m, err := s.resolver.Resolve(ctx, sub.Signature, idx)
		if err != nil {
			s.logger.WarnContext(ctx, "resolve failed; composing without grounding", "error", err)
		} else {
			matches = m
		}
	}

	rec, err := s.composer.Compose(ctx, feedback.Input{
		SubmissionID:   sub.ID,
		LearningItemID: sub.LearningItemID,
		Code:           sub.Code,
		Signature:      sub.Signature,
		Matches:        matches,
	})
	if err != nil {
		return nil, err
	}

	if s.records != nil {
		if err := s.records.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("save feedback record: %w", err)
		}
	}
	s.logger.InfoContext(ctx, "submission reviewed",
		"feedback_id", rec.ID,
		"grounded", rec.Grounded,
		"citations", len(rec.Citations))
	return rec, nil
}

func (s *Service) index(ctx context.Context, sub Submission) (*contextindex.ContextIndex, error) {
	if sub.VideoRef != "" {
		return s.indexes.Ensure(ctx, sub.LearningItemID, sub.VideoRef)
	}
	idx, err := s.indexes.Get(ctx, sub.LearningItemID)
	if err == nil {
		return idx, nil
	}
	if errors.Is(err, contextindex.ErrIndexNotFound) || errors.Is(err, contextindex.ErrUnreadableArtifact) {
		s.logger.WarnContext(ctx, "no usable context index; composing without grounding", "error", err)
		return nil, nil
	}
	return nil, err
}
