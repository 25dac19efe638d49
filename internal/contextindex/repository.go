package contextindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/vidtutor/internal/store"
)

// ErrUnreadableArtifact wraps failures to decode or revalidate a stored
// index. The coordinator treats such an index as absent and rebuilds it.
var ErrUnreadableArtifact = errors.New("stored context index unreadable")

// Repository persists context indexes keyed by learning item.
type Repository interface {
	// Save replaces any stored index for idx.LearningItemID.
	Save(ctx context.Context, idx *ContextIndex) error

	// Load returns the stored index, or nil if none exists.
	Load(ctx context.Context, learningItemID string) (*ContextIndex, error)
}

// StoreRepository stores indexes as JSON artifacts in the SQLite store.
type StoreRepository struct {
	repo store.IndexRepo
}

// NewStoreRepository wraps a store.IndexRepo.
func NewStoreRepository(repo store.IndexRepo) *StoreRepository {
	return &StoreRepository{repo: repo}
}

func (r *StoreRepository) Save(ctx context.Context, idx *ContextIndex) error {
	data, err := Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode context index: %w", err)
	}
	return r.repo.Save(ctx, store.IndexRecord{
		LearningItemID: idx.LearningItemID,
		ContentHash:    idx.Video.ContentHash,
		ConfigHash:     idx.ConfigHash,
		FormatVersion:  FormatVersion,
		Artifact:       data,
		BuiltAt:        idx.BuiltAt,
	})
}

func (r *StoreRepository) Load(ctx context.Context, learningItemID string) (*ContextIndex, error) {
	rec, err := r.repo.Load(ctx, learningItemID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	idx, err := Unmarshal(rec.Artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableArtifact, learningItemID, err)
	}
	return idx, nil
}
