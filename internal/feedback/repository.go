package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/vidtutor/internal/store"
)

// Repository persists feedback records. Records are append-only.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, learningItemID string, limit int) ([]Record, error)
}

// StoreRepository keeps records as JSON bodies in the SQLite store.
type StoreRepository struct {
	repo store.FeedbackRepo
}

// NewStoreRepository wraps a store.FeedbackRepo.
func NewStoreRepository(repo store.FeedbackRepo) *StoreRepository {
	return &StoreRepository{repo: repo}
}

func (r *StoreRepository) Save(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode feedback record: %w", err)
	}
	_, err = r.repo.Save(ctx, store.FeedbackRow{
		ID:             rec.ID,
		Timestamp:      rec.CreatedAt,
		SubmissionID:   rec.SubmissionID,
		LearningItemID: rec.LearningItemID,
		Model:          rec.Model,
		Attempts:       rec.Attempts,
		Grounded:       rec.Grounded,
		Body:           body,
	})
	return err
}

// Get returns the record with id, or nil if there is none.
func (r *StoreRepository) Get(ctx context.Context, id string) (*Record, error) {
	row, err := r.repo.Get(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	return decodeRecord(*row)
}

// List returns an item's records, newest first.
func (r *StoreRepository) List(ctx context.Context, learningItemID string, limit int) ([]Record, error) {
	rows, err := r.repo.ListByLearningItem(ctx, learningItemID, store.QueryOpts{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func decodeRecord(row store.FeedbackRow) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(row.Body, &rec); err != nil {
		return nil, fmt.Errorf("decode feedback record %s: %w", row.ID, err)
	}
	return &rec, nil
}
