package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// feedbackRepo implements FeedbackRepo. Rows are never updated.
type feedbackRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

var feedbackColumns = []string{
	"id", "sequence", "timestamp", "submission_id", "learning_item_id",
	"model", "attempts", "grounded", "body",
}

func (r *feedbackRepo) Save(ctx context.Context, row FeedbackRow) (FeedbackRow, error) {
	if row.ID == "" {
		return row, fmt.Errorf("save feedback record: empty id")
	}
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return row, fmt.Errorf("next sequence: %w", err)
	}
	row.Sequence = seqNum
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	row.Timestamp = row.Timestamp.UTC()

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(FeedbackRecordsTable.Name).
		Columns(feedbackColumns...).
		Values(row.ID, row.Sequence, row.Timestamp, row.SubmissionID, row.LearningItemID,
			row.Model, row.Attempts, row.Grounded, string(row.Body)).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return row, fmt.Errorf("save feedback record: %w", err)
	}
	return row, nil
}

func (r *feedbackRepo) Get(ctx context.Context, id string) (*FeedbackRow, error) {
	b := entsql.Dialect(dialect.SQLite)
	query, args := b.Select(feedbackColumns...).
		From(b.Table(FeedbackRecordsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	row, err := scanFeedbackRow(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func (r *feedbackRepo) ListByLearningItem(ctx context.Context, learningItemID string, opts QueryOpts) ([]FeedbackRow, error) {
	b := entsql.Dialect(dialect.SQLite)
	sel := b.Select(feedbackColumns...).
		From(b.Table(FeedbackRecordsTable.Name)).
		Where(entsql.EQ("learning_item_id", learningItemID)).
		OrderBy(entsql.Desc("sequence"))
	applyQueryOpts(sel, opts)

	query, args := sel.Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback records: %w", err)
	}
	defer rows.Close()

	var out []FeedbackRow
	for rows.Next() {
		row, err := scanFeedbackRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func scanFeedbackRow(s rowScanner) (*FeedbackRow, error) {
	var row FeedbackRow
	var body string
	err := s.Scan(&row.ID, &row.Sequence, &row.Timestamp, &row.SubmissionID, &row.LearningItemID,
		&row.Model, &row.Attempts, &row.Grounded, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan feedback record: %w", err)
	}
	row.Body = []byte(body)
	return &row, nil
}
