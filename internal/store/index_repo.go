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

// indexRepo implements IndexRepo. Rebuilds replace the row for a learning
// item wholesale.
type indexRepo struct {
	db *sql.DB
}

func (r *indexRepo) Save(ctx context.Context, rec IndexRecord) error {
	if rec.LearningItemID == "" {
		return fmt.Errorf("save context index: empty learning item id")
	}
	now := time.Now().UTC()
	if rec.BuiltAt.IsZero() {
		rec.BuiltAt = now
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(ContextIndexesTable.Name).
		Columns("learning_item_id", "content_hash", "config_hash", "format_version", "artifact", "built_at", "updated_at").
		Values(rec.LearningItemID, rec.ContentHash, rec.ConfigHash, rec.FormatVersion, string(rec.Artifact), rec.BuiltAt.UTC(), now).
		OnConflict(
			entsql.ConflictColumns("learning_item_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save context index %s: %w", rec.LearningItemID, err)
	}
	return nil
}

func (r *indexRepo) Load(ctx context.Context, learningItemID string) (*IndexRecord, error) {
	b := entsql.Dialect(dialect.SQLite)
	query, args := b.Select("learning_item_id", "content_hash", "config_hash", "format_version", "artifact", "built_at", "updated_at").
		From(b.Table(ContextIndexesTable.Name)).
		Where(entsql.EQ("learning_item_id", learningItemID)).
		Query()

	var rec IndexRecord
	var artifact string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.LearningItemID, &rec.ContentHash, &rec.ConfigHash, &rec.FormatVersion,
		&artifact, &rec.BuiltAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load context index %s: %w", learningItemID, err)
	}
	rec.Artifact = []byte(artifact)
	return &rec, nil
}

func (r *indexRepo) List(ctx context.Context) ([]IndexRecord, error) {
	b := entsql.Dialect(dialect.SQLite)
	query, args := b.Select("learning_item_id", "content_hash", "config_hash", "format_version", "built_at", "updated_at").
		From(b.Table(ContextIndexesTable.Name)).
		OrderBy("learning_item_id").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list context indexes: %w", err)
	}
	defer rows.Close()

	var out []IndexRecord
	for rows.Next() {
		var rec IndexRecord
		if err := rows.Scan(&rec.LearningItemID, &rec.ContentHash, &rec.ConfigHash, &rec.FormatVersion, &rec.BuiltAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan context index: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
