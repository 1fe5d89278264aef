package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/filescan-registry/internal/models"
)

// TagRepository manages labels and their links to occurrences.
type TagRepository struct {
	db *sqlx.DB
}

// NewTagRepository constructs the repository.
func NewTagRepository(db *sqlx.DB) *TagRepository {
	return &TagRepository{db: db}
}

// List returns every known tag ordered by text.
func (r *TagRepository) List(ctx context.Context) ([]models.Tag, error) {
	tags := make([]models.Tag, 0)
	if err := r.db.SelectContext(ctx, &tags, `SELECT id, text FROM tags ORDER BY text`); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// Ensure returns the tag with the given text, creating it when needed.
func (r *TagRepository) Ensure(ctx context.Context, text string) (*models.Tag, error) {
	const query = `INSERT INTO tags (text) VALUES ($1)
	ON CONFLICT (text) DO UPDATE SET text = EXCLUDED.text
	RETURNING id, text`
	var tag models.Tag
	if err := r.db.GetContext(ctx, &tag, query, strings.TrimSpace(text)); err != nil {
		return nil, fmt.Errorf("ensure tag: %w", err)
	}
	return &tag, nil
}

// AttachToFile labels every occurrence of the file. Labels already present
// are left untouched.
func (r *TagRepository) AttachToFile(ctx context.Context, fileID string, tagID int64) error {
	return r.withTag(ctx, tagID, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO occurrence_tags (occurrence_id, tag_id)
		SELECT o.id, $2::bigint FROM occurrences o WHERE o.file_id = $1
		ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, fileID, tagID); err != nil {
			return fmt.Errorf("attach tag to file: %w", err)
		}
		return nil
	})
}

// DetachFromFile removes the label from every occurrence of the file.
func (r *TagRepository) DetachFromFile(ctx context.Context, fileID string, tagID int64) error {
	return r.withTag(ctx, tagID, func(tx *sqlx.Tx) error {
		const query = `DELETE FROM occurrence_tags
		WHERE tag_id = $2 AND occurrence_id IN (SELECT id FROM occurrences WHERE file_id = $1)`
		if _, err := tx.ExecContext(ctx, query, fileID, tagID); err != nil {
			return fmt.Errorf("detach tag from file: %w", err)
		}
		return nil
	})
}

// AttachToOccurrence labels a single occurrence.
func (r *TagRepository) AttachToOccurrence(ctx context.Context, occurrenceID string, tagID int64) error {
	return r.withTag(ctx, tagID, func(tx *sqlx.Tx) error {
		if err := occurrenceExists(ctx, tx, occurrenceID); err != nil {
			return err
		}
		const query = `INSERT INTO occurrence_tags (occurrence_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, occurrenceID, tagID); err != nil {
			return fmt.Errorf("attach tag to occurrence: %w", err)
		}
		return nil
	})
}

// DetachFromOccurrence removes the label from a single occurrence.
func (r *TagRepository) DetachFromOccurrence(ctx context.Context, occurrenceID string, tagID int64) error {
	return r.withTag(ctx, tagID, func(tx *sqlx.Tx) error {
		if err := occurrenceExists(ctx, tx, occurrenceID); err != nil {
			return err
		}
		const query = `DELETE FROM occurrence_tags WHERE occurrence_id = $1 AND tag_id = $2`
		if _, err := tx.ExecContext(ctx, query, occurrenceID, tagID); err != nil {
			return fmt.Errorf("detach tag from occurrence: %w", err)
		}
		return nil
	})
}

// withTag runs fn in a transaction after checking the tag exists. A missing
// tag surfaces as sql.ErrNoRows.
func (r *TagRepository) withTag(ctx context.Context, tagID int64, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err = tx.GetContext(ctx, &id, `SELECT id FROM tags WHERE id = $1`, tagID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tag tx: %w", err)
	}
	return nil
}

func occurrenceExists(ctx context.Context, tx *sqlx.Tx, occurrenceID string) error {
	var id string
	err := tx.GetContext(ctx, &id, `SELECT id FROM occurrences WHERE id = $1`, occurrenceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup occurrence: %w", err)
	}
	return err
}
