// Package comments stores chat entries pinned to video offsets.
package comments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/pkg/database"
)

// Repository is the chat collection of the Store.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a comments repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const insertComment = `INSERT INTO webinar_comments (id, webinar_id, name, comment, timestamp, message_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

const refreshCount = `UPDATE webinars
		SET chat_messages_count = (SELECT COUNT(*) FROM webinar_comments WHERE webinar_id = $1), updated_at = NOW()
		WHERE id = $1`

// List returns every comment of a webinar ordered by message index.
func (r *Repository) List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatEntry, error) {
	const query = `SELECT id, name, comment, timestamp, message_index, created_at
		FROM webinar_comments WHERE webinar_id = $1 ORDER BY message_index, created_at`
	rows, err := r.db.Query(ctx, query, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]models.ChatEntry, 0)
	for rows.Next() {
		var e models.ChatEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.AuthorName, &e.Body, &ts, &e.SequenceIndex, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.VideoOffset, err = timeline.ParseOffset(ts); err != nil {
			return nil, fmt.Errorf("comment %s: %w", e.ID, err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// AddComment writes a single entry. Rewriting an existing ID is a no-op.
func (r *Repository) AddComment(ctx context.Context, webinarID uuid.UUID, e models.ChatEntry) error {
	return r.AddComments(ctx, webinarID, []models.ChatEntry{e})
}

// AddComments writes entries atomically in the given order. Entries whose ID
// already exists are skipped, so replaying a batch is safe.
func (r *Repository) AddComments(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := insertAll(ctx, tx, webinarID, entries); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertAll(ctx context.Context, tx pgx.Tx, webinarID uuid.UUID, entries []models.ChatEntry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx, insertComment,
			e.ID, webinarID, e.AuthorName, e.Body, timeline.FormatOffset(e.VideoOffset), e.SequenceIndex, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert comment %s: %w", e.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, refreshCount, webinarID); err != nil {
		return fmt.Errorf("refresh chat count: %w", err)
	}
	return nil
}

// Count returns the number of stored comments for a webinar.
func (r *Repository) Count(ctx context.Context, webinarID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM webinar_comments WHERE webinar_id = $1`
	var n int
	err := r.db.QueryRow(ctx, query, webinarID).Scan(&n)
	return n, err
}
