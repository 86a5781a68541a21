package questions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/pkg/database"
)

// Repository handles cue and response persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a questions repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// ListCues returns a webinar's question cues ordered by position.
func (r *Repository) ListCues(ctx context.Context, webinarID uuid.UUID) ([]models.QuestionCue, error) {
	const query = `SELECT id, prompt, type, options, at_seconds, window_seconds
		FROM webinar_questions WHERE webinar_id = $1 ORDER BY at_seconds, id`
	rows, err := r.db.Query(ctx, query, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.QuestionCue
	for rows.Next() {
		var c models.QuestionCue
		var at, window int
		if err := rows.Scan(&c.ID, &c.Prompt, &c.Type, &c.Options, &at, &window); err != nil {
			return nil, err
		}
		c.At = time.Duration(at) * time.Second
		c.Window = time.Duration(window) * time.Second
		list = append(list, c)
	}
	return list, rows.Err()
}

const upsertResponse = `INSERT INTO webinar_responses
		(id, webinar_id, user_id, user_name, question_id, question_type, response, timestamp, webinar_title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (webinar_id, user_id, question_id)
		DO UPDATE SET response = EXCLUDED.response, timestamp = EXCLUDED.timestamp,
			user_name = EXCLUDED.user_name, updated_at = EXCLUDED.updated_at`

// UpsertResponses writes responses in one transaction. A later answer to the
// same question replaces the earlier one.
func (r *Repository) UpsertResponses(ctx context.Context, list []models.Response) error {
	if len(list) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, resp := range list {
		if _, err := tx.Exec(ctx, upsertResponse,
			resp.ID, resp.WebinarID, resp.SubjectID, resp.SubjectName, resp.QuestionID, resp.QuestionType,
			resp.Body, timeline.FormatOffset(resp.VideoOffset), resp.WebinarTitle, resp.CreatedAt, resp.UpdatedAt,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert response %s: %w", resp.QuestionID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountResponses returns the stored responses of a webinar and how many
// distinct viewers gave them.
func (r *Repository) CountResponses(ctx context.Context, webinarID uuid.UUID) (total, respondents int, err error) {
	const query = `SELECT COUNT(*), COUNT(DISTINCT user_id) FROM webinar_responses WHERE webinar_id = $1`
	err = r.db.QueryRow(ctx, query, webinarID).Scan(&total, &respondents)
	return total, respondents, err
}
