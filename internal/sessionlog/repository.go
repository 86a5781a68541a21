// Package sessionlog records how long each viewer watched a webinar.
package sessionlog

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/pkg/database"
)

// Repository handles user_session_logs.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a session log repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Record inserts a finished viewer session.
func (r *Repository) Record(ctx context.Context, log models.ViewerSessionLog) error {
	const q = `INSERT INTO user_session_logs (webinar_id, user_id, joined_at, left_at, watch_seconds)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q, log.WebinarID, log.SubjectID, log.JoinedAt, log.LeftAt, log.WatchSeconds)
	return err
}

// WatchTimeAggregates holds sum of watch_seconds and distinct viewer count for a webinar.
type WatchTimeAggregates struct {
	TotalWatchSeconds int64 `json:"total_watch_seconds"`
	DistinctViewers   int   `json:"distinct_viewers"`
}

// GetWatchTimeAggregates returns total watch time and distinct viewers for a webinar.
func (r *Repository) GetWatchTimeAggregates(ctx context.Context, webinarID uuid.UUID) (*WatchTimeAggregates, error) {
	const q = `SELECT COALESCE(SUM(watch_seconds), 0), COUNT(DISTINCT user_id) FROM user_session_logs WHERE webinar_id = $1 AND left_at IS NOT NULL`
	var agg WatchTimeAggregates
	err := r.db.QueryRow(ctx, q, webinarID).Scan(&agg.TotalWatchSeconds, &agg.DistinctViewers)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
