// Package analytics aggregates what viewers did during a webinar's sessions.
package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/sessionlog"
)

// WatchTimeSource reads finished viewer sessions.
type WatchTimeSource interface {
	GetWatchTimeAggregates(ctx context.Context, webinarID uuid.UUID) (*sessionlog.WatchTimeAggregates, error)
}

// CommentCounter counts stored chat.
type CommentCounter interface {
	Count(ctx context.Context, webinarID uuid.UUID) (int, error)
}

// ResponseCounter counts stored question responses.
type ResponseCounter interface {
	CountResponses(ctx context.Context, webinarID uuid.UUID) (total, respondents int, err error)
}

// Summary is the per-webinar engagement report.
type Summary struct {
	WebinarID             uuid.UUID `json:"webinar_id"`
	Viewers               int       `json:"viewers"`
	TotalWatchSeconds     int64     `json:"total_watch_seconds"`
	AvgWatchSeconds       int64     `json:"avg_watch_seconds"`
	Comments              int       `json:"comments"`
	Responses             int       `json:"responses"`
	Respondents           int       `json:"respondents"`
	ResponseParticipation float64   `json:"response_participation_percent"`
}

// Summarizer builds Summaries from the repositories.
type Summarizer struct {
	sessions  WatchTimeSource
	comments  CommentCounter
	responses ResponseCounter
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(sessions WatchTimeSource, comments CommentCounter, responses ResponseCounter) *Summarizer {
	return &Summarizer{sessions: sessions, comments: comments, responses: responses}
}

// Summarize returns the engagement summary of a webinar.
func (s *Summarizer) Summarize(ctx context.Context, webinarID uuid.UUID) (*Summary, error) {
	agg, err := s.sessions.GetWatchTimeAggregates(ctx, webinarID)
	if err != nil {
		return nil, fmt.Errorf("watch time: %w", err)
	}
	comments, err := s.comments.Count(ctx, webinarID)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	total, respondents, err := s.responses.CountResponses(ctx, webinarID)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}

	out := &Summary{
		WebinarID:         webinarID,
		Viewers:           agg.DistinctViewers,
		TotalWatchSeconds: agg.TotalWatchSeconds,
		Comments:          comments,
		Responses:         total,
		Respondents:       respondents,
	}
	if agg.DistinctViewers > 0 {
		out.AvgWatchSeconds = agg.TotalWatchSeconds / int64(agg.DistinctViewers)
		out.ResponseParticipation = float64(respondents) / float64(agg.DistinctViewers) * 100
	}
	return out, nil
}
