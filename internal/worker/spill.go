package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/pkg/queue"
)

// Enqueuer is the producer side of the flush queue.
type Enqueuer interface {
	EnqueueChatFlush(ctx context.Context, payload queue.ChatFlushPayload) error
	EnqueueResponseFlush(ctx context.Context, payload queue.ResponseFlushPayload) error
}

// Spiller hands writes that failed at view teardown to the worker.
type Spiller struct {
	queue Enqueuer
}

// NewSpiller creates a Spiller on q.
func NewSpiller(q Enqueuer) *Spiller {
	return &Spiller{queue: q}
}

// SpillChat enqueues entries for a later batch write.
func (s *Spiller) SpillChat(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.queue.EnqueueChatFlush(ctx, queue.ChatFlushPayload{WebinarID: webinarID, Comments: spilledComments(entries)})
}

// SpillResponses enqueues responses for a later upsert.
func (s *Spiller) SpillResponses(ctx context.Context, w *models.Webinar, list []models.Response) error {
	if len(list) == 0 {
		return nil
	}
	return s.queue.EnqueueResponseFlush(ctx, queue.ResponseFlushPayload{
		WebinarID:    w.ID,
		WebinarTitle: w.Title,
		Responses:    spilledResponses(list),
	})
}

func spilledComments(entries []models.ChatEntry) []queue.SpilledComment {
	out := make([]queue.SpilledComment, len(entries))
	for i, e := range entries {
		out[i] = queue.SpilledComment{
			ID:            e.ID,
			Name:          e.AuthorName,
			Comment:       e.Body,
			OffsetSeconds: int64(e.VideoOffset / time.Second),
			MessageIndex:  e.SequenceIndex,
			CreatedAt:     e.CreatedAt,
		}
	}
	return out
}

func chatEntries(comments []queue.SpilledComment) []models.ChatEntry {
	out := make([]models.ChatEntry, len(comments))
	for i, c := range comments {
		out[i] = models.ChatEntry{
			ID:            c.ID,
			AuthorName:    c.Name,
			Body:          c.Comment,
			VideoOffset:   time.Duration(c.OffsetSeconds) * time.Second,
			SequenceIndex: c.MessageIndex,
			CreatedAt:     c.CreatedAt,
		}
	}
	return out
}

func spilledResponses(list []models.Response) []queue.SpilledResponse {
	out := make([]queue.SpilledResponse, len(list))
	for i, r := range list {
		out[i] = queue.SpilledResponse{
			ID:            r.ID,
			SubjectID:     r.SubjectID,
			SubjectName:   r.SubjectName,
			QuestionID:    r.QuestionID,
			QuestionType:  r.QuestionType,
			Body:          r.Body,
			OffsetSeconds: int64(r.VideoOffset / time.Second),
			CreatedAt:     r.CreatedAt,
		}
	}
	return out
}

func responses(p queue.ResponseFlushPayload, now time.Time) []models.Response {
	out := make([]models.Response, len(p.Responses))
	for i, r := range p.Responses {
		out[i] = models.Response{
			ID:           r.ID,
			WebinarID:    p.WebinarID,
			WebinarTitle: p.WebinarTitle,
			SubjectID:    r.SubjectID,
			SubjectName:  r.SubjectName,
			QuestionID:   r.QuestionID,
			QuestionType: r.QuestionType,
			Body:         r.Body,
			VideoOffset:  time.Duration(r.OffsetSeconds) * time.Second,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    now,
		}
	}
	return out
}
