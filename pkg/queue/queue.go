package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueFlushes is the Redis list key for spilled store writes.
	QueueFlushes = "worker:flushes"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 5
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// dequeueTimeout bounds one BLPOP so the worker notices cancellation.
	dequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeChatFlush     JobType = "chat_flush"
	JobTypeResponseFlush JobType = "response_flush"
)

// SpilledComment is a chat entry that could not be written when its view
// closed.
type SpilledComment struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Comment       string    `json:"comment"`
	OffsetSeconds int64     `json:"offset_seconds"`
	MessageIndex  int       `json:"message_index"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatFlushPayload is the payload for chat flush jobs.
type ChatFlushPayload struct {
	WebinarID uuid.UUID        `json:"webinar_id"`
	Comments  []SpilledComment `json:"comments"`
}

// SpilledResponse is a question response that could not be written.
type SpilledResponse struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     string    `json:"user_id"`
	SubjectName   string    `json:"user_name"`
	QuestionID    string    `json:"question_id"`
	QuestionType  string    `json:"question_type"`
	Body          string    `json:"response"`
	OffsetSeconds int64     `json:"offset_seconds"`
	CreatedAt     time.Time `json:"created_at"`
}

// ResponseFlushPayload is the payload for response flush jobs.
type ResponseFlushPayload struct {
	WebinarID    uuid.UUID         `json:"webinar_id"`
	WebinarTitle string            `json:"webinar_title"`
	Responses    []SpilledResponse `json:"responses"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Lists is the part of the Redis client the queue needs.
type Lists interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client Lists
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client Lists, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueChatFlush enqueues a spilled chat batch.
func (q *Queue) EnqueueChatFlush(ctx context.Context, payload ChatFlushPayload) error {
	return q.enqueue(ctx, JobTypeChatFlush, payload,
		zap.String("webinar_id", payload.WebinarID.String()), zap.Int("comments", len(payload.Comments)))
}

// EnqueueResponseFlush enqueues a spilled response batch.
func (q *Queue) EnqueueResponseFlush(ctx context.Context, payload ResponseFlushPayload) error {
	return q.enqueue(ctx, JobTypeResponseFlush, payload,
		zap.String("webinar_id", payload.WebinarID.String()), zap.Int("responses", len(payload.Responses)))
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload any, fields ...zap.Field) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueFlushes, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", append(fields, zap.String("job_id", job.ID), zap.String("type", string(typ)))...)
	return nil
}

// Dequeue waits up to a few seconds for a job. It returns nil, nil when none
// arrived or the payload was unreadable.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueFlushes).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueFlushes, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Depth returns the number of waiting and dead-lettered jobs.
func (q *Queue) Depth(ctx context.Context) (pending, dead int64, err error) {
	if pending, err = q.client.LLen(ctx, QueueFlushes).Result(); err != nil {
		return 0, 0, err
	}
	if dead, err = q.client.LLen(ctx, QueueDLQ).Result(); err != nil {
		return 0, 0, err
	}
	return pending, dead, nil
}
