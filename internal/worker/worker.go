// Package worker replays store writes that session views could not complete.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/pkg/queue"
)

// ChatWriter writes chat batches. Writes must be idempotent by entry id.
type ChatWriter interface {
	AddComments(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error
}

// ResponseWriter upserts question responses.
type ResponseWriter interface {
	UpsertResponses(ctx context.Context, list []models.Response) error
}

// ChangePublisher announces chat writes to open views.
type ChangePublisher interface {
	PublishCommentsChanged(webinarID uuid.UUID)
}

// JobQueue is the consumer side of the flush queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// FlushProcessor processes spilled chat and response batches.
type FlushProcessor struct {
	comments  ChatWriter
	responses ResponseWriter
	changes   ChangePublisher
	queue     JobQueue
	logger    *zap.Logger
	backoff   time.Duration
	now       func() time.Time
}

// NewFlushProcessor creates a flush processor. changes may be nil.
func NewFlushProcessor(comments ChatWriter, responses ResponseWriter, changes ChangePublisher, q JobQueue, logger *zap.Logger) *FlushProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlushProcessor{
		comments:  comments,
		responses: responses,
		changes:   changes,
		queue:     q,
		logger:    logger,
		backoff:   queue.RetryBackoff,
		now:       time.Now,
	}
}

// Process executes one job.
func (p *FlushProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeChatFlush:
		var payload queue.ChatFlushPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if len(payload.Comments) == 0 {
			return nil
		}
		if err := p.comments.AddComments(ctx, payload.WebinarID, chatEntries(payload.Comments)); err != nil {
			return fmt.Errorf("write comments: %w", err)
		}
		if p.changes != nil {
			p.changes.PublishCommentsChanged(payload.WebinarID)
		}
		p.logger.Info("spilled chat written", zap.String("webinar_id", payload.WebinarID.String()), zap.Int("comments", len(payload.Comments)))
		return nil
	case queue.JobTypeResponseFlush:
		var payload queue.ResponseFlushPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if len(payload.Responses) == 0 {
			return nil
		}
		if err := p.responses.UpsertResponses(ctx, responses(payload, p.now())); err != nil {
			return fmt.Errorf("upsert responses: %w", err)
		}
		p.logger.Info("spilled responses written", zap.String("webinar_id", payload.WebinarID.String()), zap.Int("responses", len(payload.Responses)))
		return nil
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *FlushProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("flush worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *FlushProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
