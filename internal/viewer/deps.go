package viewer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/pkg/metrics"
)

// CommentStore is the chat collection: snapshot reads and writes.
type CommentStore interface {
	List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatEntry, error)
	AddComment(ctx context.Context, webinarID uuid.UUID, e models.ChatEntry) error
	AddComments(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error
}

// ResponseStore persists question responses.
type ResponseStore interface {
	UpsertResponses(ctx context.Context, list []models.Response) error
}

// SessionRecorder stores watch time when a view closes.
type SessionRecorder interface {
	Record(ctx context.Context, log models.ViewerSessionLog) error
}

// Spiller takes over writes that still failed at teardown.
type Spiller interface {
	SpillChat(ctx context.Context, webinarID uuid.UUID, entries []models.ChatEntry) error
	SpillResponses(ctx context.Context, webinar *models.Webinar, list []models.Response) error
}

// ChangeFeed delivers Store change notifications for a webinar and announces
// local writes to other views.
type ChangeFeed interface {
	Subscribe(webinarID uuid.UUID, notify func()) (cancel func())
	PublishCommentsChanged(webinarID uuid.UUID)
}

// Sink receives everything a view pushes to its viewer.
type Sink interface {
	Push(event string, data any)
}

// Deps are shared by every view of a process.
type Deps struct {
	Comments   CommentStore
	Responses  ResponseStore
	Sessions   SessionRecorder // optional
	Spill      Spiller         // optional
	Changes    ChangeFeed      // optional
	Resolver   *schedule.Resolver
	Classifier session.Classifier
	Metrics    *metrics.Metrics // optional
	Logger     *zap.Logger

	Clock         func() time.Time
	Tick          time.Duration
	FlushTimeout  time.Duration
	FlushRetry    time.Duration
	ResponseGrace time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Resolver == nil {
		d.Resolver = schedule.NewResolver(nil)
	}
	if d.Tick <= 0 {
		d.Tick = time.Second
	}
	if d.FlushTimeout <= 0 {
		d.FlushTimeout = 10 * time.Second
	}
	if d.FlushRetry <= 0 {
		d.FlushRetry = 5 * time.Second
	}
	if d.ResponseGrace <= 0 {
		d.ResponseGrace = 5 * time.Minute
	}
	return d
}
