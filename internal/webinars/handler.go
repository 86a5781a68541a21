package webinars

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/access"
	"github.com/aura-webinar/virtual-live/internal/auth"
	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/realtime"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/internal/viewer"
	"github.com/aura-webinar/virtual-live/pkg/metrics"
	"github.com/aura-webinar/virtual-live/pkg/response"
)

// Store loads webinars.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	List(ctx context.Context) ([]models.Webinar, error)
}

// CommentLister reads a webinar's chat snapshot.
type CommentLister interface {
	List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatEntry, error)
}

// VideoPresigner turns a stored video key into a playable URL.
type VideoPresigner interface {
	VideoURL(ctx context.Context, key string) (string, error)
}

// Options configure a Handler. Zero values use defaults.
type Options struct {
	Resolver   *schedule.Resolver
	Classifier session.Classifier
	Tolerance  time.Duration
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// VideoSource is what the Player needs to start playback.
type VideoSource struct {
	URL     string `json:"url,omitempty"`
	VimeoID string `json:"vimeo_id,omitempty"`
}

// AccessResponse is returned once the access gate admitted a token.
type AccessResponse struct {
	Webinar     *models.Webinar     `json:"webinar"`
	SubjectID   string              `json:"subject_id"`
	ViewerToken string              `json:"viewer_token"`
	State       viewer.StatePayload `json:"state"`
	Video       VideoSource         `json:"video"`
}

// Handler handles webinar HTTP endpoints.
type Handler struct {
	repo       Store
	comments   CommentLister
	jwt        *auth.JWTService
	videos     VideoPresigner
	resolver   *schedule.Resolver
	classifier session.Classifier
	tolerance  time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler creates a webinar handler. videos may be nil when no bucket is configured.
func NewHandler(repo Store, comments CommentLister, jwt *auth.JWTService, videos VideoPresigner, opts Options) *Handler {
	h := &Handler{
		repo:       repo,
		comments:   comments,
		jwt:        jwt,
		videos:     videos,
		resolver:   opts.Resolver,
		classifier: opts.Classifier,
		tolerance:  opts.Tolerance,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Clock,
	}
	if h.resolver == nil {
		h.resolver = schedule.NewResolver(nil)
	}
	if h.tolerance <= 0 {
		h.tolerance = DefaultTolerance
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Current handles GET /webinars/current?t=. It picks the ongoing or next
// webinar and admits the token against it.
func (h *Handler) Current(c *gin.Context) {
	token := c.Query("t")
	if token == "" {
		response.BadRequest(c, "t required")
		return
	}
	now := h.now()
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list webinars failed", zap.Error(err))
		response.Internal(c, "failed to list webinars")
		return
	}
	sel, err := SelectCurrent(list, h.resolver, h.tolerance, now)
	if err != nil {
		response.NotFound(c, "no ongoing or upcoming webinar")
		return
	}
	w, err := h.repo.GetByID(c.Request.Context(), sel.Webinar.ID)
	if err != nil {
		h.logger.Error("load webinar failed", zap.String("webinar_id", sel.Webinar.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load webinar")
		return
	}
	h.admit(c, w, token, now)
}

// Access handles GET /webinars/:id/access?t=.
func (h *Handler) Access(c *gin.Context) {
	w, ok := h.load(c)
	if !ok {
		return
	}
	token := c.Query("t")
	if token == "" {
		response.BadRequest(c, "t required")
		return
	}
	h.admit(c, w, token, h.now())
}

// admit runs the access gate, then resolves the schedule. A denied token gets
// no state or video.
func (h *Handler) admit(c *gin.Context, w *models.Webinar, token string, now time.Time) {
	subjectID, err := access.Authorize(token, w.AuthorizedLinks)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncAccessDenied()
		}
		response.Forbidden(c, "access denied")
		return
	}
	start, ok := h.resolve(c, w, now)
	if !ok {
		return
	}
	viewerToken, err := h.jwt.Generate(subjectID, w.ID)
	if err != nil {
		response.Internal(c, "failed to issue viewer token")
		return
	}
	video, err := h.videoSource(c.Request.Context(), w)
	if err != nil {
		h.logger.Error("presign video failed", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "video unavailable")
		return
	}
	state := h.classifier.Classify(start, w.VideoDuration, now)
	response.OK(c, AccessResponse{
		Webinar:     w,
		SubjectID:   subjectID,
		ViewerToken: viewerToken,
		State:       viewer.NewStatePayload(state, start, w.VideoDuration),
		Video:       video,
	})
}

func (h *Handler) videoSource(ctx context.Context, w *models.Webinar) (VideoSource, error) {
	var v VideoSource
	if id, ok := w.VimeoID(); ok {
		v.VimeoID = id
	}
	if w.VideoKey != "" && h.videos != nil {
		url, err := h.videos.VideoURL(ctx, w.VideoKey)
		if err != nil {
			return VideoSource{}, err
		}
		v.URL = url
		return v, nil
	}
	v.URL = w.VideoURL
	if v.URL == "" {
		v.URL = w.VimeoLink
	}
	return v, nil
}

// State handles GET /webinars/:id/state.
func (h *Handler) State(c *gin.Context) {
	w, ok := h.load(c)
	if !ok {
		return
	}
	now := h.now()
	start, ok := h.resolve(c, w, now)
	if !ok {
		return
	}
	st := h.classifier.Classify(start, w.VideoDuration, now)
	response.OK(c, viewer.NewStatePayload(st, start, w.VideoDuration))
}

// Comments handles GET /webinars/:id/comments?at=HH:MM:SS. Without at, the
// wall-clock playback position is used.
func (h *Handler) Comments(c *gin.Context) {
	w, ok := h.load(c)
	if !ok {
		return
	}
	var at time.Duration
	if raw := c.Query("at"); raw != "" {
		d, err := timeline.ParseOffset(raw)
		if err != nil {
			response.BadRequest(c, "invalid at")
			return
		}
		at = d
	} else {
		now := h.now()
		start, ok := h.resolve(c, w, now)
		if !ok {
			return
		}
		st := h.classifier.Classify(start, w.VideoDuration, now)
		if st.Phase == session.PhaseUpcoming {
			response.OK(c, viewer.NewChatPayload(nil))
			return
		}
		at = st.Elapsed
	}
	all, err := h.comments.List(c.Request.Context(), w.ID)
	if err != nil {
		h.logger.Error("list comments failed", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		response.Internal(c, "failed to list comments")
		return
	}
	response.OK(c, viewer.NewChatPayload(timeline.VisibleEntries(all, at)))
}

// AudienceCount returns a handler reporting connected viewers of a webinar.
func (h *Handler) AudienceCount(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		webinarID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid webinar id")
			return
		}
		response.OK(c, gin.H{"webinar_id": webinarID, "count": hub.AudienceCount(webinarID)})
	}
}

func (h *Handler) load(c *gin.Context) (*models.Webinar, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid webinar id")
		return nil, false
	}
	w, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "webinar not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load webinar failed", zap.String("webinar_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load webinar")
		return nil, false
	}
	return w, true
}

func (h *Handler) resolve(c *gin.Context, w *models.Webinar, now time.Time) (time.Time, bool) {
	start, err := h.resolver.Resolve(w.Schedule, now)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncUnresolvable()
		}
		h.logger.Warn("schedule unresolvable", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		response.UnprocessableEntity(c, "webinar schedule cannot be resolved")
		return time.Time{}, false
	}
	return start, true
}
