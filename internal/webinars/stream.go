package webinars

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/internal/viewer"
	"github.com/aura-webinar/virtual-live/pkg/response"
)

// maxSpeed bounds replay speed so a client cannot turn the stream into a dump.
const maxSpeed = 1000.0

// Stream handles GET /webinars/:id/comments/stream?from=&speed=. It replays
// chat as server-sent events, waiting between entries for the offset gap
// scaled by speed. An "end" event closes the replay.
func (h *Handler) Stream(c *gin.Context) {
	w, ok := h.load(c)
	if !ok {
		return
	}
	var from time.Duration
	if raw := c.Query("from"); raw != "" {
		d, err := timeline.ParseOffset(raw)
		if err != nil {
			response.BadRequest(c, "invalid from")
			return
		}
		from = d
	}
	speed := 1.0
	if raw := c.Query("speed"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.BadRequest(c, "invalid speed")
			return
		}
		if f > 0 {
			speed = min(f, maxSpeed)
		}
	}

	all, err := h.comments.List(c.Request.Context(), w.ID)
	if err != nil {
		h.logger.Error("list comments failed", zap.String("webinar_id", w.ID.String()), zap.Error(err))
		response.Internal(c, "failed to list comments")
		return
	}
	sorted := append(all[:0:0], all...)
	timeline.Sort(sorted)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	prev := from
	for _, e := range sorted {
		if e.VideoOffset < from {
			continue
		}
		if gap := e.VideoOffset - prev; gap > 0 {
			timer := time.NewTimer(time.Duration(float64(gap) / speed))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		c.SSEvent(viewer.EventChat, viewer.NewChatMessage(e))
		c.Writer.Flush()
		prev = e.VideoOffset
	}
	c.SSEvent("end", gin.H{"at": timeline.FormatOffset(prev)})
	c.Writer.Flush()
}
