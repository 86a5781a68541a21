package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/schedule"
)

// AuthorizedLink pairs a pre-distributed access token with the subject it admits.
type AuthorizedLink struct {
	Token     string `json:"token"`
	SubjectID string `json:"user_id"`
}

// Webinar is one scheduled virtual-live showing of a pre-recorded video.
type Webinar struct {
	ID                uuid.UUID         `json:"id"`
	Title             string            `json:"title"`
	Schedule          schedule.Schedule `json:"-"`
	VideoURL          string            `json:"video_url,omitempty"`
	VimeoLink         string            `json:"vimeo_link,omitempty"`
	VideoKey          string            `json:"-"`               // S3 object key, presigned on access
	VideoDuration     time.Duration     `json:"-"`               // 0 until known
	AuthorizedLinks   []AuthorizedLink  `json:"-"`
	Questions         []QuestionCue     `json:"-"`
	ChatMessagesCount int               `json:"chat_messages_count"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

var vimeoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`),
	regexp.MustCompile(`vimeo\.com/video/(\d+)`),
	regexp.MustCompile(`vimeo\.com/(\d+)`),
}

// VimeoID extracts the numeric video id from the webinar's Vimeo link.
func (w *Webinar) VimeoID() (string, bool) {
	if w.VimeoLink == "" {
		return "", false
	}
	for _, p := range vimeoPatterns {
		if m := p.FindStringSubmatch(w.VimeoLink); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}
