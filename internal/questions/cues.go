// Package questions schedules question cues against video position and
// captures viewer responses.
package questions

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/timeline"
)

// DefaultWindow is how long a cue stays visible when none is stored.
const DefaultWindow = time.Minute

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrInvalidOption   = errors.New("answer is not one of the options")
	ErrClosed          = errors.New("responses are closed")
)

// Active returns the first cue whose window contains offset, or nil.
func Active(cues []models.QuestionCue, offset time.Duration) *models.QuestionCue {
	for i := range cues {
		c := &cues[i]
		w := c.Window
		if w <= 0 {
			w = DefaultWindow
		}
		if c.At <= offset && offset < c.At+w {
			return c
		}
	}
	return nil
}

// Find returns the cue with id.
func Find(cues []models.QuestionCue, id string) (*models.QuestionCue, bool) {
	for i := range cues {
		if cues[i].ID == id {
			return &cues[i], true
		}
	}
	return nil, false
}

// Submission is a viewer's raw answer.
type Submission struct {
	QuestionID  string
	Body        string
	SubjectName string
}

// Policy decides when responses are accepted.
type Policy struct {
	// Grace keeps responses open for this long after the session ends.
	Grace time.Duration
}

// Open reports whether a response may be recorded in state. endedAt is when
// the session was observed to end, zero if it has not.
func (p Policy) Open(state session.State, endedAt, now time.Time) bool {
	switch state.Phase {
	case session.PhaseLive:
		return true
	case session.PhaseEnded:
		return !endedAt.IsZero() && now.Sub(endedAt) <= p.Grace
	default:
		return false
	}
}

// NewResponse validates s against the webinar's cues and builds the response.
func NewResponse(w *models.Webinar, subjectID string, s Submission, at time.Duration, now time.Time) (models.Response, error) {
	cue, ok := Find(w.Questions, s.QuestionID)
	if !ok {
		return models.Response{}, ErrUnknownQuestion
	}
	body := strings.TrimSpace(s.Body)
	if body == "" {
		return models.Response{}, &timeline.ValidationError{Field: "response", Reason: "is required"}
	}
	if len(body) > timeline.MaxBodyLength {
		return models.Response{}, &timeline.ValidationError{Field: "response", Reason: "is too long"}
	}
	if cue.Type == models.QuestionTypeMCQ && !slices.Contains(cue.Options, body) {
		return models.Response{}, ErrInvalidOption
	}
	return models.Response{
		ID:           uuid.New(),
		WebinarID:    w.ID,
		WebinarTitle: w.Title,
		SubjectID:    subjectID,
		SubjectName:  strings.TrimSpace(s.SubjectName),
		QuestionID:   cue.ID,
		QuestionType: cue.Type,
		Body:         body,
		VideoOffset:  at.Truncate(time.Second),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ResponseKey groups responses so the latest answer per question wins.
func ResponseKey(r models.Response) string {
	return r.SubjectID + "\x00" + r.QuestionID
}
