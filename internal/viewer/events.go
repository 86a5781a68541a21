package viewer

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/session"
	"github.com/aura-webinar/virtual-live/internal/timeline"
)

// Events pushed to the Sink.
const (
	EventState    = "state"
	EventChat     = "chat"
	EventSeek     = "seek"
	EventQuestion = "question"
	EventError    = "error"
)

// PlayerEventKind names a Player SDK callback.
type PlayerEventKind string

const (
	PlayerLoaded     PlayerEventKind = "loaded"
	PlayerError      PlayerEventKind = "error"
	PlayerTimeUpdate PlayerEventKind = "timeupdate"
	PlayerPlay       PlayerEventKind = "play"
	PlayerPause      PlayerEventKind = "pause"
	PlayerEnded      PlayerEventKind = "ended"
)

// PlayerEvent is one Player callback forwarded by the client.
type PlayerEvent struct {
	Kind     PlayerEventKind `json:"kind"`
	Seconds  float64         `json:"seconds,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// StatePayload is the body of a state event.
type StatePayload struct {
	Phase            session.Phase `json:"phase"`
	StartsAt         time.Time     `json:"starts_at"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	ElapsedSeconds   int64         `json:"elapsed_seconds"`
	DurationSeconds  int64         `json:"duration_seconds,omitempty"`
}

// NewStatePayload renders a classification for the wire.
func NewStatePayload(st session.State, start time.Time, duration time.Duration) StatePayload {
	return StatePayload{
		Phase:            st.Phase,
		StartsAt:         start,
		RemainingSeconds: int64(st.Remaining / time.Second),
		ElapsedSeconds:   int64(st.Elapsed / time.Second),
		DurationSeconds:  int64(duration / time.Second),
	}
}

// ChatMessage is a chat entry as the client sees it.
type ChatMessage struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Comment      string    `json:"comment"`
	Timestamp    string    `json:"timestamp"`
	MessageIndex int       `json:"message_index"`
}

// ChatPayload is the body of a chat event: the full visible list.
type ChatPayload struct {
	Messages []ChatMessage `json:"messages"`
}

// NewChatMessage renders one entry for the wire.
func NewChatMessage(e models.ChatEntry) ChatMessage {
	return ChatMessage{
		ID:           e.ID,
		Name:         e.AuthorName,
		Comment:      e.Body,
		Timestamp:    timeline.FormatOffset(e.VideoOffset),
		MessageIndex: e.SequenceIndex,
	}
}

// NewChatPayload renders visible entries for the wire.
func NewChatPayload(entries []models.ChatEntry) ChatPayload {
	msgs := make([]ChatMessage, len(entries))
	for i, e := range entries {
		msgs[i] = NewChatMessage(e)
	}
	return ChatPayload{Messages: msgs}
}

// SeekPayload asks the Player to jump to a position.
type SeekPayload struct {
	Seconds int64 `json:"seconds"`
}

// QuestionPayload carries the active cue, or nil when none is active.
type QuestionPayload struct {
	Question *models.QuestionCue `json:"question"`
}

// ErrorPayload reports a contained error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
