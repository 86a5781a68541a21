package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatEntry is a chat message pinned to a position in the video timeline.
type ChatEntry struct {
	ID            uuid.UUID     `json:"id"`
	AuthorName    string        `json:"name"`
	Body          string        `json:"comment"`
	VideoOffset   time.Duration `json:"-"`
	SequenceIndex int           `json:"message_index"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PendingChatEntry is a ChatEntry authored during a Live session that has not
// been flushed to the store yet.
type PendingChatEntry struct {
	ChatEntry
	LocalID string `json:"local_id"`
}
