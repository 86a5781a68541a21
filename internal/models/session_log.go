package models

import (
	"time"

	"github.com/google/uuid"
)

// ViewerSessionLog tracks one viewer's session: join/leave and watch duration.
type ViewerSessionLog struct {
	ID           uuid.UUID  `json:"id"`
	WebinarID    uuid.UUID  `json:"webinar_id"`
	SubjectID    string     `json:"user_id"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
}
