package models

import (
	"time"

	"github.com/google/uuid"
)

// Response is a viewer's answer to a question cue.
type Response struct {
	ID           uuid.UUID     `json:"id"`
	WebinarID    uuid.UUID     `json:"webinar_id"`
	WebinarTitle string        `json:"webinar_title"`
	SubjectID    string        `json:"user_id"`
	SubjectName  string        `json:"user_name"`
	QuestionID   string        `json:"question_id"`
	QuestionType string        `json:"question_type"`
	Body         string        `json:"response"`
	VideoOffset  time.Duration `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
