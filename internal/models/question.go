package models

import "time"

// Question types understood by the cue schedule.
const (
	QuestionTypeText = "text"
	QuestionTypeMCQ  = "mcq"
)

// QuestionCue is a question shown to viewers while playback is inside
// [At, At+Window).
type QuestionCue struct {
	ID      string        `json:"id"`
	Prompt  string        `json:"question"`
	Type    string        `json:"type"`
	Options []string      `json:"options,omitempty"`
	At      time.Duration `json:"-"`
	Window  time.Duration `json:"-"`
}
