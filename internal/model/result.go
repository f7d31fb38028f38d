package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Correctness is the tri-state outcome of quick scoring. Unknown means the
// question could not be objectively auto-scored (essay, matching, malformed
// payloads) and needs manual grading.
type Correctness string

const (
	CorrectnessCorrect   Correctness = "correct"
	CorrectnessIncorrect Correctness = "incorrect"
	CorrectnessUnknown   Correctness = "unknown"
)

// Bool maps the tri-state onto the durable store's nullable boolean:
// nil for unknown.
func (c Correctness) Bool() *bool {
	switch c {
	case CorrectnessCorrect:
		t := true
		return &t
	case CorrectnessIncorrect:
		f := false
		return &f
	default:
		return nil
	}
}

// QuestionResponse is the permanent record of one answered question,
// written in a single batch at completion and never mutated by the
// auto-save path afterwards.
type QuestionResponse struct {
	ID           int64           `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	QuestionID   uuid.UUID       `json:"question_id"`
	Response     json.RawMessage `json:"response"`
	IsCorrect    *bool           `json:"is_correct"` // nil = needs manual grading
	PointsEarned float64         `json:"points_earned"`
	PersistedAt  time.Time       `json:"persisted_at"`
}

// ExamResult is the aggregated outcome of a completed session.
type ExamResult struct {
	SessionID      uuid.UUID `json:"session_id"`
	PointsEarned   float64   `json:"points_earned"`
	PointsPossible float64   `json:"points_possible"`
	Correct        int       `json:"correct"`
	Incorrect      int       `json:"incorrect"`
	Unscored       int       `json:"unscored"`
	// Score is the percentage of auto-scorable points earned; 0 when the
	// exam has no scorable points.
	Score float64 `json:"score"`
}

// FinalizedSession is the completion response: the closed session plus its
// computed result.
type FinalizedSession struct {
	Session ExamSession `json:"session"`
	Result  ExamResult  `json:"result"`
}
