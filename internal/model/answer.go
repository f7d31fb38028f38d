package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is one in-progress answer held in the transient store,
// keyed by (session, question). The response payload is opaque to the
// pipeline except for scoring.
type AnswerRecord struct {
	QuestionID uuid.UUID       `json:"question_id"`
	Response   json.RawMessage `json:"response"`
	// Timestamp is the client-supplied logical write time (epoch millis).
	// Conflict resolution is last-write-wins by this value, never by
	// arrival order at the server.
	Timestamp int64 `json:"ts"`
	// SavedAt is the server time the store last wrote this record.
	SavedAt time.Time `json:"saved_at"`
}

// AnswerUpdate is one entry of an auto-save batch as sent by the client.
// Timestamp is optional on the wire; the server stamps arrival time when
// it is absent.
type AnswerUpdate struct {
	QuestionID string          `json:"question_id" binding:"required,uuid"`
	Response   json.RawMessage `json:"response" binding:"required"`
	Timestamp  int64           `json:"timestamp" binding:"omitempty,min=0"`
}

// AutosaveRequest is the batch auto-save payload.
type AutosaveRequest struct {
	Responses []AnswerUpdate `json:"responses" binding:"dive"`
}

// AnswerError is the per-question failure entry of an auto-save outcome.
type AnswerError struct {
	QuestionID string `json:"question_id"`
	Error      string `json:"error"`
}

// AutoSaveOutcome is the response contract for one auto-save batch. It is
// never persisted.
type AutoSaveOutcome struct {
	Saved   int           `json:"saved"`
	Skipped int           `json:"skipped"`
	Errors  []AnswerError `json:"errors"`
	// NextAutoSave is the server-recommended time (epoch millis) for the
	// client's next auto-save call.
	NextAutoSave int64 `json:"next_auto_save"`
}

// Attempted returns the number of updates the batch tried to apply.
func (o *AutoSaveOutcome) Attempted() int {
	return o.Saved + o.Skipped + len(o.Errors)
}

// Success reports overall batch health: false once errors reach half the
// batch, signaling the client to surface a warning without blocking the
// exam. Empty batches are successful.
func (o *AutoSaveOutcome) Success() bool {
	n := o.Attempted()
	if n == 0 {
		return true
	}
	return len(o.Errors)*2 < n
}
