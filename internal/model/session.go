package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Terminal reports whether the status is absorbing: no further transitions
// are permitted out of it.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusTerminated
}

// ExamSession represents one student's attempt at an exam.
//
// While the session is ACTIVE the transient answer store is the source of
// truth for its answers; the durable row only carries lifecycle state until
// completion writes the final record.
type ExamSession struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	UserID           int           `json:"user_id"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	TimeLimitMinutes int           `json:"time_limit_minutes"`
	FinalScore       *float64      `json:"final_score,omitempty"`
}

// Deadline returns the wall-clock instant at which the session's exam
// time runs out.
func (s *ExamSession) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.TimeLimitMinutes) * time.Minute)
}

// SessionState is the resume payload returned to a student reloading the
// exam page: everything autosaved so far plus the remaining clock.
type SessionState struct {
	SessionID        uuid.UUID      `json:"session_id"`
	ExamID           uuid.UUID      `json:"exam_id"`
	Status           SessionStatus  `json:"status"`
	Answers          []AnswerRecord `json:"answers"`
	RemainingSeconds float64        `json:"remaining_seconds"`
}

// SessionResult is one row of a proctor-facing results listing.
type SessionResult struct {
	SessionID  uuid.UUID     `json:"session_id"`
	UserID     int           `json:"user_id"`
	Name       string        `json:"name"`
	Username   string        `json:"username"`
	Status     SessionStatus `json:"status"`
	FinalScore *float64      `json:"score"`
	StartedAt  *time.Time    `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
}
