package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/examhall/examhall-backend/internal/model"
)

// The session pipeline talks to its stores through small interfaces so the
// reconciler and orchestrator can be exercised against in-memory fakes.
// The concrete implementations are internal/transient (Redis) and
// internal/repository (PostgreSQL).

// AnswerStore is the transient, TTL-bound store of in-progress answers.
// Get returns (nil, nil) when no record exists for the question.
type AnswerStore interface {
	Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.AnswerRecord, error)
	Put(ctx context.Context, sessionID uuid.UUID, rec model.AnswerRecord, ttl time.Duration) error
	List(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error)
	Clear(ctx context.Context, sessionID uuid.UUID) error
}

// SessionStore is the durable record of exam sessions.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, finishedAt *time.Time) (bool, error)
	SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error
	ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SessionResult, int64, error)
}

// ResponseStore is the durable record of question responses.
type ResponseStore interface {
	UpsertBatch(ctx context.Context, sessionID uuid.UUID, rows []model.QuestionResponse) error
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	AggregateBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// QuestionSource bulk-fetches scoring metadata for a batch of questions.
type QuestionSource interface {
	GetMetaByIDs(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.QuestionMeta, error)
}

// ExamSource resolves the exam a session is started against.
type ExamSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// ResultComputer aggregates and stores the final result of a completed
// session. Consumed by the completion orchestrator as a collaborator.
type ResultComputer interface {
	ComputeResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}
