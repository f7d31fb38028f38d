package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/model"
)

// ResultService aggregates a completed session's durable responses into a
// final score. It implements ResultComputer for the completion saga and is
// also safe to call standalone, since recomputation from durable rows is
// idempotent.
type ResultService struct {
	responses ResponseStore
	sessions  SessionStore
	log       zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(responses ResponseStore, sessions SessionStore, log zerolog.Logger) *ResultService {
	return &ResultService{
		responses: responses,
		sessions:  sessions,
		log:       log.With().Str("component", "result_service").Logger(),
	}
}

// ComputeResult aggregates the session's persisted responses and stores
// the resulting score on the session row.
func (s *ResultService) ComputeResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	result, err := s.responses.AggregateBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("aggregate responses: %w", err)
	}

	if err := s.sessions.SetFinalScore(ctx, sessionID, result.Score); err != nil {
		return nil, fmt.Errorf("store final score: %w", err)
	}

	s.log.Debug().
		Str("session_id", sessionID.String()).
		Float64("score", result.Score).
		Int("unscored", result.Unscored).
		Msg("Result computed")

	return result, nil
}
