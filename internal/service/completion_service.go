package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/scoring"
)

// CompletionService drains a session's transient answers into the durable
// store and finalizes the session.
//
// The step ordering is the load-bearing invariant: drain, durable write,
// durable finalize, and only then the transient clear. A failure at any
// point before the clear leaves the transient store untouched as the
// recovery source, and the returned CompletionError says whether a retry
// is safe.
type CompletionService struct {
	answers   AnswerStore
	sessions  SessionStore
	responses ResponseStore
	questions QuestionSource
	results   ResultComputer
	cfg       *config.Config
	log       zerolog.Logger
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(
	answers AnswerStore,
	sessions SessionStore,
	responses ResponseStore,
	questions QuestionSource,
	results ResultComputer,
	cfg *config.Config,
	log zerolog.Logger,
) *CompletionService {
	return &CompletionService{
		answers:   answers,
		sessions:  sessions,
		responses: responses,
		questions: questions,
		results:   results,
		cfg:       cfg,
		log:       log.With().Str("component", "completion_service").Logger(),
	}
}

// Complete finalizes a student-submitted session. Only an active session
// may be completed this way.
func (s *CompletionService) Complete(ctx context.Context, sess *model.ExamSession) (*model.FinalizedSession, error) {
	if sess.Status != model.SessionStatusActive {
		if sess.Status.Terminal() {
			return nil, ErrSessionFinished
		}
		return nil, &InvalidStateError{
			Op:       "complete",
			Current:  sess.Status,
			Expected: []model.SessionStatus{model.SessionStatusActive},
		}
	}
	return s.finalize(ctx, sess)
}

func (s *CompletionService) finalize(ctx context.Context, sess *model.ExamSession) (*model.FinalizedSession, error) {
	log := s.log.With().Str("session_id", sess.ID.String()).Logger()

	// Point-in-time snapshot of the transient store. A stray auto-save
	// landing after this read writes a record that will never be drained;
	// the active-state guard at the boundary is the primary defense.
	records, err := s.answers.List(ctx, sess.ID)
	if err != nil {
		return nil, &CompletionError{Step: "drain", Recoverable: true, Err: err}
	}

	rows, err := s.scoreAll(ctx, sess, records)
	if err != nil {
		return nil, &CompletionError{Step: "score", Recoverable: true, Err: err}
	}

	if len(rows) > 0 {
		if err := s.responses.UpsertBatch(ctx, sess.ID, rows); err != nil {
			return nil, &CompletionError{Step: "persist", Recoverable: true, Err: err}
		}
	}

	if err := s.verify(ctx, sess, len(rows), log); err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.sessions.UpdateStatus(ctx, sess.ID,
		[]model.SessionStatus{model.SessionStatusActive},
		model.SessionStatusCompleted, &now)
	if err != nil {
		// Durable rows are already written and the upsert is idempotent,
		// so re-running the whole completion is safe.
		return nil, &CompletionError{Step: "finalize", Recoverable: true, Err: err}
	}
	if !ok {
		current := sess.Status
		if latest, ferr := s.sessions.GetByID(ctx, sess.ID); ferr == nil {
			current = latest.Status
		}
		return nil, &InvalidStateError{
			Op:       "complete",
			Current:  current,
			Expected: []model.SessionStatus{model.SessionStatusActive},
		}
	}
	sess.Status = model.SessionStatusCompleted
	sess.FinishedAt = &now

	result, err := s.results.ComputeResult(ctx, sess.ID)
	if err != nil {
		// The session is already completed; the result can be recomputed
		// from the durable rows at any time.
		log.Error().Err(err).Msg("Result computation failed after completion")
		return nil, &CompletionError{Step: "result", Recoverable: false, Err: err}
	}
	score := result.Score
	sess.FinalScore = &score

	// Durable persistence is confirmed; only now is the transient entry
	// destroyed. A failure here is harmless, the TTL reaps it.
	if err := s.answers.Clear(ctx, sess.ID); err != nil {
		log.Warn().Err(err).Msg("Transient clear failed after completion, TTL will reap")
	}

	log.Info().
		Int("responses", len(rows)).
		Msg("Session completed")

	return &model.FinalizedSession{Session: *sess, Result: *result}, nil
}

// scoreAll turns the drained transient records into durable response rows,
// scoring each against its question metadata in one bulk fetch.
func (s *CompletionService) scoreAll(ctx context.Context, sess *model.ExamSession, records []model.AnswerRecord) ([]model.QuestionResponse, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.QuestionID)
	}

	meta, err := s.questions.GetMetaByIDs(ctx, sess.ExamID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch question metadata: %w", err)
	}

	rows := make([]model.QuestionResponse, 0, len(records))
	for _, r := range records {
		q, ok := meta[r.QuestionID]
		if !ok {
			// A transient record for a question that no longer belongs to
			// the exam is dropped, not persisted.
			s.log.Warn().
				Str("session_id", sess.ID.String()).
				Str("question_id", r.QuestionID.String()).
				Msg("Dropping answer for unknown question")
			continue
		}
		correctness, points := scoring.Score(q.Type, q.CorrectAnswer, q.Points, r.Response)
		rows = append(rows, model.QuestionResponse{
			QuestionID:   r.QuestionID,
			Response:     r.Response,
			IsCorrect:    correctness.Bool(),
			PointsEarned: points,
		})
	}
	return rows, nil
}

// verify re-reads the persisted row count and compares it against the
// expected count. Lenient mode logs a warning and carries on; strict mode
// aborts before the status flip, leaving the transient data intact.
func (s *CompletionService) verify(ctx context.Context, sess *model.ExamSession, expected int, log zerolog.Logger) error {
	count, err := s.responses.CountBySession(ctx, sess.ID)
	if err != nil {
		if s.cfg.CompleteVerifyStrict {
			return &CompletionError{Step: "verify", Recoverable: true, Err: err}
		}
		log.Warn().Err(err).Msg("Persisted-count verification failed, continuing")
		return nil
	}
	if count != expected {
		if s.cfg.CompleteVerifyStrict {
			return &CompletionError{
				Step:        "verify",
				Recoverable: true,
				Err:         fmt.Errorf("persisted %d of %d responses", count, expected),
			}
		}
		direction := "missing"
		if count > expected {
			direction = "surplus"
		}
		log.Warn().
			Int("expected", expected).
			Int("persisted", count).
			Str("mismatch", direction).
			Msg("Persisted-count mismatch, continuing")
	}
	return nil
}
