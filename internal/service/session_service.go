package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
)

// transitions is the session lifecycle table. COMPLETED and TERMINATED are
// absorbing; anything not listed here is rejected, never coerced.
var transitions = map[model.SessionStatus][]model.SessionStatus{
	model.SessionStatusActive: {
		model.SessionStatusPaused,
		model.SessionStatusCompleted,
		model.SessionStatusTerminated,
	},
	model.SessionStatusPaused: {
		model.SessionStatusActive,
		model.SessionStatusTerminated,
	},
}

// CanTransition reports whether the lifecycle table permits from → to.
func CanTransition(from, to model.SessionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// statesAllowing returns every state from which `to` is reachable, for use
// as the conditional-update guard and in error messages.
func statesAllowing(to model.SessionStatus) []model.SessionStatus {
	var from []model.SessionStatus
	for st, allowed := range transitions {
		for _, a := range allowed {
			if a == to {
				from = append(from, st)
				break
			}
		}
	}
	return from
}

// SessionService owns the exam-session lifecycle and the permission to
// mutate it. All state changes are conditional on the current durable
// state; a lost race returns an InvalidStateError, never a silent coercion.
type SessionService struct {
	sessions SessionStore
	exams    ExamSource
	answers  AnswerStore
	verifier IdentityVerifier
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	exams ExamSource,
	answers AnswerStore,
	verifier IdentityVerifier,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		exams:    exams,
		answers:  answers,
		verifier: verifier,
		cfg:      cfg,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Start creates (or idempotently rejoins) a session for the student on a
// published exam. The identity-verification gate runs before any session
// row exists.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}

	if s.cfg.IdentityVerifyEnabled {
		check, err := s.verifier.Verify(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("identity verify: %w", err)
		}
		if !check.Verified || check.Similarity < s.cfg.IdentityMinSimilarity {
			s.log.Warn().
				Int("user_id", userID).
				Float64("similarity", check.Similarity).
				Msg("Session start rejected by identity gate")
			return nil, ErrIdentityNotVerified
		}
	}

	// Rejoin is idempotent: an existing non-terminal session is returned
	// as-is (page reload, second device). A finished one can never restart.
	existing, err := s.sessions.GetByExamAndUser(ctx, examID, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		if existing.Status.Terminal() {
			return nil, ErrSessionFinished
		}
		return existing, nil
	}

	session := &model.ExamSession{
		ExamID:           examID,
		UserID:           userID,
		Status:           model.SessionStatusActive,
		TimeLimitMinutes: exam.TimeLimitMinutes,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start: the other request won the insert.
			winner, fetchErr := s.sessions.GetByExamAndUser(ctx, examID, userID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// GetOwned fetches a session and enforces the ownership rule: only the
// owning identity may touch its own session.
func (s *SessionService) GetOwned(ctx context.Context, sessionID uuid.UUID, userID int) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != userID {
		return nil, ErrNotSessionOwner
	}
	return sess, nil
}

// Get fetches a session without an ownership check, for elevated roles.
func (s *SessionService) Get(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// RequireActive guards the auto-save boundary: writes against a non-active
// session are rejected before reconciliation runs.
func (s *SessionService) RequireActive(sess *model.ExamSession) error {
	if sess.Status != model.SessionStatusActive {
		return &InvalidStateError{
			Op:       "auto-save",
			Current:  sess.Status,
			Expected: []model.SessionStatus{model.SessionStatusActive},
		}
	}
	return nil
}

// Pause suspends an active session.
func (s *SessionService) Pause(ctx context.Context, sess *model.ExamSession) error {
	return s.transition(ctx, sess, "pause", model.SessionStatusPaused, nil)
}

// Resume reactivates a paused session.
func (s *SessionService) Resume(ctx context.Context, sess *model.ExamSession) error {
	return s.transition(ctx, sess, "resume", model.SessionStatusActive, nil)
}

// Terminate forcibly closes a session (proctor action or policy breach).
// Terminated sessions are never drained; their transient entries expire
// with the TTL.
func (s *SessionService) Terminate(ctx context.Context, sess *model.ExamSession) error {
	now := time.Now()
	return s.transition(ctx, sess, "terminate", model.SessionStatusTerminated, &now)
}

func (s *SessionService) transition(ctx context.Context, sess *model.ExamSession, op string, to model.SessionStatus, finishedAt *time.Time) error {
	from := statesAllowing(to)

	if !CanTransition(sess.Status, to) {
		return &InvalidStateError{Op: op, Current: sess.Status, Expected: from}
	}

	ok, err := s.sessions.UpdateStatus(ctx, sess.ID, from, to, finishedAt)
	if err != nil {
		return fmt.Errorf("%s session: %w", op, err)
	}
	if !ok {
		// Lost a race: re-fetch so the error names the real current state.
		current := sess.Status
		if latest, ferr := s.sessions.GetByID(ctx, sess.ID); ferr == nil {
			current = latest.Status
		}
		return &InvalidStateError{Op: op, Current: current, Expected: from}
	}

	sess.Status = to
	if finishedAt != nil {
		sess.FinishedAt = finishedAt
	}
	return nil
}

// State builds the resume payload: every transient answer plus the
// remaining exam clock.
func (s *SessionService) State(ctx context.Context, sess *model.ExamSession) (*model.SessionState, error) {
	answers, err := s.answers.List(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	remaining := time.Until(sess.Deadline())
	if remaining < 0 {
		remaining = 0
	}

	return &model.SessionState{
		SessionID:        sess.ID,
		ExamID:           sess.ExamID,
		Status:           sess.Status,
		Answers:          answers,
		RemainingSeconds: remaining.Seconds(),
	}, nil
}

// Results retrieves paginated exam results for elevated roles.
func (s *SessionService) Results(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SessionResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.sessions.ListResultsByExam(ctx, examID, page, perPage)
}
