package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/scoring"
)

// AutosaveService reconciles batched answer updates into the transient
// store. It never returns an error: every failure mode is folded into the
// outcome so a degraded store can slow the client down without ever
// blocking the exam.
type AutosaveService struct {
	answers   AnswerStore
	questions QuestionSource
	cfg       *config.Config
	log       zerolog.Logger
}

// NewAutosaveService creates a new AutosaveService.
func NewAutosaveService(answers AnswerStore, questions QuestionSource, cfg *config.Config, log zerolog.Logger) *AutosaveService {
	return &AutosaveService{
		answers:   answers,
		questions: questions,
		cfg:       cfg,
		log:       log.With().Str("component", "autosave_service").Logger(),
	}
}

// Reconcile merges one auto-save batch into the transient store.
//
// Conflict policy is last-write-wins by the client's logical timestamp:
// a newer incoming write replaces the stored record, an identical re-send
// is skipped, and an older-but-different write is reported as a conflict
// and discarded. One bad item never aborts the batch.
func (s *AutosaveService) Reconcile(ctx context.Context, sess *model.ExamSession, updates []model.AnswerUpdate) *model.AutoSaveOutcome {
	out := &model.AutoSaveOutcome{}
	now := time.Now()

	if len(updates) == 0 {
		out.NextAutoSave = now.Add(s.cfg.AutosaveShortDelay).UnixMilli()
		return out
	}

	// Parse question IDs up front so the metadata fetch is one round-trip
	// for the whole batch. Unparseable IDs fail their item only.
	ids := make([]uuid.UUID, 0, len(updates))
	parsed := make(map[string]uuid.UUID, len(updates))
	for _, u := range updates {
		if _, ok := parsed[u.QuestionID]; ok {
			continue
		}
		id, err := uuid.Parse(u.QuestionID)
		if err != nil {
			continue
		}
		parsed[u.QuestionID] = id
		ids = append(ids, id)
	}

	meta, err := s.questions.GetMetaByIDs(ctx, sess.ExamID, ids)
	if err != nil {
		// Store degradation: fail the whole batch softly and back off.
		s.log.Error().Err(err).
			Str("session_id", sess.ID.String()).
			Msg("Question metadata fetch failed, failing batch")
		for _, u := range updates {
			out.Errors = append(out.Errors, model.AnswerError{QuestionID: u.QuestionID, Error: "question metadata unavailable"})
		}
		out.NextAutoSave = now.Add(s.cfg.AutosaveLongDelay).UnixMilli()
		return out
	}

	ttl := s.ttl(sess, now)

	for _, u := range updates {
		if reason := s.apply(ctx, sess, u, meta, parsed, now, ttl, out); reason != "" {
			out.Errors = append(out.Errors, model.AnswerError{QuestionID: u.QuestionID, Error: reason})
		}
	}

	out.NextAutoSave = now.Add(s.nextDelay(out)).UnixMilli()

	s.log.Debug().
		Str("session_id", sess.ID.String()).
		Int("saved", out.Saved).
		Int("skipped", out.Skipped).
		Int("errors", len(out.Errors)).
		Msg("Auto-save batch reconciled")

	return out
}

// apply merges a single update. It returns a non-empty reason string on
// failure, and increments the saved/skipped counters directly on success.
func (s *AutosaveService) apply(
	ctx context.Context,
	sess *model.ExamSession,
	u model.AnswerUpdate,
	meta map[uuid.UUID]model.QuestionMeta,
	parsed map[string]uuid.UUID,
	now time.Time,
	ttl time.Duration,
	out *model.AutoSaveOutcome,
) string {
	questionID, ok := parsed[u.QuestionID]
	if !ok {
		return "invalid question id"
	}
	q, ok := meta[questionID]
	if !ok {
		return "question does not belong to this exam"
	}
	if !scoring.ValidateResponse(q.Type, u.Response) {
		return "response shape does not match question type"
	}

	// Clients without a clock send no timestamp; arrival time is the
	// best ordering we can assign them.
	ts := u.Timestamp
	if ts == 0 {
		ts = now.UnixMilli()
	}

	existing, err := s.answers.Get(ctx, sess.ID, questionID)
	if err != nil {
		return "transient store read failed"
	}

	if existing != nil && existing.Timestamp >= ts {
		if scoring.Equal(existing.Response, u.Response) {
			out.Skipped++
			return ""
		}
		return "stale write: server holds newer data for this question"
	}

	correctness, points := scoring.Score(q.Type, q.CorrectAnswer, q.Points, u.Response)

	rec := model.AnswerRecord{
		QuestionID: questionID,
		Response:   u.Response,
		Timestamp:  ts,
	}
	if err := s.answers.Put(ctx, sess.ID, rec, ttl); err != nil {
		s.log.Error().Err(err).
			Str("session_id", sess.ID.String()).
			Str("question_id", questionID.String()).
			Msg("Transient store write failed")
		return "transient store write failed"
	}

	s.log.Debug().
		Str("question_id", questionID.String()).
		Str("correctness", string(correctness)).
		Float64("points", points).
		Msg("Answer saved")

	out.Saved++
	return ""
}

// ttl bounds a transient record's life to the session's remaining exam
// time plus a grace window, so abandoned sessions reap themselves.
func (s *AutosaveService) ttl(sess *model.ExamSession, now time.Time) time.Duration {
	remaining := sess.Deadline().Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining + s.cfg.TransientTTLGrace
}

// nextDelay maps the batch success ratio to a retry cadence: healthy
// batches poll fast, degraded ones back off.
func (s *AutosaveService) nextDelay(out *model.AutoSaveOutcome) time.Duration {
	attempted := out.Attempted()
	if attempted == 0 {
		return s.cfg.AutosaveShortDelay
	}
	ratio := float64(out.Saved+out.Skipped) / float64(attempted)
	switch {
	case ratio > 0.8:
		return s.cfg.AutosaveShortDelay
	case ratio > 0.5:
		return s.cfg.AutosaveMediumDelay
	default:
		return s.cfg.AutosaveLongDelay
	}
}
