package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/service"
)

// overdueLister is the slice of the session repository the sweeper needs.
type overdueLister interface {
	ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.ExamSession, error)
}

// completer closes a session through the full completion saga.
type completer interface {
	Complete(ctx context.Context, sess *model.ExamSession) (*model.FinalizedSession, error)
}

// resumer reopens a paused session so it can go through the saga.
type resumer interface {
	Resume(ctx context.Context, sess *model.ExamSession) error
}

// DeadlineWorker sweeps sessions whose exam clock ran out. Overdue active
// sessions are completed through the normal saga, so the student's
// autosaved answers are drained and scored exactly as if they had
// submitted. Overdue paused sessions are resumed first (the only legal
// exit toward completion) and then run through the same saga, so their
// answers are drained too instead of dying with the transient TTL.
//
// Because the saga is idempotent and recoverable failures leave the
// transient data intact, the sweeper doubles as the retry path for
// completions that failed mid-flight.
type DeadlineWorker struct {
	sessions   overdueLister
	completion completer
	lifecycle  resumer
	cfg        *config.Config
	log        zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(
	sessions overdueLister,
	completion completer,
	lifecycle resumer,
	cfg *config.Config,
	log zerolog.Logger,
) *DeadlineWorker {
	return &DeadlineWorker{
		sessions:   sessions,
		completion: completion,
		lifecycle:  lifecycle,
		cfg:        cfg,
		log:        log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start runs the sweep loop until the context is cancelled. A final sweep
// runs on shutdown so sessions that expired during the last interval are
// not left hanging until the next boot.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().
		Dur("interval", w.cfg.SweepInterval).
		Msg("DeadlineWorker started")

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Running final sweep...")
			w.sweep(context.Background())
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	overdue, err := w.sessions.ListOverdue(ctx, w.cfg.SweepGrace, w.cfg.SweepBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("Overdue listing failed")
		return
	}
	if len(overdue) == 0 {
		return
	}

	var completed, failed int
	for i := range overdue {
		sess := &overdue[i]
		switch sess.Status {
		case model.SessionStatusActive:
			if w.completeOverdue(ctx, sess) {
				completed++
			} else {
				failed++
			}
		case model.SessionStatusPaused:
			if w.completePaused(ctx, sess) {
				completed++
			} else {
				failed++
			}
		}
	}

	w.log.Info().
		Int("completed", completed).
		Int("failed", failed).
		Msg("Deadline sweep finished")
}

// completePaused resumes an overdue paused session and runs the normal
// completion saga on it. PAUSED has no direct edge to COMPLETED, so the
// resume is what makes the drain legal.
func (w *DeadlineWorker) completePaused(ctx context.Context, sess *model.ExamSession) bool {
	if err := w.lifecycle.Resume(ctx, sess); err != nil {
		var stateErr *service.InvalidStateError
		if errors.As(err, &stateErr) || errors.Is(err, service.ErrSessionFinished) {
			w.log.Debug().
				Str("session_id", sess.ID.String()).
				Msg("Session already closed by another path")
			return true
		}
		w.log.Error().Err(err).
			Str("session_id", sess.ID.String()).
			Msg("Overdue resume failed")
		return false
	}
	return w.completeOverdue(ctx, sess)
}

func (w *DeadlineWorker) completeOverdue(ctx context.Context, sess *model.ExamSession) bool {
	_, err := w.completion.Complete(ctx, sess)
	if err == nil {
		return true
	}

	// A concurrent student submit can win the race; that is a success
	// from the sweeper's point of view.
	var stateErr *service.InvalidStateError
	if errors.As(err, &stateErr) || errors.Is(err, service.ErrSessionFinished) {
		w.log.Debug().
			Str("session_id", sess.ID.String()).
			Msg("Session already closed by another path")
		return true
	}

	var compErr *service.CompletionError
	if errors.As(err, &compErr) && compErr.Recoverable {
		// Transient data survived; the next sweep retries.
		w.log.Warn().Err(err).
			Str("session_id", sess.ID.String()).
			Str("step", compErr.Step).
			Msg("Overdue completion failed, will retry next sweep")
		return false
	}

	w.log.Error().Err(err).
		Str("session_id", sess.ID.String()).
		Msg("Overdue completion failed")
	return false
}
