package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examhall/examhall-backend/internal/model"
)

type completionFixture struct {
	svc       *CompletionService
	answers   *fakeAnswerStore
	sessions  *fakeSessionStore
	responses *fakeResponseStore
	results   *fakeResultComputer
	sess      *model.ExamSession
	meta      map[uuid.UUID]model.QuestionMeta
}

func newCompletionFixture() *completionFixture {
	f := &completionFixture{
		answers:   newFakeAnswerStore(),
		sessions:  newFakeSessionStore(),
		responses: newFakeResponseStore(),
		results:   &fakeResultComputer{},
		meta:      make(map[uuid.UUID]model.QuestionMeta),
		sess:      activeSession(),
	}
	f.sessions.add(f.sess)
	f.svc = NewCompletionService(
		f.answers, f.sessions, f.responses,
		&fakeQuestionSource{meta: f.meta},
		f.results, testConfig(), zerolog.Nop(),
	)
	return f
}

func (f *completionFixture) addAnswer(t *testing.T, qid uuid.UUID, response string, ts int64) {
	t.Helper()
	f.meta[qid] = fillBlank(qid, "A")
	err := f.answers.Put(context.Background(), f.sess.ID, model.AnswerRecord{
		QuestionID: qid,
		Response:   json.RawMessage(response),
		Timestamp:  ts,
	}, 0)
	require.NoError(t, err)
}

func TestCompleteHappyPath(t *testing.T) {
	f := newCompletionFixture()
	q1, q2 := uuid.New(), uuid.New()
	f.addAnswer(t, q1, `"A"`, 100)
	f.addAnswer(t, q2, `"C"`, 200)

	finalized, err := f.svc.Complete(context.Background(), f.sess)
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusCompleted, finalized.Session.Status)
	assert.NotNil(t, finalized.Session.FinishedAt)
	assert.Equal(t, model.SessionStatusCompleted, f.sessions.status(f.sess.ID))

	// Both answers persisted and scored against the key "A".
	row1, ok := f.responses.get(f.sess.ID, q1)
	require.True(t, ok)
	require.NotNil(t, row1.IsCorrect)
	assert.True(t, *row1.IsCorrect)

	row2, ok := f.responses.get(f.sess.ID, q2)
	require.True(t, ok)
	require.NotNil(t, row2.IsCorrect)
	assert.False(t, *row2.IsCorrect)

	// Transient entry destroyed only after durable success.
	assert.Zero(t, f.answers.count(f.sess.ID))
	assert.Equal(t, 1, f.results.calls)
}

// Mirrors the full flow: two saved answers plus one rejected stale write,
// then completion. The conflict loser must never reach the durable store.
func TestAutosaveThenCompleteScenario(t *testing.T) {
	f := newCompletionFixture()
	q1, q2 := uuid.New(), uuid.New()
	f.meta[q1] = fillBlank(q1, "A")
	f.meta[q2] = fillBlank(q2, "C")

	autosave := NewAutosaveService(f.answers, &fakeQuestionSource{meta: f.meta}, testConfig(), zerolog.Nop())
	ctx := context.Background()

	out := autosave.Reconcile(ctx, f.sess, []model.AnswerUpdate{update(q1, `"A"`, 100)})
	assert.Equal(t, 1, out.Saved)

	out = autosave.Reconcile(ctx, f.sess, []model.AnswerUpdate{update(q1, `"B"`, 50)})
	assert.Len(t, out.Errors, 1) // stale write rejected

	out = autosave.Reconcile(ctx, f.sess, []model.AnswerUpdate{update(q2, `"C"`, 200)})
	assert.Equal(t, 1, out.Saved)

	_, err := f.svc.Complete(ctx, f.sess)
	require.NoError(t, err)

	row1, _ := f.responses.get(f.sess.ID, q1)
	assert.JSONEq(t, `"A"`, string(row1.Response))
	row2, _ := f.responses.get(f.sess.ID, q2)
	assert.JSONEq(t, `"C"`, string(row2.Response))
	assert.Zero(t, f.answers.count(f.sess.ID))
}

func TestCompleteRejectsNonActiveStates(t *testing.T) {
	f := newCompletionFixture()

	f.sess.Status = model.SessionStatusPaused
	_, err := f.svc.Complete(context.Background(), f.sess)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.SessionStatusPaused, stateErr.Current)

	f.sess.Status = model.SessionStatusCompleted
	_, err = f.svc.Complete(context.Background(), f.sess)
	assert.ErrorIs(t, err, ErrSessionFinished)

	f.sess.Status = model.SessionStatusTerminated
	_, err = f.svc.Complete(context.Background(), f.sess)
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestCompleteDrainFailureIsRecoverable(t *testing.T) {
	f := newCompletionFixture()
	f.answers.listErr = errStoreDown

	_, err := f.svc.Complete(context.Background(), f.sess)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "drain", compErr.Step)
	assert.True(t, compErr.Recoverable)
	assert.Equal(t, model.SessionStatusActive, f.sessions.status(f.sess.ID))
}

func TestCompleteDurableWriteFailurePreservesTransient(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.responses.upsertErr = errStoreDown

	_, err := f.svc.Complete(context.Background(), f.sess)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "persist", compErr.Step)
	assert.True(t, compErr.Recoverable)

	// Transient data untouched, session still active: a retry drains again.
	assert.Equal(t, 1, f.answers.count(f.sess.ID))
	assert.Equal(t, model.SessionStatusActive, f.sessions.status(f.sess.ID))
	assert.Zero(t, f.results.calls)
}

func TestCompleteRetryAfterPersistFailure(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)

	f.responses.upsertErr = errStoreDown
	_, err := f.svc.Complete(context.Background(), f.sess)
	require.Error(t, err)

	f.responses.upsertErr = nil
	finalized, err := f.svc.Complete(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, finalized.Session.Status)
	assert.Zero(t, f.answers.count(f.sess.ID))
}

func TestCompleteVerifyMismatchLenient(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.responses.countOverride = 0 // pretend the count readback sees nothing

	finalized, err := f.svc.Complete(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, finalized.Session.Status)
}

func TestCompleteVerifyMismatchStrict(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.responses.countOverride = 0

	cfg := testConfig()
	cfg.CompleteVerifyStrict = true
	f.svc = NewCompletionService(
		f.answers, f.sessions, f.responses,
		&fakeQuestionSource{meta: f.meta},
		f.results, cfg, zerolog.Nop(),
	)

	_, err := f.svc.Complete(context.Background(), f.sess)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "verify", compErr.Step)
	assert.True(t, compErr.Recoverable)

	// Strict mode aborts before the status flip; transient data survives.
	assert.Equal(t, model.SessionStatusActive, f.sessions.status(f.sess.ID))
	assert.Equal(t, 1, f.answers.count(f.sess.ID))
}

func TestCompleteVerifySurplusStrict(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	// Leftover rows from a prior drain make the count read back high.
	f.responses.countOverride = 2

	cfg := testConfig()
	cfg.CompleteVerifyStrict = true
	f.svc = NewCompletionService(
		f.answers, f.sessions, f.responses,
		&fakeQuestionSource{meta: f.meta},
		f.results, cfg, zerolog.Nop(),
	)

	_, err := f.svc.Complete(context.Background(), f.sess)

	// A surplus is as much a mismatch as a deficit.
	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "verify", compErr.Step)
	assert.True(t, compErr.Recoverable)
	assert.Equal(t, model.SessionStatusActive, f.sessions.status(f.sess.ID))
}

func TestCompleteFailureAfterFinalizeKeepsTransient(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.results.err = errStoreDown

	_, err := f.svc.Complete(context.Background(), f.sess)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "result", compErr.Step)

	// The clear step never ran: nothing is destroyed until the whole saga
	// succeeds, even though the session itself is already completed.
	assert.Equal(t, 1, f.answers.count(f.sess.ID))
	assert.Equal(t, model.SessionStatusCompleted, f.sessions.status(f.sess.ID))
}

func TestCompleteClearFailureStillSucceeds(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.answers.clearErr = errStoreDown

	finalized, err := f.svc.Complete(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, finalized.Session.Status)
}

func TestCompleteLosesFinalizeRace(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)

	// Another path closed the session between our precheck and the
	// conditional update.
	f.sessions.sessions[f.sess.ID].Status = model.SessionStatusTerminated

	_, err := f.svc.Complete(context.Background(), f.sess)

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, model.SessionStatusTerminated, stateErr.Current)
	assert.Equal(t, 1, f.answers.count(f.sess.ID))
}

func TestCompleteEmptyTransient(t *testing.T) {
	f := newCompletionFixture()

	finalized, err := f.svc.Complete(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, finalized.Session.Status)
}

func TestCompleteFinalizeUpdateError(t *testing.T) {
	f := newCompletionFixture()
	qid := uuid.New()
	f.addAnswer(t, qid, `"A"`, 100)
	f.sessions.updateErr = errors.New("connection reset")

	_, err := f.svc.Complete(context.Background(), f.sess)

	var compErr *CompletionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "finalize", compErr.Step)
	assert.True(t, compErr.Recoverable)
	assert.Equal(t, 1, f.answers.count(f.sess.ID))
}
