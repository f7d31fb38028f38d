package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		AutosaveShortDelay:  5 * time.Second,
		AutosaveMediumDelay: 15 * time.Second,
		AutosaveLongDelay:   60 * time.Second,
		TransientTTLGrace:   30 * time.Minute,
	}
}

func activeSession() *model.ExamSession {
	return &model.ExamSession{
		ID:               uuid.New(),
		ExamID:           uuid.New(),
		UserID:           7,
		Status:           model.SessionStatusActive,
		StartedAt:        time.Now(),
		TimeLimitMinutes: 60,
	}
}

func fillBlank(id uuid.UUID, answer string) model.QuestionMeta {
	return model.QuestionMeta{
		ID:            id,
		Type:          model.QuestionTypeFillBlank,
		CorrectAnswer: json.RawMessage(fmt.Sprintf("%q", answer)),
		Points:        1,
	}
}

func newAutosaveFixture(meta map[uuid.UUID]model.QuestionMeta) (*AutosaveService, *fakeAnswerStore) {
	answers := newFakeAnswerStore()
	svc := NewAutosaveService(answers, &fakeQuestionSource{meta: meta}, testConfig(), zerolog.Nop())
	return svc, answers
}

func update(id uuid.UUID, response string, ts int64) model.AnswerUpdate {
	return model.AnswerUpdate{
		QuestionID: id.String(),
		Response:   json.RawMessage(response),
		Timestamp:  ts,
	}
}

func TestReconcileSavesNewAnswer(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, answers := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"x"`, 100)})

	assert.Equal(t, 1, out.Saved)
	assert.Zero(t, out.Skipped)
	assert.Empty(t, out.Errors)
	assert.True(t, out.Success())

	rec, err := answers.Get(context.Background(), sess.ID, qid)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(100), rec.Timestamp)
	assert.JSONEq(t, `"x"`, string(rec.Response))
}

func TestReconcileIdempotentResend(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, _ := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})
	batch := []model.AnswerUpdate{update(qid, `"x"`, 100)}

	first := svc.Reconcile(context.Background(), sess, batch)
	second := svc.Reconcile(context.Background(), sess, batch)

	assert.Equal(t, 1, first.Saved)
	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.Saved)
	assert.Empty(t, second.Errors)
}

func TestReconcileLastWriteWinsOutOfOrder(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, answers := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	// The newer write arrives first over the network.
	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"new"`, 200)})
	assert.Equal(t, 1, out.Saved)

	// The older, different write arrives late: conflict, no overwrite.
	out = svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"old"`, 100)})
	assert.Zero(t, out.Saved)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, qid.String(), out.Errors[0].QuestionID)

	rec, _ := answers.Get(context.Background(), sess.ID, qid)
	assert.JSONEq(t, `"new"`, string(rec.Response))
	assert.Equal(t, int64(200), rec.Timestamp)
}

func TestReconcileNewerTimestampOverwrites(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, answers := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"v1"`, 100)})
	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"v2"`, 200)})

	assert.Equal(t, 1, out.Saved)
	rec, _ := answers.Get(context.Background(), sess.ID, qid)
	assert.JSONEq(t, `"v2"`, string(rec.Response))
}

func TestReconcileStampsMissingTimestamp(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, answers := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	before := time.Now().UnixMilli()
	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"x"`, 0)})
	after := time.Now().UnixMilli()

	assert.Equal(t, 1, out.Saved)
	rec, _ := answers.Get(context.Background(), sess.ID, qid)
	assert.GreaterOrEqual(t, rec.Timestamp, before)
	assert.LessOrEqual(t, rec.Timestamp, after)
}

func TestReconcileErrorIsolation(t *testing.T) {
	sess := activeSession()
	good := uuid.New()
	svc, answers := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{good: fillBlank(good, "x")})

	batch := []model.AnswerUpdate{
		{QuestionID: "not-a-uuid", Response: json.RawMessage(`"y"`), Timestamp: 50},
		update(uuid.New(), `"z"`, 60), // not in the exam
		update(good, `"x"`, 100),
	}

	out := svc.Reconcile(context.Background(), sess, batch)

	assert.Equal(t, 1, out.Saved)
	assert.Len(t, out.Errors, 2)
	assert.Equal(t, 1, answers.count(sess.ID))
}

func TestReconcileRejectsWrongShape(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, _ := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `{"nested":1}`, 100)})

	assert.Zero(t, out.Saved)
	require.Len(t, out.Errors, 1)
}

func TestReconcileEmptyBatch(t *testing.T) {
	sess := activeSession()
	svc, answers := newAutosaveFixture(nil)

	before := time.Now()
	out := svc.Reconcile(context.Background(), sess, nil)

	assert.True(t, out.Success())
	assert.Zero(t, out.Attempted())
	assert.Zero(t, answers.count(sess.ID))
	assertDelayNear(t, before, out.NextAutoSave, 5*time.Second)
}

func TestReconcileAdaptiveDelays(t *testing.T) {
	sess := activeSession()

	meta := make(map[uuid.UUID]model.QuestionMeta)
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		meta[ids[i]] = fillBlank(ids[i], "x")
	}
	svc, _ := newAutosaveFixture(meta)

	// 9 of 10 saved: short delay.
	batch := make([]model.AnswerUpdate, 0, 10)
	for i := 0; i < 9; i++ {
		batch = append(batch, update(ids[i], `"x"`, 100))
	}
	batch = append(batch, model.AnswerUpdate{QuestionID: "bad", Response: json.RawMessage(`"x"`), Timestamp: 100})

	before := time.Now()
	out := svc.Reconcile(context.Background(), sess, batch)
	assert.Equal(t, 9, out.Saved)
	assertDelayNear(t, before, out.NextAutoSave, 5*time.Second)

	// 4 saved, 6 errors: long delay, overall failure.
	batch = batch[:0]
	for i := 0; i < 4; i++ {
		batch = append(batch, update(ids[i], `"x"`, 200+int64(i)))
	}
	for i := 0; i < 6; i++ {
		batch = append(batch, model.AnswerUpdate{QuestionID: fmt.Sprintf("bad-%d", i), Response: json.RawMessage(`"x"`), Timestamp: 300})
	}

	before = time.Now()
	out = svc.Reconcile(context.Background(), sess, batch)
	assert.Equal(t, 4, out.Saved)
	assert.Len(t, out.Errors, 6)
	assert.False(t, out.Success())
	assertDelayNear(t, before, out.NextAutoSave, 60*time.Second)
}

func TestReconcileMediumDelay(t *testing.T) {
	sess := activeSession()
	meta := make(map[uuid.UUID]model.QuestionMeta)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		meta[ids[i]] = fillBlank(ids[i], "x")
	}
	svc, _ := newAutosaveFixture(meta)

	// 2 of 3 land in the 50-80% band.
	batch := []model.AnswerUpdate{
		update(ids[0], `"x"`, 100),
		update(ids[1], `"x"`, 100),
		{QuestionID: "bad", Response: json.RawMessage(`"x"`), Timestamp: 100},
	}

	before := time.Now()
	out := svc.Reconcile(context.Background(), sess, batch)
	assert.Equal(t, 2, out.Saved)
	assertDelayNear(t, before, out.NextAutoSave, 15*time.Second)
}

func TestReconcileHalfSuccessBacksOffLong(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	svc, _ := newAutosaveFixture(map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")})

	// Exactly 50% success sits on the boundary and gets the long delay,
	// not the medium one.
	batch := []model.AnswerUpdate{
		update(qid, `"x"`, 100),
		{QuestionID: "bad", Response: json.RawMessage(`"x"`), Timestamp: 100},
	}

	before := time.Now()
	out := svc.Reconcile(context.Background(), sess, batch)
	assert.Equal(t, 1, out.Saved)
	assert.Len(t, out.Errors, 1)
	assertDelayNear(t, before, out.NextAutoSave, 60*time.Second)
}

func TestReconcileMetadataFetchFailure(t *testing.T) {
	sess := activeSession()
	answers := newFakeAnswerStore()
	svc := NewAutosaveService(answers, &fakeQuestionSource{err: errStoreDown}, testConfig(), zerolog.Nop())

	qid := uuid.New()
	before := time.Now()
	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"x"`, 100)})

	assert.Zero(t, out.Saved)
	assert.Len(t, out.Errors, 1)
	assert.False(t, out.Success())
	assertDelayNear(t, before, out.NextAutoSave, 60*time.Second)
	assert.Zero(t, answers.count(sess.ID))
}

func TestReconcileStoreWriteFailure(t *testing.T) {
	sess := activeSession()
	qid := uuid.New()
	answers := newFakeAnswerStore()
	answers.putErr = errStoreDown
	svc := NewAutosaveService(answers, &fakeQuestionSource{meta: map[uuid.UUID]model.QuestionMeta{qid: fillBlank(qid, "x")}}, testConfig(), zerolog.Nop())

	out := svc.Reconcile(context.Background(), sess, []model.AnswerUpdate{update(qid, `"x"`, 100)})

	assert.Zero(t, out.Saved)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, qid.String(), out.Errors[0].QuestionID)
}

// assertDelayNear checks that nextAutoSave (epoch millis) is `want` after
// `from`, within a generous scheduling tolerance.
func assertDelayNear(t *testing.T, from time.Time, nextAutoSave int64, want time.Duration) {
	t.Helper()
	delay := time.UnixMilli(nextAutoSave).Sub(from)
	assert.InDelta(t, want.Milliseconds(), delay.Milliseconds(), 1000)
}
