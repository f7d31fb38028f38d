package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/examhall/examhall-backend/internal/model"
)

// In-memory fakes for the store interfaces. Error fields let tests inject
// failures at specific saga boundaries.

type fakeAnswerStore struct {
	mu       sync.Mutex
	data     map[uuid.UUID]map[uuid.UUID]model.AnswerRecord
	getErr   error
	putErr   error
	listErr  error
	clearErr error
}

func newFakeAnswerStore() *fakeAnswerStore {
	return &fakeAnswerStore{data: make(map[uuid.UUID]map[uuid.UUID]model.AnswerRecord)}
}

func (f *fakeAnswerStore) Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.AnswerRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[sessionID][questionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeAnswerStore) Put(ctx context.Context, sessionID uuid.UUID, rec model.AnswerRecord, ttl time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[sessionID] == nil {
		f.data[sessionID] = make(map[uuid.UUID]model.AnswerRecord)
	}
	rec.SavedAt = time.Now()
	f.data[sessionID][rec.QuestionID] = rec
	return nil
}

func (f *fakeAnswerStore) List(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AnswerRecord
	for _, rec := range f.data[sessionID] {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeAnswerStore) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, sessionID)
	return nil
}

func (f *fakeAnswerStore) count(sessionID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[sessionID])
}

type fakeSessionStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*model.ExamSession
	updateErr error
	scores    map[uuid.UUID]float64
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*model.ExamSession),
		scores:   make(map[uuid.UUID]float64),
	}
}

// add seeds the store with a copy so tests can diverge the durable state
// from the in-memory session they hold, simulating races.
func (f *fakeSessionStore) add(s *model.ExamSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ExamID == examID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) Create(ctx context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.ExamID == s.ExamID && existing.UserID == s.UserID {
			return pgx.ErrNoRows
		}
	}
	s.ID = uuid.New()
	s.StartedAt = time.Now()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, finishedAt *time.Time) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if s.Status == st {
			s.Status = to
			if finishedAt != nil {
				s.FinishedAt = finishedAt
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessionStore) SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[id] = score
	if s, ok := f.sessions[id]; ok {
		s.FinalScore = &score
	}
	return nil
}

func (f *fakeSessionStore) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SessionResult, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SessionResult
	for _, s := range f.sessions {
		if s.ExamID == examID {
			out = append(out, model.SessionResult{
				SessionID:  s.ID,
				UserID:     s.UserID,
				Status:     s.Status,
				FinalScore: s.FinalScore,
			})
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSessionStore) status(id uuid.UUID) model.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].Status
}

type fakeResponseStore struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]map[uuid.UUID]model.QuestionResponse
	upsertErr error
	countErr  error
	// countOverride shorts the verification count when >= 0.
	countOverride int
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{
		rows:          make(map[uuid.UUID]map[uuid.UUID]model.QuestionResponse),
		countOverride: -1,
	}
}

func (f *fakeResponseStore) UpsertBatch(ctx context.Context, sessionID uuid.UUID, rows []model.QuestionResponse) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[sessionID] == nil {
		f.rows[sessionID] = make(map[uuid.UUID]model.QuestionResponse)
	}
	for _, row := range rows {
		f.rows[sessionID][row.QuestionID] = row
	}
	return nil
}

func (f *fakeResponseStore) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.countOverride >= 0 {
		return f.countOverride, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[sessionID]), nil
}

func (f *fakeResponseStore) AggregateBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &model.ExamResult{SessionID: sessionID}
	for _, row := range f.rows[sessionID] {
		res.PointsEarned += row.PointsEarned
		switch {
		case row.IsCorrect == nil:
			res.Unscored++
		case *row.IsCorrect:
			res.Correct++
		default:
			res.Incorrect++
		}
	}
	return res, nil
}

func (f *fakeResponseStore) get(sessionID, questionID uuid.UUID) (model.QuestionResponse, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID][questionID]
	return row, ok
}

type fakeQuestionSource struct {
	meta map[uuid.UUID]model.QuestionMeta
	err  error
}

func (f *fakeQuestionSource) GetMetaByIDs(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.QuestionMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[uuid.UUID]model.QuestionMeta)
	for _, id := range ids {
		if m, ok := f.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

type fakeExamSource struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExamSource) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

type fakeResultComputer struct {
	result *model.ExamResult
	err    error
	calls  int
}

func (f *fakeResultComputer) ComputeResult(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.ExamResult{SessionID: sessionID}, nil
}

type fakeVerifier struct {
	check IdentityCheck
	err   error
}

func (f *fakeVerifier) Verify(ctx context.Context, userID int) (IdentityCheck, error) {
	return f.check, f.err
}

var errStoreDown = errors.New("store unavailable")
