package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examhall/examhall-backend/internal/model"
)

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, exam_id, user_id, status, started_at, finished_at, time_limit_minutes, final_score`

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.TimeLimitMinutes, &s.FinalScore)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByExamAndUser retrieves a session for a specific exam-user combination.
func (r *SessionRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND user_id = $2`,
		examID, userID,
	).Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.TimeLimitMinutes, &s.FinalScore)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new ACTIVE session. The unique (exam_id, user_id) index
// plus ON CONFLICT DO NOTHING makes concurrent starts race-safe: the loser
// gets pgx.ErrNoRows and re-fetches the winner's row.
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, user_id, status, time_limit_minutes)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id, started_at`,
		s.ExamID, s.UserID, model.SessionStatusActive, s.TimeLimitMinutes,
	).Scan(&s.ID, &s.StartedAt)
}

// UpdateStatus conditionally moves a session to a new status. The update
// only applies while the current status is one of `from`; the returned bool
// reports whether a row changed, so callers can turn a zero-row update into
// an invalid-state rejection instead of a silent coercion.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, finishedAt *time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, finished_at = COALESCE($3, finished_at)
		 WHERE id = $1 AND status = ANY($4)`,
		id, to, finishedAt, allowed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetFinalScore stores the computed result score on the session row.
func (r *SessionRepository) SetFinalScore(ctx context.Context, id uuid.UUID, score float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET final_score = $2 WHERE id = $1`, id, score)
	return err
}

// ListOverdue returns sessions still in a non-terminal state whose exam
// clock ran out more than `grace` ago. Used by the deadline sweeper, which
// also makes it the retry path for completions that failed recoverably.
func (r *SessionRepository) ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE status = ANY($1)
		   AND started_at + make_interval(mins => time_limit_minutes) + make_interval(secs => $2::float8) < NOW()
		 ORDER BY started_at
		 LIMIT $3`,
		[]string{string(model.SessionStatusActive), string(model.SessionStatusPaused)},
		grace.Seconds(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := rows.Scan(&s.ID, &s.ExamID, &s.UserID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.TimeLimitMinutes, &s.FinalScore); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListResultsByExam retrieves paginated per-student results for an exam.
func (r *SessionRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SessionResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = $1`, examID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT es.id, u.id, u.name, u.username, es.status, es.final_score, es.started_at, es.finished_at
		 FROM exam_sessions es
		 JOIN students u ON es.user_id = u.id
		 WHERE es.exam_id = $1
		 ORDER BY u.name
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.SessionResult
	for rows.Next() {
		var sr model.SessionResult
		if err := rows.Scan(&sr.SessionID, &sr.UserID, &sr.Name, &sr.Username, &sr.Status, &sr.FinalScore, &sr.StartedAt, &sr.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, sr)
	}
	return results, total, rows.Err()
}
