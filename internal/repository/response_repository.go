package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examhall/examhall-backend/internal/model"
)

// ResponseRepository handles the durable question_responses table.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// UpsertBatch writes every response of a session drain as one logical batch
// using UNNEST, inserting or updating per (session, question). A re-run of
// the same drain converges on identical rows, so completion retries are safe.
func (r *ResponseRepository) UpsertBatch(ctx context.Context, sessionID uuid.UUID, rows []model.QuestionResponse) error {
	if len(rows) == 0 {
		return nil
	}

	n := len(rows)
	questionIDs := make([]uuid.UUID, 0, n)
	payloads := make([][]byte, 0, n)
	isCorrect := make([]*bool, 0, n)
	points := make([]float64, 0, n)

	for _, row := range rows {
		payload := row.Response
		if payload == nil {
			payload = json.RawMessage("null")
		}
		questionIDs = append(questionIDs, row.QuestionID)
		payloads = append(payloads, payload)
		isCorrect = append(isCorrect, row.IsCorrect)
		points = append(points, row.PointsEarned)
	}

	query := `
		INSERT INTO question_responses (session_id, question_id, response, is_correct, points_earned)
		SELECT $1, u.question_id, u.response, u.is_correct, u.points_earned
		FROM UNNEST(
			$2::uuid[],
			$3::jsonb[],
			$4::boolean[],
			$5::float8[]
		) AS u (question_id, response, is_correct, points_earned)
		ON CONFLICT (session_id, question_id) DO UPDATE
		SET response = EXCLUDED.response,
		    is_correct = EXCLUDED.is_correct,
		    points_earned = EXCLUDED.points_earned,
		    persisted_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, sessionID, questionIDs, payloads, isCorrect, points)
	return err
}

// CountBySession returns the number of persisted response rows for a
// session. The completion orchestrator compares it against the drained
// answer count as a write-verification signal.
func (r *ResponseRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM question_responses WHERE session_id = $1`, sessionID,
	).Scan(&count)
	return count, err
}

// AggregateBySession computes the score aggregation for a completed
// session: points earned across scored rows, points possible across the
// exam's auto-scorable questions, and correctness counts.
func (r *ResponseRepository) AggregateBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	res := &model.ExamResult{SessionID: sessionID}

	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(qr.points_earned), 0),
			COUNT(*) FILTER (WHERE qr.is_correct IS TRUE),
			COUNT(*) FILTER (WHERE qr.is_correct IS FALSE),
			COUNT(*) FILTER (WHERE qr.is_correct IS NULL)
		 FROM question_responses qr
		 WHERE qr.session_id = $1`, sessionID,
	).Scan(&res.PointsEarned, &res.Correct, &res.Incorrect, &res.Unscored)
	if err != nil {
		return nil, err
	}

	// Points possible comes from the exam's question bank, not from what the
	// student happened to answer. Subjective types are excluded from both
	// sides of the percentage.
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(q.points), 0)
		 FROM questions q
		 JOIN exam_sessions es ON es.exam_id = q.exam_id
		 WHERE es.id = $1
		   AND q.question_type IN ('multiple_choice', 'true_false', 'fill_blank')`, sessionID,
	).Scan(&res.PointsPossible)
	if err != nil {
		return nil, err
	}

	if res.PointsPossible > 0 {
		res.Score = res.PointsEarned / res.PointsPossible * 100
	}
	return res, nil
}
