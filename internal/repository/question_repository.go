package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examhall/examhall-backend/internal/model"
)

// QuestionRepository provides the question-metadata lookups the answer
// pipeline needs. Question authoring lives outside this service.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetMetaByIDs bulk-fetches scoring metadata for the given question IDs
// within one exam. One round-trip per auto-save batch or completion drain;
// IDs that do not exist in the exam are simply absent from the map.
func (r *QuestionRepository) GetMetaByIDs(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.QuestionMeta, error) {
	meta := make(map[uuid.UUID]model.QuestionMeta, len(ids))
	if len(ids) == 0 {
		return meta, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_type, correct_answer, points
		 FROM questions
		 WHERE exam_id = $1 AND id = ANY($2)`,
		examID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.QuestionMeta
		if err := rows.Scan(&m.ID, &m.Type, &m.CorrectAnswer, &m.Points); err != nil {
			return nil, err
		}
		meta[m.ID] = m
	}
	return meta, rows.Err()
}
