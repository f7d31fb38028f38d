// Package transient is the Redis adapter for the in-progress answer store.
// One hash per session, field = question ID, value = JSON-encoded
// AnswerRecord. The hash is TTL-bound: it survives web-tier crashes but not
// store eviction, and is the source of truth while an exam is active.
package transient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/model"
)

// AnswerStore holds in-progress answers keyed by (session, question).
type AnswerStore struct {
	rdb     *redis.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewAnswerStore creates an AnswerStore. Every operation is bounded by
// timeout; callers treat a timeout as a retryable failure.
func NewAnswerStore(rdb *redis.Client, timeout time.Duration, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		rdb:     rdb,
		timeout: timeout,
		log:     log.With().Str("component", "answer_store").Logger(),
	}
}

// Get fetches the record for one question, or (nil, nil) when no answer has
// been saved yet.
func (s *AnswerStore) Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.AnswerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	raw, err := s.rdb.HGet(ctx, key, questionID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}

	var rec model.AnswerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return &rec, nil
}

// Put inserts or replaces the record for rec.QuestionID and refreshes the
// session hash TTL. SavedAt is stamped here, not by the caller.
func (s *AnswerStore) Put(ctx context.Context, sessionID uuid.UUID, rec model.AnswerRecord, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec.SavedAt = time.Now()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, rec.QuestionID.String(), raw)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put answer: %w", err)
	}
	return nil
}

// List returns a point-in-time snapshot of every answer in the session.
// A session with no saved answers returns an empty slice, not an error.
func (s *AnswerStore) List(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	records := make([]model.AnswerRecord, 0, len(fields))
	for field, raw := range fields {
		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// A corrupt field must not sink the whole drain.
			s.log.Error().
				Str("session_id", sessionID.String()).
				Str("question_id", field).
				Msg("Skipping undecodable answer record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear removes the whole session entry. Only the completion orchestrator
// calls this, and only after durable persistence is confirmed.
func (s *AnswerStore) Clear(ctx context.Context, sessionID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	return nil
}
