package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds. Only the objective
// types are auto-scorable; essay and matching always require manual grading.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeEssay          QuestionType = "essay"
	QuestionTypeMatching       QuestionType = "matching"
)

// QuestionMeta is the slice of a question the answer pipeline needs:
// enough to score a response, nothing a student should ever see.
type QuestionMeta struct {
	ID            uuid.UUID       `json:"id"`
	Type          QuestionType    `json:"type"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Points        float64         `json:"points"`
}
