// Package scoring implements quick scoring: inline, best-effort correctness
// evaluation for objectively gradable question types. It is pure and does no
// I/O, so it is safe to call on every auto-save.
package scoring

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/examhall/examhall-backend/internal/model"
)

// Score evaluates a raw response against a question's correct answer.
//
// Objective types (multiple_choice, true_false, fill_blank) yield a definite
// correct/incorrect. Essay and matching always come back unknown with zero
// points — they must never be silently auto-scored. Unrecognized types and
// undecodable payloads also yield unknown (fail safe, not fail open).
func Score(qt model.QuestionType, correct json.RawMessage, points float64, response json.RawMessage) (model.Correctness, float64) {
	switch qt {
	case model.QuestionTypeMultipleChoice:
		got, okGot := decodeValue(response)
		want, okWant := decodeValue(correct)
		if !okGot || !okWant {
			return model.CorrectnessUnknown, 0
		}
		// Exact structural match, no partial credit.
		if reflect.DeepEqual(got, want) {
			return model.CorrectnessCorrect, points
		}
		return model.CorrectnessIncorrect, 0

	case model.QuestionTypeTrueFalse, model.QuestionTypeFillBlank:
		got, okGot := decodeString(response)
		want, okWant := decodeString(correct)
		if !okGot || !okWant {
			return model.CorrectnessUnknown, 0
		}
		if strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return model.CorrectnessCorrect, points
		}
		return model.CorrectnessIncorrect, 0

	default:
		// essay, matching, and anything we do not recognize.
		return model.CorrectnessUnknown, 0
	}
}

// ValidateResponse checks that a raw payload decodes into the shape the
// question type expects. Called at the boundary before a response is
// accepted into the transient store.
func ValidateResponse(qt model.QuestionType, response json.RawMessage) bool {
	switch qt {
	case model.QuestionTypeTrueFalse, model.QuestionTypeFillBlank:
		_, ok := decodeString(response)
		return ok
	default:
		_, ok := decodeValue(response)
		return ok
	}
}

// Equal reports structural equality of two JSON payloads: same values after
// decoding, independent of key order or whitespace.
func Equal(a, b json.RawMessage) bool {
	av, okA := decodeValue(a)
	bv, okB := decodeValue(b)
	if !okA || !okB {
		// Fall back to byte comparison for undecodable payloads.
		return string(a) == string(b)
	}
	return reflect.DeepEqual(av, bv)
}

func decodeValue(raw json.RawMessage) (interface{}, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// decodeString coerces the payload into a comparable string. Booleans and
// numbers are accepted so that true_false answers sent as JSON booleans
// compare equal to keys stored as "true"/"false".
func decodeString(raw json.RawMessage) (string, bool) {
	v, ok := decodeValue(raw)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
