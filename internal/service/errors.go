package service

import (
	"errors"
	"fmt"

	"github.com/examhall/examhall-backend/internal/model"
)

// Domain errors shared across the session services.
var (
	ErrNotSessionOwner     = errors.New("session does not belong to the requesting user")
	ErrExamNotAvailable    = errors.New("exam is not available")
	ErrIdentityNotVerified = errors.New("identity verification failed")
	ErrSessionFinished     = errors.New("exam session is already finished")
)

// InvalidStateError rejects an operation whose session-state precondition
// failed. It names the current and expected states so clients can refresh
// instead of blindly retrying.
type InvalidStateError struct {
	Op       string
	Current  model.SessionStatus
	Expected []model.SessionStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session in state %s (expected one of %v)", e.Op, e.Current, e.Expected)
}

// CompletionError wraps a failure of the completion saga. Recoverable means
// the transient answer data is guaranteed intact and the caller may retry
// the whole completion safely.
type CompletionError struct {
	Step        string
	Recoverable bool
	Err         error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed at %s: %v", e.Step, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}
