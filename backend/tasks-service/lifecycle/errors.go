package lifecycle

import (
	"errors"
	"fmt"

	"trello-project/backend/tasks-service/models"
)

var (
	// ErrForbidden means the actor lacks authority. Never retried.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition means the requested edge is not in the status graph.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidation means the request is malformed, e.g. a return without reason.
	ErrValidation = errors.New("validation error")
)

// TransitionError carries the rejected edge alongside the cause.
type TransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: %s -> %s: %v", e.TaskID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
