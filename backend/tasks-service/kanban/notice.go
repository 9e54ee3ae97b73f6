package kanban

import (
	"errors"
	"fmt"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/models"
)

type NoticeKind string

const (
	NoticeCommitted  NoticeKind = "committed"
	NoticeRejected   NoticeKind = "rejected"
	NoticeRolledBack NoticeKind = "rolled-back"
)

// Notice is the user-facing outcome of a board change.
type Notice struct {
	TaskID  string
	Kind    NoticeKind
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

func describe(err error, to models.TaskStatus) string {
	var te *lifecycle.TransitionError
	switch {
	case errors.Is(err, ErrMoveInFlight):
		return "This task is still being saved. Try again in a moment."
	case errors.Is(err, ErrTaskNotFound):
		return "This task is no longer on the board. Refresh and try again."
	case errors.Is(err, ErrEngineClosed):
		return "The board was closed before the change was made."
	case errors.Is(err, lifecycle.ErrValidation) && errors.As(err, &te) && lifecycle.RequiresReason(te.From, te.To):
		return "A reason is required to return this task."
	case errors.Is(err, lifecycle.ErrValidation):
		return "The change is not valid: " + err.Error()
	case errors.Is(err, lifecycle.ErrInvalidTransition) && errors.As(err, &te):
		return fmt.Sprintf("A task cannot move from %s to %s.", te.From, te.To)
	case errors.Is(err, lifecycle.ErrForbidden):
		if to == "" {
			return "You are not allowed to change this task."
		}
		return fmt.Sprintf("You are not allowed to move this task to %s.", to)
	default:
		var tr *TransportError
		if errors.As(err, &tr) {
			return "Could not save the change, the board was restored. Try again."
		}
		return err.Error()
	}
}
