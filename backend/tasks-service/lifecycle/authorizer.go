package lifecycle

import (
	"strings"

	"trello-project/backend/tasks-service/models"
)

// CanTransition decides whether actor may move task from -> to. It is pure
// and total: every input yields a boolean.
func CanTransition(actor models.Actor, task *models.Task, from, to models.TaskStatus) bool {
	return authorize(actor, task, from, to) == nil
}

// Authorize is the error form of CanTransition evaluated against the
// task's stored status, plus the reason check for returns. Every status
// change, local or server side, goes through here.
func Authorize(actor models.Actor, task *models.Task, to models.TaskStatus, reason string) error {
	if err := authorize(actor, task, task.Status, to); err != nil {
		return err
	}
	if RequiresReason(task.Status, to) && strings.TrimSpace(reason) == "" {
		return &TransitionError{TaskID: task.ID, From: task.Status, To: to, Err: ErrValidation}
	}
	return nil
}

func authorize(actor models.Actor, task *models.Task, from, to models.TaskStatus) error {
	fail := func(err error) error {
		return &TransitionError{TaskID: task.ID, From: from, To: to, Err: err}
	}
	if task.IsDeleted() {
		return fail(ErrForbidden)
	}
	if _, ok := Edge(from, to); !ok {
		return fail(ErrInvalidTransition)
	}
	if actor.IsCreatorOf(task) || actor.IsManager() {
		return nil
	}
	// Assignee authority follows the stored status; a stale from grants nothing.
	if actor.IsAssigneeOf(task) && from == task.Status {
		switch from {
		case models.StatusInProgress:
			if to == models.StatusWaitingApproval {
				return nil
			}
		case models.StatusNotAssigned:
			if to == models.StatusInProgress || to == models.StatusReturned {
				return nil
			}
		}
	}
	return fail(ErrForbidden)
}

// CanAssign reports whether actor may change the assignee set.
func CanAssign(actor models.Actor, task *models.Task) bool {
	return !task.IsDeleted() && (actor.IsCreatorOf(task) || actor.IsManager())
}

// CanEdit reports whether actor may change descriptive fields.
func CanEdit(actor models.Actor, task *models.Task) bool {
	return CanAssign(actor, task)
}

// CanEditChecklist reports whether actor may tick checklist items.
func CanEditChecklist(actor models.Actor, task *models.Task) bool {
	if task.IsDeleted() {
		return false
	}
	return actor.IsCreatorOf(task) || actor.IsManager() || actor.IsAssigneeOf(task)
}

// CanDelete reports whether actor may archive the task.
func CanDelete(actor models.Actor, task *models.Task) bool {
	return CanAssign(actor, task)
}
