package lifecycle

import (
	"time"

	"trello-project/backend/tasks-service/models"
)

// IsOverdue is the single overdue predicate: a non-terminal task whose
// deadline has passed. Tasks without a deadline are never overdue.
func IsOverdue(task *models.Task, now time.Time) bool {
	if task.Deadline == nil || IsTerminal(task.Status) {
		return false
	}
	return task.Deadline.Before(now)
}

// DisplayStatus is the status shown to users. It never feeds authorization.
func DisplayStatus(task *models.Task, now time.Time) models.TaskStatus {
	if IsOverdue(task, now) {
		return models.StatusOverdue
	}
	return task.Status
}
