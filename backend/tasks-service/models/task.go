package models

import (
	"time"
)

type TaskStatus string

const (
	StatusNotAssigned     TaskStatus = "not-assigned"
	StatusInProgress      TaskStatus = "in-progress"
	StatusWaitingApproval TaskStatus = "waiting-approval"
	StatusReturned        TaskStatus = "returned"
	StatusCompleted       TaskStatus = "completed"

	// StatusOverdue is only ever produced for display. It is never stored.
	StatusOverdue TaskStatus = "overdue"
)

// Statuses lists every stored status in board order.
var Statuses = []TaskStatus{
	StatusNotAssigned,
	StatusInProgress,
	StatusWaitingApproval,
	StatusReturned,
	StatusCompleted,
}

// Valid reports whether s is a status that may be stored on a task.
func (s TaskStatus) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type ChecklistItem struct {
	ID        string `json:"id" bson:"id"`
	Content   string `json:"content" bson:"content"`
	Completed bool   `json:"completed" bson:"completed"`
}

// Task is used for main tasks and subtasks alike; a subtask has a ParentID.
type Task struct {
	ID           string          `json:"id" bson:"_id"`
	ProjectID    string          `json:"projectId,omitempty" bson:"projectId,omitempty"`
	Title        string          `json:"title" bson:"title"`
	Description  string          `json:"description" bson:"description"`
	Status       TaskStatus      `json:"status" bson:"status"`
	Priority     Priority        `json:"priority" bson:"priority"`
	Deadline     *time.Time      `json:"deadline,omitempty" bson:"deadline,omitempty"`
	Assignees    []string        `json:"assignees" bson:"assignees"`
	CreatorID    string          `json:"creatorId" bson:"creatorId"`
	Checklist    []ChecklistItem `json:"checklist" bson:"checklist"`
	Progress     int             `json:"progress" bson:"progress"`
	ParentID     *string         `json:"parentId,omitempty" bson:"parentId,omitempty"`
	ReturnReason string          `json:"returnReason,omitempty" bson:"returnReason,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updatedAt"`
	// Revision increases by one with every stored change. Writes are
	// conditional on the revision that was read.
	Revision int64 `json:"revision" bson:"revision"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
// ClearDeadline removes the deadline and cannot be combined with Deadline.
type TaskPatch struct {
	Title         *string          `json:"title,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Status        *TaskStatus      `json:"status,omitempty"`
	Priority      *Priority        `json:"priority,omitempty"`
	Deadline      *time.Time       `json:"deadline,omitempty"`
	ClearDeadline bool             `json:"clearDeadline,omitempty"`
	Assignees     *[]string        `json:"assignees,omitempty"`
	Checklist     *[]ChecklistItem `json:"checklist,omitempty"`
	Progress      *int             `json:"progress,omitempty"`
	ParentID      *string          `json:"parentId,omitempty"`
	ReturnReason  *string          `json:"returnReason,omitempty"`
}

// IsDeleted reports whether the task has been archived.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsSubtask reports whether the task hangs under a parent task.
func (t *Task) IsSubtask() bool {
	return t.ParentID != nil && *t.ParentID != ""
}

// HasAssignee reports whether memberID is among the task's assignees.
func (t *Task) HasAssignee(memberID string) bool {
	if memberID == "" {
		return false
	}
	for _, a := range t.Assignees {
		if a == memberID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots never share slices or pointers
// with the live record.
func (t Task) Clone() Task {
	c := t
	if t.Assignees != nil {
		c.Assignees = append([]string(nil), t.Assignees...)
	}
	if t.Checklist != nil {
		c.Checklist = append([]ChecklistItem(nil), t.Checklist...)
	}
	c.Deadline = cloneTime(t.Deadline)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	return c
}

// CloneTasks deep-copies a task collection.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
