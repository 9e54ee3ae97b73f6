package models

import (
	"errors"
	"fmt"
)

var (
	ErrChecklistItemNotFound = errors.New("checklist item not found")
	ErrProgressDerived       = errors.New("progress is derived from the checklist")
	ErrProgressOutOfRange    = errors.New("progress must be between 0 and 100")
)

// ComputeProgress returns round-half-up(100 * completed / total). The second
// result is false for an empty checklist, in which case the stored progress
// must be kept as is.
func ComputeProgress(checklist []ChecklistItem) (int, bool) {
	total := len(checklist)
	if total == 0 {
		return 0, false
	}
	completed := 0
	for _, item := range checklist {
		if item.Completed {
			completed++
		}
	}
	// integer form of floor(x + 0.5), x = 100*completed/total
	return (200*completed + total) / (2 * total), true
}

// SetChecklist replaces the checklist and recomputes progress in the same step.
func (t *Task) SetChecklist(items []ChecklistItem) {
	t.Checklist = append([]ChecklistItem(nil), items...)
	t.syncProgress()
}

// ToggleChecklistItem flips one item and recomputes progress.
func (t *Task) ToggleChecklistItem(itemID string) error {
	for i := range t.Checklist {
		if t.Checklist[i].ID == itemID {
			t.Checklist[i].Completed = !t.Checklist[i].Completed
			t.syncProgress()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrChecklistItemNotFound, itemID)
}

// SetManualProgress sets progress on a task without a checklist.
func (t *Task) SetManualProgress(p int) error {
	if len(t.Checklist) > 0 {
		return ErrProgressDerived
	}
	if p < 0 || p > 100 {
		return fmt.Errorf("%w: %d", ErrProgressOutOfRange, p)
	}
	t.Progress = p
	return nil
}

func (t *Task) syncProgress() {
	if p, ok := ComputeProgress(t.Checklist); ok {
		t.Progress = p
	}
}
