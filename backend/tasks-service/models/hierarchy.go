package models

import (
	"errors"
	"fmt"
)

var (
	ErrHierarchyCycle = errors.New("task hierarchy contains a cycle")
	ErrParentNotFound = errors.New("parent task not found")
)

// Subtasks returns the tasks whose parent is parentID, in input order.
func Subtasks(tasks []Task, parentID string) []Task {
	var out []Task
	for _, t := range tasks {
		if t.ParentID != nil && *t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out
}

// MainTaskOf walks parent links from id up to the root task.
func MainTaskOf(tasks []Task, id string) (*Task, error) {
	byID := indexTasks(tasks)
	cur, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrParentNotFound)
	}
	seen := map[string]bool{id: true}
	for cur.IsSubtask() {
		parentID := *cur.ParentID
		if seen[parentID] {
			return nil, fmt.Errorf("task %s: %w", id, ErrHierarchyCycle)
		}
		seen[parentID] = true
		next, ok := byID[parentID]
		if !ok {
			return nil, fmt.Errorf("task %s parent %s: %w", cur.ID, parentID, ErrParentNotFound)
		}
		cur = next
	}
	root := cur.Clone()
	return &root, nil
}

// ValidateParent checks that attaching childID under parentID keeps the
// hierarchy a tree.
func ValidateParent(tasks []Task, childID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if childID == parentID {
		return fmt.Errorf("task %s cannot be its own parent: %w", childID, ErrHierarchyCycle)
	}
	byID := indexTasks(tasks)
	if _, ok := byID[parentID]; !ok {
		return fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
	}
	seen := map[string]bool{}
	for cur := parentID; cur != ""; {
		if cur == childID || seen[cur] {
			return fmt.Errorf("attaching %s under %s: %w", childID, parentID, ErrHierarchyCycle)
		}
		seen[cur] = true
		t, ok := byID[cur]
		if !ok || !t.IsSubtask() {
			break
		}
		cur = *t.ParentID
	}
	return nil
}

// RollupProgress is the rounded mean progress of the given subtasks. The
// second result is false when there are none.
func RollupProgress(subtasks []Task) (int, bool) {
	n := 0
	sum := 0
	for _, s := range subtasks {
		if s.IsDeleted() {
			continue
		}
		sum += s.Progress
		n++
	}
	if n == 0 {
		return 0, false
	}
	return (2*sum + n) / (2 * n), true
}

func indexTasks(tasks []Task) map[string]*Task {
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	return byID
}
