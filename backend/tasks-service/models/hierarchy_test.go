package models

import (
	"errors"
	"testing"
)

func ptr(s string) *string { return &s }

func tree() []Task {
	return []Task{
		{ID: "root"},
		{ID: "a", ParentID: ptr("root"), Progress: 50},
		{ID: "b", ParentID: ptr("root"), Progress: 100},
		{ID: "a1", ParentID: ptr("a")},
	}
}

func TestSubtasks(t *testing.T) {
	subs := Subtasks(tree(), "root")
	if len(subs) != 2 || subs[0].ID != "a" || subs[1].ID != "b" {
		t.Fatalf("Subtasks = %+v", subs)
	}
}

func TestMainTaskOf(t *testing.T) {
	root, err := MainTaskOf(tree(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if root.ID != "root" {
		t.Fatalf("root = %s", root.ID)
	}
}

func TestMainTaskOf_Cycle(t *testing.T) {
	tasks := []Task{
		{ID: "x", ParentID: ptr("y")},
		{ID: "y", ParentID: ptr("x")},
	}
	if _, err := MainTaskOf(tasks, "x"); !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("got %v", err)
	}
}

func TestValidateParent(t *testing.T) {
	tasks := tree()
	if err := ValidateParent(tasks, "b", "a"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := ValidateParent(tasks, "root", "a1"); !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("got %v", err)
	}
	if err := ValidateParent(tasks, "a", "a"); !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("got %v", err)
	}
	if err := ValidateParent(tasks, "a", "missing"); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestRollupProgress(t *testing.T) {
	got, ok := RollupProgress(Subtasks(tree(), "root"))
	if !ok || got != 75 {
		t.Fatalf("RollupProgress = %d, %v", got, ok)
	}
	if _, ok := RollupProgress(nil); ok {
		t.Fatal("expected no value for no subtasks")
	}
}

func TestClone_DoesNotShare(t *testing.T) {
	orig := Task{ID: "t", Assignees: []string{"m1"}, Checklist: items(false), ParentID: ptr("p")}
	c := orig.Clone()
	c.Assignees[0] = "m2"
	c.Checklist[0].Completed = true
	*c.ParentID = "q"
	if orig.Assignees[0] != "m1" || orig.Checklist[0].Completed || *orig.ParentID != "p" {
		t.Fatalf("clone shares state with original: %+v", orig)
	}
}
