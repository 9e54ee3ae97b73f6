package lifecycle

import (
	"reflect"
	"testing"
	"time"

	"trello-project/backend/tasks-service/models"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from models.TaskStatus
		want []models.TaskStatus
	}{
		{models.StatusNotAssigned, []models.TaskStatus{models.StatusInProgress, models.StatusReturned}},
		{models.StatusInProgress, []models.TaskStatus{models.StatusWaitingApproval}},
		{models.StatusWaitingApproval, []models.TaskStatus{models.StatusReturned, models.StatusCompleted}},
		{models.StatusReturned, []models.TaskStatus{models.StatusInProgress, models.StatusWaitingApproval}},
		{models.StatusCompleted, nil},
		{models.StatusOverdue, nil},
	}
	for _, tt := range tests {
		if got := Next(tt.from); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Next(%s) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestEdgeKinds(t *testing.T) {
	if k, ok := Edge(models.StatusWaitingApproval, models.StatusReturned); !ok || k != KindReturn {
		t.Fatalf("got %s %v", k, ok)
	}
	if !RequiresReason(models.StatusWaitingApproval, models.StatusReturned) {
		t.Fatal("return must require a reason")
	}
	if RequiresReason(models.StatusNotAssigned, models.StatusReturned) {
		t.Fatal("decline must not require a reason")
	}
	if _, ok := Edge(models.StatusInProgress, models.StatusCompleted); ok {
		t.Fatal("in-progress -> completed is not an edge")
	}
}

func TestDisplayStatus(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	overdue := &models.Task{Status: models.StatusInProgress, Deadline: &past}
	if got := DisplayStatus(overdue, now); got != models.StatusOverdue {
		t.Fatalf("got %s", got)
	}
	if overdue.Status != models.StatusInProgress {
		t.Fatal("display must not overwrite stored status")
	}
	done := &models.Task{Status: models.StatusCompleted, Deadline: &past}
	if IsOverdue(done, now) {
		t.Fatal("completed tasks are never overdue")
	}
	onTime := &models.Task{Status: models.StatusInProgress, Deadline: &future}
	if IsOverdue(onTime, now) {
		t.Fatal("future deadline is not overdue")
	}
	if IsOverdue(&models.Task{Status: models.StatusInProgress}, now) {
		t.Fatal("no deadline is never overdue")
	}
}
