package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/models"
	"trello-project/backend/tasks-service/repositories"
)

type memRepo struct {
	mu    sync.Mutex
	tasks map[string]models.Task
}

func newMemRepo(tasks ...models.Task) *memRepo {
	r := &memRepo{tasks: map[string]models.Task{}}
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
	return r
}

func (r *memRepo) Insert(_ context.Context, t *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t.Clone()
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := t.Clone()
	return &c, nil
}

func (r *memRepo) List(_ context.Context) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Update(_ context.Context, t *models.Task, _ ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[t.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Revision != t.Revision {
		return repositories.ErrConflict
	}
	t.Revision++
	r.tasks[t.ID] = t.Clone()
	return nil
}

func (r *memRepo) SetProgress(_ context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if len(stored.Checklist) > 0 {
		return repositories.ErrConflict
	}
	stored.Progress = progress
	r.tasks[id] = stored
	return nil
}

// racingRepo runs interleave once, between the service's read and its write.
type racingRepo struct {
	*memRepo
	interleave func()
}

func (r *racingRepo) Update(ctx context.Context, t *models.Task, fields ...string) error {
	if f := r.interleave; f != nil {
		r.interleave = nil
		f()
	}
	return r.memRepo.Update(ctx, t, fields...)
}

type staticMembers []string

func (s staticMembers) TrustedMembers(context.Context, models.Actor) ([]string, error) {
	return s, nil
}

type fakeGraph struct {
	cycle bool
	links map[string]string
	nodes []string
}

func (g *fakeGraph) EnsureNode(_ context.Context, id string) error {
	g.nodes = append(g.nodes, id)
	return nil
}

func (g *fakeGraph) CreatesCycle(context.Context, string, string) (bool, error) {
	return g.cycle, nil
}

func (g *fakeGraph) Link(_ context.Context, child, parent string) error {
	if g.links == nil {
		g.links = map[string]string{}
	}
	g.links[child] = parent
	return nil
}

func (g *fakeGraph) MainTaskOf(_ context.Context, id string) (string, error) {
	for {
		p, ok := g.links[id]
		if !ok || p == "" {
			return id, nil
		}
		id = p
	}
}

var (
	now      = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	creator  = models.Actor{ID: "acct-lead", Role: models.RoleLeader, MemberID: "mem-lead"}
	staff    = models.Actor{ID: "acct-staff", Role: models.RoleStaff, MemberID: "mem-staff"}
	outsider = models.Actor{ID: "acct-x", Role: models.RoleStaff, MemberID: "mem-x"}
)

func strp(s string) *string { return &s }

func statusp(s models.TaskStatus) *models.TaskStatus { return &s }

func seedTask(id string, status models.TaskStatus) models.Task {
	return models.Task{
		ID:        id,
		Title:     "task " + id,
		Status:    status,
		Priority:  models.PriorityMedium,
		Assignees: []string{staff.MemberID},
		CreatorID: creator.ID,
		Checklist: []models.ChecklistItem{},
		CreatedAt: now.Add(-48 * time.Hour),
	}
}

func newService(repo *memRepo, opts ...Option) *TaskService {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewTaskService(repo, staticMembers{staff.MemberID}, opts...)
}

func TestCreateTaskDefaults(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)

	task, err := svc.CreateTask(context.Background(), creator, CreateTaskInput{
		Title:     "  Write report ",
		Assignees: []string{"mem-a", "mem-a", " "},
		Checklist: []models.ChecklistItem{{Content: "draft", Completed: true}, {Content: "review"}},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Title != "Write report" || task.Status != models.StatusNotAssigned || task.Priority != models.PriorityMedium {
		t.Errorf("unexpected defaults: %+v", task)
	}
	if len(task.Assignees) != 1 {
		t.Errorf("assignees = %v, want deduplicated", task.Assignees)
	}
	if task.Progress != 50 {
		t.Errorf("progress = %d, want 50", task.Progress)
	}
	for _, item := range task.Checklist {
		if item.ID == "" {
			t.Errorf("checklist item without id: %+v", item)
		}
	}
	if task.CreatorID != creator.ID {
		t.Errorf("creator = %q", task.CreatorID)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc := newService(newMemRepo())
	cases := []CreateTaskInput{
		{Title: ""},
		{Title: "x", Status: "overdue"},
		{Title: "x", Priority: "urgent"},
		{Title: "x", Progress: 101},
	}
	for _, in := range cases {
		if _, err := svc.CreateTask(context.Background(), creator, in); !errors.Is(err, lifecycle.ErrValidation) {
			t.Errorf("CreateTask(%+v) error = %v, want validation", in, err)
		}
	}
}

func TestUpdateTaskStatusByAssignee(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusInProgress))
	svc := newService(repo)

	got, err := svc.UpdateTask(context.Background(), staff, "T1", models.TaskPatch{Status: statusp(models.StatusWaitingApproval)})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Status != models.StatusWaitingApproval {
		t.Errorf("status = %s", got.Status)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updatedAt = %v, want %v", got.UpdatedAt, now)
	}

	_, err = svc.UpdateTask(context.Background(), staff, "T1", models.TaskPatch{Status: statusp(models.StatusCompleted)})
	if !errors.Is(err, lifecycle.ErrForbidden) {
		t.Fatalf("assignee approve error = %v, want forbidden", err)
	}
}

func TestUpdateTaskApproveStampsCompletion(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusWaitingApproval))
	svc := newService(repo)

	got, err := svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Status: statusp(models.StatusCompleted)})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("completedAt = %v", got.CompletedAt)
	}

	_, err = svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Status: statusp(models.StatusInProgress)})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("leaving completed error = %v, want invalid transition", err)
	}
}

func TestUpdateTaskReturnNeedsReason(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusWaitingApproval))
	svc := newService(repo)

	_, err := svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Status: statusp(models.StatusReturned), ReturnReason: strp("  ")})
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}

	got, err := svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Status: statusp(models.StatusReturned), ReturnReason: strp("missing totals")})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.ReturnReason != "missing totals" {
		t.Errorf("returnReason = %q", got.ReturnReason)
	}
}

func TestUpdateTaskFieldAuthority(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusInProgress))
	svc := newService(repo)
	ctx := context.Background()

	if _, err := svc.UpdateTask(ctx, staff, "T1", models.TaskPatch{Title: strp("renamed")}); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("assignee edit error = %v, want forbidden", err)
	}
	assignees := []string{"mem-other"}
	if _, err := svc.UpdateTask(ctx, staff, "T1", models.TaskPatch{Assignees: &assignees}); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("assignee reassign error = %v, want forbidden", err)
	}
	checklist := []models.ChecklistItem{{ID: "a", Content: "one", Completed: true}}
	if _, err := svc.UpdateTask(ctx, outsider, "T1", models.TaskPatch{Checklist: &checklist}); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("outsider checklist error = %v, want forbidden", err)
	}
	got, err := svc.UpdateTask(ctx, staff, "T1", models.TaskPatch{Checklist: &checklist})
	if err != nil {
		t.Fatalf("assignee checklist: %v", err)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	progress := 40
	if _, err := svc.UpdateTask(ctx, staff, "T1", models.TaskPatch{Progress: &progress}); !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("manual progress over checklist error = %v, want validation", err)
	}
}

func TestUpdateTaskArchived(t *testing.T) {
	task := seedTask("T1", models.StatusInProgress)
	deleted := now.Add(-time.Hour)
	task.DeletedAt = &deleted
	svc := newService(newMemRepo(task))

	_, err := svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Title: strp("x")})
	if !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("error = %v, want forbidden", err)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	svc := newService(newMemRepo())
	_, err := svc.UpdateTask(context.Background(), creator, "nope", models.TaskPatch{})
	if !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestUpdateTaskParentCycle(t *testing.T) {
	parent := seedTask("P", models.StatusInProgress)
	child := seedTask("C", models.StatusInProgress)
	child.ParentID = strp("P")
	svc := newService(newMemRepo(parent, child))

	_, err := svc.UpdateTask(context.Background(), creator, "P", models.TaskPatch{ParentID: strp("C")})
	if !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("cycle error = %v, want validation", err)
	}
}

func TestUpdateTaskParentUsesGraph(t *testing.T) {
	a := seedTask("A", models.StatusInProgress)
	b := seedTask("B", models.StatusInProgress)
	graph := &fakeGraph{cycle: true}
	svc := newService(newMemRepo(a, b), WithHierarchyGraph(graph))

	if _, err := svc.UpdateTask(context.Background(), creator, "A", models.TaskPatch{ParentID: strp("B")}); !errors.Is(err, lifecycle.ErrValidation) {
		t.Fatalf("error = %v, want validation from graph", err)
	}

	graph.cycle = false
	got, err := svc.UpdateTask(context.Background(), creator, "A", models.TaskPatch{ParentID: strp("B")})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != "B" {
		t.Errorf("parentId = %v", got.ParentID)
	}
	if graph.links["A"] != "B" {
		t.Errorf("graph links = %v", graph.links)
	}

	root, err := svc.MainTask(context.Background(), "A")
	if err != nil {
		t.Fatalf("MainTask: %v", err)
	}
	if root.ID != "B" {
		t.Errorf("main task = %s, want B", root.ID)
	}
}

func TestSubtaskProgressRollsUp(t *testing.T) {
	parent := seedTask("P", models.StatusInProgress)
	s1 := seedTask("S1", models.StatusInProgress)
	s1.ParentID = strp("P")
	s1.Progress = 100
	s2 := seedTask("S2", models.StatusInProgress)
	s2.ParentID = strp("P")
	repo := newMemRepo(parent, s1, s2)
	svc := newService(repo)

	progress := 50
	if _, err := svc.UpdateTask(context.Background(), staff, "S2", models.TaskPatch{Progress: &progress}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ := repo.Get(context.Background(), "P")
	if got.Progress != 75 {
		t.Errorf("parent progress = %d, want 75", got.Progress)
	}

	subs, err := svc.Subtasks(context.Background(), "P")
	if err != nil {
		t.Fatalf("Subtasks: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("subtasks = %d, want 2", len(subs))
	}
}

func TestProgressRollsUpEveryAncestor(t *testing.T) {
	grand := seedTask("G", models.StatusInProgress)
	parent := seedTask("P", models.StatusInProgress)
	parent.ParentID = strp("G")
	child := seedTask("C", models.StatusInProgress)
	child.ParentID = strp("P")
	repo := newMemRepo(grand, parent, child)
	svc := newService(repo)

	progress := 100
	if _, err := svc.UpdateTask(context.Background(), staff, "C", models.TaskPatch{Progress: &progress}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	for _, id := range []string{"P", "G"} {
		got, _ := repo.Get(context.Background(), id)
		if got.Progress != 100 {
			t.Errorf("%s progress = %d, want 100", id, got.Progress)
		}
	}
}

func TestProgressRollupStopsOnParentCycle(t *testing.T) {
	a := seedTask("A", models.StatusInProgress)
	a.ParentID = strp("B")
	b := seedTask("B", models.StatusInProgress)
	b.ParentID = strp("A")
	c := seedTask("C", models.StatusInProgress)
	c.ParentID = strp("A")
	repo := newMemRepo(a, b, c)
	svc := newService(repo)

	progress := 60
	if _, err := svc.UpdateTask(context.Background(), staff, "C", models.TaskPatch{Progress: &progress}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ := repo.Get(context.Background(), "A")
	if got.Progress == 0 {
		t.Errorf("A progress not refreshed")
	}
}

func TestUpdateTaskLosesToConcurrentApproval(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusWaitingApproval))
	other := newService(repo)
	racing := &racingRepo{memRepo: repo}
	racing.interleave = func() {
		if _, err := other.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Status: statusp(models.StatusCompleted)}); err != nil {
			t.Fatalf("concurrent approval: %v", err)
		}
	}
	svc := NewTaskService(racing, staticMembers{staff.MemberID}, WithClock(func() time.Time { return now }))

	_, err := svc.UpdateTask(context.Background(), creator, "T1", models.TaskPatch{Title: strp("renamed")})
	if !errors.Is(err, repositories.ErrConflict) {
		t.Fatalf("error = %v, want conflict", err)
	}
	got, _ := repo.Get(context.Background(), "T1")
	if got.Status != models.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("approval was overwritten: status = %s, completedAt = %v", got.Status, got.CompletedAt)
	}
	if got.Title != "task T1" {
		t.Errorf("title = %q, stale write landed", got.Title)
	}
}

func TestUpdateTaskDeadline(t *testing.T) {
	task := seedTask("T1", models.StatusInProgress)
	deadline := now.Add(24 * time.Hour)
	task.Deadline = &deadline
	repo := newMemRepo(task)
	svc := newService(repo)
	ctx := context.Background()

	later := now.Add(72 * time.Hour)
	if _, err := svc.UpdateTask(ctx, creator, "T1", models.TaskPatch{Deadline: &later, ClearDeadline: true}); !errors.Is(err, lifecycle.ErrValidation) {
		t.Errorf("deadline with clearDeadline error = %v, want validation", err)
	}
	if _, err := svc.UpdateTask(ctx, staff, "T1", models.TaskPatch{ClearDeadline: true}); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("assignee clear error = %v, want forbidden", err)
	}

	got, err := svc.UpdateTask(ctx, creator, "T1", models.TaskPatch{ClearDeadline: true})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got.Deadline != nil {
		t.Errorf("deadline = %v, want cleared", got.Deadline)
	}
	stored, _ := repo.Get(ctx, "T1")
	if stored.Deadline != nil {
		t.Errorf("stored deadline = %v, want cleared", stored.Deadline)
	}
}

func TestDeleteTask(t *testing.T) {
	repo := newMemRepo(seedTask("T1", models.StatusInProgress))
	svc := newService(repo)
	ctx := context.Background()

	if err := svc.DeleteTask(ctx, staff, "T1"); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("assignee delete error = %v, want forbidden", err)
	}
	if err := svc.DeleteTask(ctx, creator, "T1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	live, _ := svc.ListTasks(ctx)
	if len(live) != 0 {
		t.Errorf("live tasks = %d, want 0", len(live))
	}
	if _, err := svc.UpdateTask(ctx, creator, "T1", models.TaskPatch{Status: statusp(models.StatusWaitingApproval)}); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("update archived error = %v, want forbidden", err)
	}
}

func TestDashboardScopesToMembers(t *testing.T) {
	mine := seedTask("T1", models.StatusWaitingApproval)
	late := seedTask("T2", models.StatusInProgress)
	past := now.Add(-24 * time.Hour)
	late.Deadline = &past
	other := seedTask("T3", models.StatusWaitingApproval)
	other.Assignees = []string{"mem-elsewhere"}
	svc := newService(newMemRepo(mine, late, other))

	view, err := svc.Dashboard(context.Background(), creator, 0, time.Time{})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if view.Counters.Total != 2 {
		t.Errorf("total = %d, want 2", view.Counters.Total)
	}
	if view.Counters.PendingApprovals != 1 {
		t.Errorf("pending approvals = %d, want 1", view.Counters.PendingApprovals)
	}
	if len(view.Overdue) != 1 || view.Overdue[0].ID != "T2" {
		t.Errorf("overdue = %+v", view.Overdue)
	}
	if view.Upcoming == nil {
		t.Error("upcoming should be an empty list, not nil")
	}
}
