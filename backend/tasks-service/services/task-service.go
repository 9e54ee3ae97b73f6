package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trello-project/backend/tasks-service/dashboard"
	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/logging"
	"trello-project/backend/tasks-service/models"
	"trello-project/backend/tasks-service/repositories"
)

// HierarchyGraph is an external mirror of the task tree.
type HierarchyGraph interface {
	EnsureNode(ctx context.Context, taskID string) error
	CreatesCycle(ctx context.Context, childID, parentID string) (bool, error)
	Link(ctx context.Context, childID, parentID string) error
	MainTaskOf(ctx context.Context, taskID string) (string, error)
}

// TaskService is the authoritative side of the updateTask contract. It
// re-runs every authorization and validation rule the client runs.
type TaskService struct {
	repo       repositories.TaskRepository
	membership repositories.MembershipSource
	graph      HierarchyGraph
	now        func() time.Time
}

type Option func(*TaskService)

// WithHierarchyGraph makes the graph the authority for parent changes.
func WithHierarchyGraph(g HierarchyGraph) Option {
	return func(s *TaskService) { s.graph = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(repo repositories.TaskRepository, membership repositories.MembershipSource, opts ...Option) *TaskService {
	s := &TaskService{repo: repo, membership: membership, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateTaskInput struct {
	ProjectID   string                 `json:"projectId"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Status      models.TaskStatus      `json:"status"`
	Priority    models.Priority        `json:"priority"`
	Deadline    *time.Time             `json:"deadline"`
	Assignees   []string               `json:"assignees"`
	Checklist   []models.ChecklistItem `json:"checklist"`
	Progress    int                    `json:"progress"`
	ParentID    string                 `json:"parentId"`
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", lifecycle.ErrValidation, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", lifecycle.ErrForbidden, fmt.Sprintf(format, args...))
}

func (s *TaskService) CreateTask(ctx context.Context, actor models.Actor, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	status := in.Status
	if status == "" {
		status = lifecycle.InitialStatus
	}
	if !status.Valid() {
		return nil, validationError("unknown status %q", in.Status)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, validationError("unknown priority %q", in.Priority)
	}

	now := s.stamp()
	task := &models.Task{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		Title:       title,
		Description: in.Description,
		Status:      status,
		Priority:    priority,
		Deadline:    in.Deadline,
		Assignees:   dedupe(in.Assignees),
		CreatorID:   actor.ID,
		Checklist:   []models.ChecklistItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Assignees == nil {
		task.Assignees = []string{}
	}
	if status == models.StatusCompleted {
		task.CompletedAt = &now
	}

	if len(in.Checklist) > 0 {
		task.SetChecklist(withItemIDs(in.Checklist))
	} else if err := task.SetManualProgress(in.Progress); err != nil {
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrValidation, err)
	}

	if in.ParentID != "" {
		parent, err := s.repo.Get(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.IsDeleted() {
			return nil, validationError("parent task %s is archived", parent.ID)
		}
		if !lifecycle.CanEdit(actor, parent) && !actor.IsAssigneeOf(parent) {
			return nil, forbidden("cannot add subtasks to task %s", parent.ID)
		}
		if task.ProjectID == "" {
			task.ProjectID = parent.ProjectID
		}
		parentID := parent.ID
		task.ParentID = &parentID
	}

	if err := s.repo.Insert(ctx, task); err != nil {
		return nil, err
	}
	if s.graph != nil {
		if err := s.graph.EnsureNode(ctx, task.ID); err != nil {
			logging.Logger.Errorf("Event ID: HIERARCHY_SYNC_FAILED, Description: failed to mirror task %s: %v", task.ID, err)
		} else if task.ParentID != nil {
			if err := s.graph.Link(ctx, task.ID, *task.ParentID); err != nil {
				logging.Logger.Errorf("Event ID: HIERARCHY_SYNC_FAILED, Description: %v", err)
			}
		}
	}
	if task.ParentID != nil {
		s.rollupParent(ctx, *task.ParentID)
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: task %s created by %s", task.ID, actor.ID)
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.Get(ctx, id)
}

// ListTasks returns every live task.
func (s *TaskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make([]models.Task, 0, len(all))
	for _, t := range all {
		if !t.IsDeleted() {
			live = append(live, t)
		}
	}
	return live, nil
}

// UpdateTask applies a partial patch after checking the actor's authority
// for every field it touches. Status changes go through lifecycle.Authorize.
func (s *TaskService) UpdateTask(ctx context.Context, actor models.Actor, id string, patch models.TaskPatch) (*models.Task, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted() {
		return nil, forbidden("task %s is archived", id)
	}

	next := current.Clone()
	now := s.stamp()
	var fields []string

	if patch.Deadline != nil && patch.ClearDeadline {
		return nil, validationError("deadline and clearDeadline are mutually exclusive")
	}
	if patch.Title != nil || patch.Description != nil || patch.Priority != nil || patch.Deadline != nil || patch.ClearDeadline {
		if !lifecycle.CanEdit(actor, current) {
			return nil, forbidden("cannot edit task %s", id)
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return nil, validationError("title is required")
			}
			next.Title = title
			fields = append(fields, "title")
		}
		if patch.Description != nil {
			next.Description = *patch.Description
			fields = append(fields, "description")
		}
		if patch.Priority != nil {
			if !patch.Priority.Valid() {
				return nil, validationError("unknown priority %q", *patch.Priority)
			}
			next.Priority = *patch.Priority
			fields = append(fields, "priority")
		}
		if patch.Deadline != nil {
			d := *patch.Deadline
			next.Deadline = &d
			fields = append(fields, "deadline")
		}
		if patch.ClearDeadline {
			next.Deadline = nil
			fields = append(fields, "deadline")
		}
	}

	if patch.Assignees != nil {
		if !lifecycle.CanAssign(actor, current) {
			return nil, forbidden("cannot change assignees of task %s", id)
		}
		next.Assignees = dedupe(*patch.Assignees)
		if next.Assignees == nil {
			next.Assignees = []string{}
		}
		fields = append(fields, "assignees")
	}

	parentChanged := false
	if patch.ParentID != nil {
		if !lifecycle.CanEdit(actor, current) {
			return nil, forbidden("cannot move task %s", id)
		}
		if err := s.validateParent(ctx, id, *patch.ParentID); err != nil {
			return nil, err
		}
		oldParent := ""
		if current.ParentID != nil {
			oldParent = *current.ParentID
		}
		parentChanged = oldParent != *patch.ParentID
		if *patch.ParentID == "" {
			next.ParentID = nil
		} else {
			p := *patch.ParentID
			next.ParentID = &p
		}
		fields = append(fields, "parentId")
	}

	if patch.Checklist != nil || patch.Progress != nil {
		if !lifecycle.CanEditChecklist(actor, current) {
			return nil, forbidden("cannot update progress of task %s", id)
		}
		if patch.Checklist != nil {
			next.SetChecklist(withItemIDs(*patch.Checklist))
			fields = append(fields, "checklist")
		}
		if patch.Progress != nil {
			if err := next.SetManualProgress(*patch.Progress); err != nil {
				return nil, fmt.Errorf("%w: %v", lifecycle.ErrValidation, err)
			}
		}
		fields = append(fields, "progress")
	}

	if patch.ReturnReason != nil && patch.Status == nil {
		return nil, validationError("a return reason only accompanies a status change")
	}
	if patch.Status != nil && *patch.Status != current.Status {
		to := *patch.Status
		reason := ""
		if patch.ReturnReason != nil {
			reason = strings.TrimSpace(*patch.ReturnReason)
		}
		if err := lifecycle.Authorize(actor, current, to, reason); err != nil {
			return nil, err
		}
		next.Status = to
		if to == models.StatusReturned && reason != "" {
			next.ReturnReason = reason
		}
		if to == models.StatusCompleted {
			next.CompletedAt = &now
		} else {
			next.CompletedAt = nil
		}
		fields = append(fields, "status", "returnReason", "completedAt")
		logging.Logger.Infof("Event ID: TASK_STATUS_CHANGED, Description: task %s moved %s -> %s by %s", id, current.Status, to, actor.ID)
	}

	next.UpdatedAt = now
	fields = append(fields, "updatedAt")
	// The write only lands if nothing changed since Get, so a status read
	// above is the status Authorize checked.
	if err := s.repo.Update(ctx, &next, fields...); err != nil {
		return nil, err
	}

	if parentChanged && s.graph != nil {
		parent := ""
		if next.ParentID != nil {
			parent = *next.ParentID
		}
		if err := s.graph.Link(ctx, id, parent); err != nil {
			logging.Logger.Errorf("Event ID: HIERARCHY_SYNC_FAILED, Description: %v", err)
		}
	}
	if next.Progress != current.Progress || parentChanged {
		if next.ParentID != nil {
			s.rollupParent(ctx, *next.ParentID)
		}
		if parentChanged && current.ParentID != nil {
			s.rollupParent(ctx, *current.ParentID)
		}
	}
	return &next, nil
}

// DeleteTask archives a task. Archived tasks accept no further changes.
func (s *TaskService) DeleteTask(ctx context.Context, actor models.Actor, id string) error {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.IsDeleted() {
		return nil
	}
	if !lifecycle.CanDelete(actor, task) {
		return forbidden("cannot delete task %s", id)
	}
	now := s.stamp()
	task.DeletedAt = &now
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task, "deletedAt", "updatedAt"); err != nil {
		return err
	}
	if task.ParentID != nil {
		s.rollupParent(ctx, *task.ParentID)
	}
	logging.Logger.Infof("Event ID: TASK_DELETED, Description: task %s archived by %s", id, actor.ID)
	return nil
}

// Subtasks lists the live children of a task.
func (s *TaskService) Subtasks(ctx context.Context, id string) ([]models.Task, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	live, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	subs := models.Subtasks(live, id)
	if subs == nil {
		subs = []models.Task{}
	}
	return subs, nil
}

// MainTask resolves the root ancestor of a task.
func (s *TaskService) MainTask(ctx context.Context, id string) (*models.Task, error) {
	if s.graph != nil {
		rootID, err := s.graph.MainTaskOf(ctx, id)
		if err != nil {
			return nil, err
		}
		if rootID != "" {
			return s.repo.Get(ctx, rootID)
		}
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	root, err := models.MainTaskOf(all, id)
	if errors.Is(err, models.ErrParentNotFound) {
		return nil, fmt.Errorf("%w: %v", repositories.ErrNotFound, err)
	}
	return root, err
}

type DashboardView struct {
	Counters dashboard.Counters `json:"counters"`
	Overdue  []models.Task      `json:"overdue"`
	Upcoming []models.Task      `json:"upcoming"`
}

// Dashboard aggregates the tasks of the actor's trusted members.
func (s *TaskService) Dashboard(ctx context.Context, actor models.Actor, upcomingDays int, periodStart time.Time) (*DashboardView, error) {
	members, err := s.membership.TrustedMembers(ctx, actor)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	scoped := dashboard.ScopeTasks(all, dashboard.NewMemberSet(members...))
	opts := dashboard.Options{Now: s.now(), UpcomingDays: upcomingDays, PeriodStart: periodStart}
	view := &DashboardView{
		Counters: dashboard.Summarize(scoped, opts),
		Overdue:  dashboard.Overdue(scoped, opts.Now),
		Upcoming: dashboard.Upcoming(scoped, opts),
	}
	if view.Overdue == nil {
		view.Overdue = []models.Task{}
	}
	if view.Upcoming == nil {
		view.Upcoming = []models.Task{}
	}
	return view, nil
}

func (s *TaskService) validateParent(ctx context.Context, childID, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := s.repo.Get(ctx, parentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return validationError("parent task %s not found", parentID)
		}
		return err
	}
	if parent.IsDeleted() {
		return validationError("parent task %s is archived", parentID)
	}
	if s.graph != nil {
		cycle, err := s.graph.CreatesCycle(ctx, childID, parentID)
		if err != nil {
			return err
		}
		if cycle {
			return validationError("moving %s under %s: %v", childID, parentID, models.ErrHierarchyCycle)
		}
		return nil
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if err := models.ValidateParent(all, childID, parentID); err != nil {
		return fmt.Errorf("%w: %v", lifecycle.ErrValidation, err)
	}
	return nil
}

// rollupParent refreshes progress up the ancestor chain, starting at
// parentID. It stops at the first ancestor with a checklist of its own or
// whose progress does not change. Failures are logged, not returned.
func (s *TaskService) rollupParent(ctx context.Context, parentID string) {
	all, err := s.repo.List(ctx)
	if err != nil {
		logging.Logger.Warnf("Event ID: PROGRESS_ROLLUP_FAILED, Description: %v", err)
		return
	}
	byID := make(map[string]*models.Task, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	seen := map[string]bool{}
	for id := parentID; id != "" && !seen[id]; {
		seen[id] = true
		parent, ok := byID[id]
		if !ok || parent.IsDeleted() || len(parent.Checklist) > 0 {
			return
		}
		p, ok := models.RollupProgress(models.Subtasks(all, id))
		if !ok || p == parent.Progress {
			return
		}
		if err := s.repo.SetProgress(ctx, id, p); err != nil {
			logging.Logger.Warnf("Event ID: PROGRESS_ROLLUP_FAILED, Description: %v", err)
			return
		}
		// all is reused one level up, so it must see the new value
		parent.Progress = p
		if !parent.IsSubtask() {
			return
		}
		id = *parent.ParentID
	}
}

// stamp is the current time at the precision MongoDB stores.
func (s *TaskService) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func dedupe(ids []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func withItemIDs(items []models.ChecklistItem) []models.ChecklistItem {
	out := make([]models.ChecklistItem, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		out[i] = item
	}
	return out
}
