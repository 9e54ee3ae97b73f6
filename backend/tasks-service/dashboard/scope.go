package dashboard

import (
	"sort"
	"time"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/models"
)

// DefaultUpcomingDays is the usual "due soon" window.
const DefaultUpcomingDays = 3

// MemberSet is a trusted set of member ids supplied by the membership source.
type MemberSet map[string]struct{}

func NewMemberSet(ids ...string) MemberSet {
	s := make(MemberSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s MemberSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ScopeTasks keeps the live tasks that have at least one assignee in
// trusted. Membership is never inferred from the tasks themselves.
func ScopeTasks(all []models.Task, trusted MemberSet) []models.Task {
	var out []models.Task
	for _, t := range all {
		if t.IsDeleted() {
			continue
		}
		for _, a := range t.Assignees {
			if trusted.Has(a) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

type Options struct {
	Now          time.Time
	UpcomingDays int
	// PeriodStart bounds CompletedThisPeriod for tasks carrying CompletedAt.
	// Zero means every completed task counts.
	PeriodStart time.Time
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.UpcomingDays <= 0 {
		o.UpcomingDays = DefaultUpcomingDays
	}
	return o
}

type Counters struct {
	Total               int                       `json:"total"`
	PendingApprovals    int                       `json:"pendingApprovals"`
	Overdue             int                       `json:"overdue"`
	Upcoming            int                       `json:"upcoming"`
	CompletedThisPeriod int                       `json:"completedThisPeriod"`
	ByStatus            map[models.TaskStatus]int `json:"byStatus"`
}

// Summarize computes the dashboard counters over an already scoped set.
func Summarize(tasks []models.Task, opts Options) Counters {
	opts = opts.withDefaults()
	c := Counters{ByStatus: make(map[models.TaskStatus]int)}
	for i := range tasks {
		t := &tasks[i]
		if t.IsDeleted() {
			continue
		}
		c.Total++
		c.ByStatus[lifecycle.DisplayStatus(t, opts.Now)]++
		if t.Status == models.StatusWaitingApproval {
			c.PendingApprovals++
		}
		if lifecycle.IsOverdue(t, opts.Now) {
			c.Overdue++
		}
		if isUpcoming(t, opts) {
			c.Upcoming++
		}
		if completedInPeriod(t, opts.PeriodStart) {
			c.CompletedThisPeriod++
		}
	}
	return c
}

// Overdue lists overdue tasks, earliest deadline first.
func Overdue(tasks []models.Task, now time.Time) []models.Task {
	var out []models.Task
	for i := range tasks {
		if !tasks[i].IsDeleted() && lifecycle.IsOverdue(&tasks[i], now) {
			out = append(out, tasks[i])
		}
	}
	sortByDeadline(out)
	return out
}

// Upcoming lists tasks due between now and the end of the day that is
// opts.UpcomingDays after today. Overdue tasks are never included.
func Upcoming(tasks []models.Task, opts Options) []models.Task {
	opts = opts.withDefaults()
	var out []models.Task
	for i := range tasks {
		if !tasks[i].IsDeleted() && isUpcoming(&tasks[i], opts) {
			out = append(out, tasks[i])
		}
	}
	sortByDeadline(out)
	return out
}

func isUpcoming(t *models.Task, opts Options) bool {
	if t.Deadline == nil || lifecycle.IsTerminal(t.Status) || lifecycle.IsOverdue(t, opts.Now) {
		return false
	}
	y, m, d := opts.Now.Date()
	windowEnd := time.Date(y, m, d, 0, 0, 0, 0, opts.Now.Location()).AddDate(0, 0, opts.UpcomingDays+1)
	return t.Deadline.Before(windowEnd)
}

func completedInPeriod(t *models.Task, start time.Time) bool {
	if t.Status != models.StatusCompleted {
		return false
	}
	if start.IsZero() || t.CompletedAt == nil {
		return true
	}
	return !t.CompletedAt.Before(start)
}

func sortByDeadline(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Deadline.Before(*tasks[j].Deadline)
	})
}
