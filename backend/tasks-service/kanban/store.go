package kanban

import (
	"sync"

	"trello-project/backend/tasks-service/models"
)

// Store is the caller-owned task collection the engine mutates. The engine
// never keeps task state of its own.
type Store interface {
	Snapshot() []models.Task
	Restore(tasks []models.Task)
	Get(id string) (models.Task, bool)
	Update(id string, fn func(*models.Task)) bool
}

// Board is a concurrency-safe Store backing a Kanban view.
type Board struct {
	mu    sync.RWMutex
	tasks []models.Task
}

func NewBoard(tasks []models.Task) *Board {
	return &Board{tasks: models.CloneTasks(tasks)}
}

func (b *Board) Snapshot() []models.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.CloneTasks(b.tasks)
}

func (b *Board) Restore(tasks []models.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = models.CloneTasks(tasks)
}

func (b *Board) Get(id string) (models.Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return b.tasks[i].Clone(), true
		}
	}
	return models.Task{}, false
}

func (b *Board) Update(id string, fn func(*models.Task)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			fn(&b.tasks[i])
			return true
		}
	}
	return false
}

// Columns groups live tasks by stored status. Deleted tasks are left out.
func (b *Board) Columns() map[models.TaskStatus][]models.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[models.TaskStatus][]models.Task, len(models.Statuses))
	for _, t := range b.tasks {
		if t.IsDeleted() {
			continue
		}
		out[t.Status] = append(out[t.Status], t.Clone())
	}
	return out
}
