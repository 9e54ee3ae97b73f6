package kanban

import (
	"sync"

	"trello-project/backend/tasks-service/models"
)

// Mutation is an optimistic local change that is later committed or
// rolled back. Begin snapshots the store and applies the change at once.
type Mutation struct {
	store    Store
	taskID   string
	snapshot []models.Task
	kept     map[string]models.Task

	once sync.Once
}

// Begin snapshots store, then applies fn to the task. It returns false
// (and leaves the store untouched) when the task is not in the store.
func Begin(store Store, taskID string, fn func(*models.Task)) (*Mutation, bool) {
	m := &Mutation{store: store, taskID: taskID, snapshot: store.Snapshot()}
	if !store.Update(taskID, fn) {
		return nil, false
	}
	return m, true
}

// Commit keeps the optimistic state. A non-nil canonical record replaces
// the local one since the server may have normalized fields.
func (m *Mutation) Commit(canonical *models.Task) {
	m.once.Do(func() {
		if canonical == nil {
			return
		}
		c := canonical.Clone()
		m.store.Update(m.taskID, func(t *models.Task) { *t = c })
	})
}

// Keep marks a record that must survive a rollback of m, such as another
// task's change that was committed after m began. The latest record kept
// for a task wins.
func (m *Mutation) Keep(t models.Task) {
	if t.ID == m.taskID {
		return
	}
	if m.kept == nil {
		m.kept = make(map[string]models.Task)
	}
	m.kept[t.ID] = t.Clone()
}

// Rollback restores the collection to the pre-change snapshot, then puts
// back every record passed to Keep.
func (m *Mutation) Rollback() {
	m.once.Do(func() {
		m.store.Restore(m.snapshot)
		for id, kept := range m.kept {
			k := kept
			m.store.Update(id, func(t *models.Task) { *t = k })
		}
	})
}

// Snapshot returns a copy of the state captured by Begin.
func (m *Mutation) Snapshot() []models.Task {
	return models.CloneTasks(m.snapshot)
}
