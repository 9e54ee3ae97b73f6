package kanban

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/logging"
	"trello-project/backend/tasks-service/models"
)

var (
	ErrMoveInFlight = errors.New("a change to this task is already in flight")
	ErrTaskNotFound = errors.New("task not found on board")
	ErrEngineClosed = errors.New("engine closed")
)

// Transport persists a partial update and returns the canonical record.
type Transport interface {
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
}

// TransportError wraps any failure returned by the Transport.
type TransportError struct {
	TaskID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("task %s: transport: %v", e.TaskID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

const defaultTimeout = 15 * time.Second

// Engine turns board gestures into authorized, optimistic task updates.
// At most one change per task is in flight; overlapping gestures on the
// same task are rejected with ErrMoveInFlight.
type Engine struct {
	store     Store
	actor     models.Actor
	transport Transport
	columns   *Columns
	notifier  Notifier
	logger    logrus.FieldLogger
	timeout   time.Duration

	mu       sync.Mutex
	inflight map[string]*Mutation
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Engine)

func WithColumns(c *Columns) Option {
	return func(e *Engine) { e.columns = c }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTimeout bounds each transport call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func NewEngine(store Store, actor models.Actor, transport Transport, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		actor:     actor,
		transport: transport,
		columns:   DefaultColumns(),
		notifier:  discardNotifier{},
		logger:    logging.Logger,
		timeout:   defaultTimeout,
		inflight:  make(map[string]*Mutation),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnCardMoved handles a drag from one column to another. The returned error
// is the synchronous rejection, if any; the transport outcome arrives later
// through the Notifier. A nil return with no state change means the move
// stayed within one column.
func (e *Engine) OnCardMoved(taskID, sourceColumn, targetColumn string) error {
	from := e.columns.Resolve(sourceColumn)
	to := e.columns.Resolve(targetColumn)
	if from == to {
		return nil
	}
	return e.Transition(taskID, to, "")
}

// Transition requests a status change, with a reason for returns.
func (e *Engine) Transition(taskID string, to models.TaskStatus, reason string) error {
	return e.start(taskID, to, func(task *models.Task) (models.TaskPatch, func(*models.Task), error) {
		if err := lifecycle.Authorize(e.actor, task, to, reason); err != nil {
			return models.TaskPatch{}, nil, err
		}
		patch := models.TaskPatch{Status: &to}
		if reason != "" {
			patch.ReturnReason = &reason
		}
		apply := func(t *models.Task) {
			t.Status = to
			if reason != "" {
				t.ReturnReason = reason
			}
		}
		return patch, apply, nil
	})
}

// ToggleChecklistItem flips a checklist item optimistically. Progress is
// recomputed locally in the same step and again by the server.
func (e *Engine) ToggleChecklistItem(taskID, itemID string) error {
	return e.start(taskID, "", func(task *models.Task) (models.TaskPatch, func(*models.Task), error) {
		if !lifecycle.CanEditChecklist(e.actor, task) {
			return models.TaskPatch{}, nil, fmt.Errorf("task %s checklist: %w", task.ID, lifecycle.ErrForbidden)
		}
		next := task.Clone()
		if err := next.ToggleChecklistItem(itemID); err != nil {
			return models.TaskPatch{}, nil, fmt.Errorf("%w: %v", lifecycle.ErrValidation, err)
		}
		checklist := next.Checklist
		patch := models.TaskPatch{Checklist: &checklist}
		apply := func(t *models.Task) {
			t.SetChecklist(next.Checklist)
		}
		return patch, apply, nil
	})
}

type planFunc func(task *models.Task) (models.TaskPatch, func(*models.Task), error)

func (e *Engine) start(taskID string, to models.TaskStatus, plan planFunc) error {
	e.mu.Lock()
	m, patch, err := e.begin(taskID, plan)
	if err == nil {
		e.inflight[taskID] = m
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.WithField("taskId", taskID).Warnf("Event ID: TASK_CHANGE_REJECTED, Description: %v", err)
		e.notifier.Notify(Notice{TaskID: taskID, Kind: NoticeRejected, Message: describe(err, to), Err: err})
		return err
	}
	go e.await(m, taskID, to, patch)
	return nil
}

// begin runs under e.mu. Nothing is mutated unless it returns a nil error.
func (e *Engine) begin(taskID string, plan planFunc) (*Mutation, models.TaskPatch, error) {
	if e.closed {
		return nil, models.TaskPatch{}, ErrEngineClosed
	}
	if e.inflight[taskID] != nil {
		return nil, models.TaskPatch{}, fmt.Errorf("task %s: %w", taskID, ErrMoveInFlight)
	}
	task, ok := e.store.Get(taskID)
	if !ok {
		return nil, models.TaskPatch{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	patch, apply, err := plan(&task)
	if err != nil {
		return nil, models.TaskPatch{}, err
	}
	m, ok := Begin(e.store, taskID, apply)
	if !ok {
		return nil, models.TaskPatch{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
	}
	return m, patch, nil
}

func (e *Engine) await(m *Mutation, taskID string, to models.TaskStatus, patch models.TaskPatch) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	canonical, err := e.transport.UpdateTask(ctx, taskID, patch)
	cancel()

	log := e.logger.WithField("taskId", taskID)

	e.mu.Lock()
	delete(e.inflight, taskID)
	if e.closed {
		e.mu.Unlock()
		log.Infof("Event ID: TASK_CHANGE_DISCARDED, Description: board closed before the result for task %s arrived", taskID)
		return
	}
	var n Notice
	if err != nil {
		// Other changes still in flight keep their optimistic records.
		for id := range e.inflight {
			if t, ok := e.store.Get(id); ok {
				m.Keep(t)
			}
		}
		m.Rollback()
		terr := &TransportError{TaskID: taskID, Err: err}
		n = Notice{TaskID: taskID, Kind: NoticeRolledBack, Message: describe(terr, to), Err: terr}
	} else {
		m.Commit(canonical)
		if t, ok := e.store.Get(taskID); ok {
			for _, pending := range e.inflight {
				pending.Keep(t)
			}
		}
		n = Notice{TaskID: taskID, Kind: NoticeCommitted, Message: "Saved."}
	}
	e.mu.Unlock()

	if n.Err != nil {
		log.Errorf("Event ID: TASK_CHANGE_ROLLED_BACK, Description: %v", n.Err)
	} else {
		log.Infof("Event ID: TASK_CHANGE_COMMITTED, Description: task %s saved", taskID)
	}
	e.notifier.Notify(n)
}

// InFlight reports whether a change to taskID is awaiting the transport.
func (e *Engine) InFlight(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[taskID] != nil
}

// Wait blocks until every in-flight change has been committed or rolled back.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close tears the engine down. Results still in flight are discarded and
// the store is left as it is.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}
