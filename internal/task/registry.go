package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"doctrans/internal/domain"
	"doctrans/internal/infra"
)

// Registry is the authoritative table of tasks. All mutation funnels
// through Create / MarkRunning / MarkCancelRequested / Transition under a
// single lock, so readers always observe a consistent snapshot and events
// reach the bus in the order their sequence numbers were assigned.
type Registry struct {
	mu     sync.RWMutex
	logger infra.Logger
	bus    *Bus
	tasks  map[string]*domain.Task
}

// NewRegistry creates an empty registry publishing to bus.
func NewRegistry(bus *Bus, logger infra.Logger) *Registry {
	return &Registry{
		logger: logger,
		bus:    bus,
		tasks:  make(map[string]*domain.Task),
	}
}

// Create validates the configuration and allocates a new task in state
// queued. The task's bus channel is opened before Create returns, so a
// subscriber can attach as soon as it holds the identifier.
func (r *Registry) Create(cfg domain.JobConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.tasks[id] = &domain.Task{
		ID:        id,
		Status:    domain.TaskStatusQueued,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	r.bus.Open(id)

	r.logger.Info().Str("task_id", id).
		Str("lang_in", cfg.LangIn).
		Str("lang_out", cfg.LangOut).
		Str("model", cfg.Model).
		Msg("task created")
	return id, nil
}

// Get returns a copy of the task's current snapshot.
func (r *Registry) Get(id string) (domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return snapshot(t), nil
}

// List returns copies of all known tasks.
func (r *Registry) List() []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, snapshot(t))
	}
	return out
}

// MarkRunning moves a queued task to running, the instant before engine
// execution begins. Fails with ErrInvalidTransition if the task already
// reached a terminal state (cancelled while still queued).
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s task cannot start", domain.ErrInvalidTransition, t.Status)
	}
	t.Status = domain.TaskStatusRunning
	return nil
}

// MarkCancelRequested sets the task's cancellation flag. The flag is
// observational only; the terminal transition happens when the engine
// acknowledges, or immediately via CancelIfQueued.
func (r *Registry) MarkCancelRequested(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.Status.Terminal() {
		t.CancelRequested = true
	}
	return nil
}

// CancelIfQueued transitions a task that has not started executing
// directly to cancelled. Returns true when the terminal event was applied.
func (r *Registry) CancelIfQueued(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != domain.TaskStatusQueued {
		return false
	}
	r.apply(t, domain.ProgressEvent{
		Kind:  domain.EventCancelled,
		Cause: "cancelled before execution started",
	})
	return true
}

// Transition applies a progress event to the task, assigning its sequence
// number, updating the snapshot, and publishing it on the bus — all
// atomically with respect to concurrent reads and subscriptions. Applying
// an event to a task already in a terminal state is a logged no-op that
// returns ErrInvalidTransition.
func (r *Registry) Transition(id string, event domain.ProgressEvent) (domain.ProgressEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return domain.ProgressEvent{}, domain.ErrNotFound
	}
	if t.Status.Terminal() {
		r.logger.Warn().Str("task_id", id).
			Str("status", string(t.Status)).
			Str("kind", string(event.Kind)).
			Msg("event after terminal state ignored")
		return domain.ProgressEvent{}, fmt.Errorf("%w: task is %s", domain.ErrInvalidTransition, t.Status)
	}

	return r.apply(t, event), nil
}

// apply mutates the snapshot and publishes. Caller holds r.mu.
func (r *Registry) apply(t *domain.Task, event domain.ProgressEvent) domain.ProgressEvent {
	t.LastSeq++
	event.Seq = t.LastSeq
	event.TaskID = t.ID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	switch event.Kind {
	case domain.EventStageStarted:
		t.Status = domain.TaskStatusRunning
		t.Stage = event.Stage
		t.StagePercent = 0
		t.Message = event.Message
		if event.Percent > 0 {
			t.Percent = event.Percent
		}
	case domain.EventStageProgress:
		t.Status = domain.TaskStatusRunning
		if event.Stage != "" {
			t.Stage = event.Stage
		}
		t.Percent = event.Percent
		t.StagePercent = event.StagePercent
		t.Message = event.Message
	case domain.EventStageFinished:
		t.Status = domain.TaskStatusRunning
		if event.Stage != "" {
			t.Stage = event.Stage
		}
		t.StagePercent = 100
		if event.Percent > 0 {
			t.Percent = event.Percent
		}
	case domain.EventCompleted:
		t.Status = domain.TaskStatusCompleted
		t.Percent = 100
		t.StagePercent = 100
		t.Artifacts = append([]domain.ArtifactRef(nil), event.Artifacts...)
		t.Message = event.Message
		t.FinishedAt = event.Timestamp
	case domain.EventFailed:
		t.Status = domain.TaskStatusFailed
		t.Failure = event.Cause
		t.FinishedAt = event.Timestamp
	case domain.EventCancelled:
		t.Status = domain.TaskStatusCancelled
		t.Failure = event.Cause
		t.FinishedAt = event.Timestamp
	}

	r.bus.Publish(event)
	if event.Kind.Terminal() {
		r.logger.Info().Str("task_id", t.ID).
			Str("status", string(t.Status)).
			Int64("seq", event.Seq).
			Msg("task reached terminal state")
	}
	return event
}

// snapshot deep-copies the mutable slices so callers can hold the value.
func snapshot(t *domain.Task) domain.Task {
	out := *t
	out.Artifacts = append([]domain.ArtifactRef(nil), t.Artifacts...)
	out.Config.GlossaryIDs = append([]string(nil), t.Config.GlossaryIDs...)
	return out
}
