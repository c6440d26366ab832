package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"doctrans/internal/domain"
	"doctrans/internal/engine"
	"doctrans/internal/infra"
)

// Recorder receives task snapshots after every applied transition, so a
// collaborator can persist them. Implementations must tolerate being
// called concurrently for different tasks.
type Recorder interface {
	Record(t domain.Task)
}

// JobBuilder resolves a validated configuration into the engine's job
// input: the uploaded file's location, the task's output directory, and
// attached glossary paths. It runs before the task is registered, so a
// missing upload or glossary is rejected up front.
type JobBuilder func(taskID string, cfg domain.JobConfig) (engine.Job, error)

// Orchestrator supervises task execution. Each created task runs the
// engine's event stream to completion in its own goroutine; every task
// eventually reaches exactly one terminal state.
type Orchestrator struct {
	registry *Registry
	bus      *Bus
	engine   engine.Engine
	build    JobBuilder
	recorder Recorder
	logger   infra.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator wires the orchestrator. recorder may be nil.
func NewOrchestrator(registry *Registry, bus *Bus, eng engine.Engine, build JobBuilder, recorder Recorder, logger infra.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		bus:      bus,
		engine:   eng,
		build:    build,
		recorder: recorder,
		logger:   logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// CreateTask registers a task and launches its execution asynchronously.
// Returns as soon as the task is in state queued.
func (o *Orchestrator) CreateTask(ctx context.Context, cfg domain.JobConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	id, err := o.registry.Create(cfg)
	if err != nil {
		return "", err
	}

	job, err := o.build(id, cfg)
	if err != nil {
		// The task exists but can never run; settle it immediately.
		o.settle(id, domain.ProgressEvent{
			Kind:  domain.EventFailed,
			Cause: err.Error(),
		})
		return id, nil
	}
	o.record(id)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(runCtx, id, job)
	return id, nil
}

// Cancel sets the cancellation signal for a task. It acknowledges that
// the signal was set, never that execution has stopped. Cancelling a task
// that already reached a terminal state is a no-op, not an error.
func (o *Orchestrator) Cancel(id string) error {
	t, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}

	_ = o.registry.MarkCancelRequested(id)

	// A task that never started executing is settled right away; the
	// engine is never invoked for it.
	if o.registry.CancelIfQueued(id) {
		o.record(id)
	}

	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.logger.Info().Str("task_id", id).Msg("cancellation requested")
	return nil
}

// Status returns the latest registry snapshot for the task.
func (o *Orchestrator) Status(id string) (domain.Task, error) {
	return o.registry.Get(id)
}

// Result returns the artifact references of a completed task. While the
// task is still queued or running it fails with ErrNotReady; for failed
// and cancelled tasks it fails with the recorded cause.
func (o *Orchestrator) Result(id string) ([]domain.ArtifactRef, error) {
	t, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case domain.TaskStatusCompleted:
		return t.Artifacts, nil
	case domain.TaskStatusFailed:
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskFailed, t.Failure)
	case domain.TaskStatusCancelled:
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskCancelled, t.Failure)
	default:
		return nil, domain.ErrNotReady
	}
}

// Subscribe attaches an observer to the task's progress stream.
func (o *Orchestrator) Subscribe(id string) (<-chan domain.ProgressEvent, func(), error) {
	return o.bus.Subscribe(id)
}

// Shutdown requests cancellation of every active task and waits for all
// execution goroutines to settle, or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for id, cancel := range o.cancels {
		o.logger.Info().Str("task_id", id).Msg("cancelling task for shutdown")
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run consumes the engine's event stream for one task. Any panic inside
// the loop is converted into a failed terminal event so the task cannot
// stay running forever.
func (o *Orchestrator) run(ctx context.Context, id string, job engine.Job) {
	defer o.wg.Done()
	defer o.release(id)
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().Str("task_id", id).Interface("panic", rec).Msg("task execution panicked")
			o.settle(id, domain.ProgressEvent{
				Kind:  domain.EventFailed,
				Cause: fmt.Sprintf("internal fault during execution: %v", rec),
			})
		}
	}()

	// Cancelled before the engine was ever invoked.
	if ctx.Err() != nil {
		if o.registry.CancelIfQueued(id) {
			o.record(id)
		}
		return
	}
	if err := o.registry.MarkRunning(id); err != nil {
		// Already settled (cancelled while queued).
		return
	}
	o.record(id)

	for event := range o.engine.Execute(ctx, job) {
		if _, err := o.registry.Transition(id, event); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			o.logger.Error().Err(err).Str("task_id", id).Msg("transition rejected")
			continue
		}
		o.record(id)
	}

	// The stream contract guarantees a terminal event, but a misbehaving
	// engine must not leave the task running.
	o.settle(id, domain.ProgressEvent{
		Kind:  domain.EventFailed,
		Cause: "engine stream ended without a terminal event",
	})
}

// settle applies a terminal event unless the task already has one.
func (o *Orchestrator) settle(id string, event domain.ProgressEvent) {
	if t, err := o.registry.Get(id); err != nil || t.Status.Terminal() {
		return
	}
	if _, err := o.registry.Transition(id, event); err == nil {
		o.record(id)
	}
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) record(id string) {
	if o.recorder == nil {
		return
	}
	if t, err := o.registry.Get(id); err == nil {
		o.recorder.Record(t)
	}
}
