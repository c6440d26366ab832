package task

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"doctrans/internal/domain"
)

func validConfig() domain.JobConfig {
	return domain.JobConfig{
		FileID:  "f1",
		LangIn:  "en",
		LangOut: "zh",
		Model:   "gpt-4o-mini",
		QPS:     1,
	}
}

func newTestRegistry() (*Registry, *Bus) {
	bus := NewBus()
	return NewRegistry(bus, zerolog.Nop()), bus
}

func TestCreateAllocatesQueuedTask(t *testing.T) {
	reg, bus := newTestRegistry()

	id, err := reg.Create(validConfig())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	snap, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Status != domain.TaskStatusQueued {
		t.Fatalf("status = %s, want queued", snap.Status)
	}
	if snap.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}

	// The bus channel exists as soon as the identifier is handed out.
	if _, cancel, err := bus.Subscribe(id); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	} else {
		cancel()
	}
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	reg, _ := newTestRegistry()

	cfg := validConfig()
	cfg.LangOut = cfg.LangIn
	if _, err := reg.Create(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("Create() error = %v, want ErrInvalidConfig", err)
	}
	if got := len(reg.List()); got != 0 {
		t.Fatalf("registered %d tasks after rejected create, want 0", got)
	}
}

func TestGetUnknownTask(t *testing.T) {
	reg, _ := newTestRegistry()
	if _, err := reg.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestTransitionAssignsSequenceAndUpdatesSnapshot(t *testing.T) {
	reg, _ := newTestRegistry()
	id, _ := reg.Create(validConfig())

	steps := []struct {
		event      domain.ProgressEvent
		wantStatus domain.TaskStatus
		wantStage  string
	}{
		{domain.ProgressEvent{Kind: domain.EventStageStarted, Stage: "layout"}, domain.TaskStatusRunning, "layout"},
		{domain.ProgressEvent{Kind: domain.EventStageProgress, Stage: "layout", Percent: 50}, domain.TaskStatusRunning, "layout"},
		{domain.ProgressEvent{Kind: domain.EventStageFinished, Stage: "layout"}, domain.TaskStatusRunning, "layout"},
		{domain.ProgressEvent{Kind: domain.EventStageStarted, Stage: "translate"}, domain.TaskStatusRunning, "translate"},
	}

	for i, step := range steps {
		applied, err := reg.Transition(id, step.event)
		if err != nil {
			t.Fatalf("step %d: Transition() error = %v", i, err)
		}
		if applied.Seq != int64(i+1) {
			t.Fatalf("step %d: seq = %d, want %d", i, applied.Seq, i+1)
		}
		if applied.Timestamp.IsZero() {
			t.Fatalf("step %d: timestamp not assigned", i)
		}
		snap, _ := reg.Get(id)
		if snap.Status != step.wantStatus || snap.Stage != step.wantStage {
			t.Fatalf("step %d: snapshot = %s/%s, want %s/%s",
				i, snap.Status, snap.Stage, step.wantStatus, step.wantStage)
		}
	}

	artifacts := []domain.ArtifactRef{
		{Kind: domain.ArtifactMono, Key: "outputs/t/mono.pdf"},
		{Kind: domain.ArtifactDual, Key: "outputs/t/dual.pdf"},
	}
	if _, err := reg.Transition(id, domain.ProgressEvent{Kind: domain.EventCompleted, Artifacts: artifacts}); err != nil {
		t.Fatalf("completed transition error = %v", err)
	}
	snap, _ := reg.Get(id)
	if snap.Status != domain.TaskStatusCompleted || snap.Percent != 100 {
		t.Fatalf("snapshot after completion = %s/%v", snap.Status, snap.Percent)
	}
	if len(snap.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(snap.Artifacts))
	}
	if snap.FinishedAt.IsZero() {
		t.Fatal("FinishedAt not set on terminal transition")
	}
}

func TestTransitionAfterTerminalIsNoOp(t *testing.T) {
	reg, _ := newTestRegistry()
	id, _ := reg.Create(validConfig())

	if _, err := reg.Transition(id, domain.ProgressEvent{Kind: domain.EventFailed, Cause: "boom"}); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	_, err := reg.Transition(id, domain.ProgressEvent{Kind: domain.EventStageProgress, Percent: 99})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}

	snap, _ := reg.Get(id)
	if snap.Status != domain.TaskStatusFailed || snap.Failure != "boom" {
		t.Fatalf("terminal state corrupted: %s/%q", snap.Status, snap.Failure)
	}
	if snap.LastSeq != 1 {
		t.Fatalf("seq advanced on rejected transition: %d", snap.LastSeq)
	}
}

func TestCancelIfQueued(t *testing.T) {
	reg, bus := newTestRegistry()
	id, _ := reg.Create(validConfig())

	if !reg.CancelIfQueued(id) {
		t.Fatal("CancelIfQueued() = false for queued task")
	}
	snap, _ := reg.Get(id)
	if snap.Status != domain.TaskStatusCancelled {
		t.Fatalf("status = %s, want cancelled", snap.Status)
	}

	// Not applicable a second time, nor to unknown tasks.
	if reg.CancelIfQueued(id) {
		t.Fatal("CancelIfQueued() = true for terminal task")
	}
	if reg.CancelIfQueued("missing") {
		t.Fatal("CancelIfQueued() = true for unknown task")
	}

	// The terminal event is stored for late subscribers.
	if latest, ok := bus.Latest(id); !ok || latest.Kind != domain.EventCancelled {
		t.Fatalf("latest = %+v ok=%v, want cancelled event", latest, ok)
	}
}

func TestMarkRunningAfterTerminalFails(t *testing.T) {
	reg, _ := newTestRegistry()
	id, _ := reg.Create(validConfig())
	reg.CancelIfQueued(id)

	if err := reg.MarkRunning(id); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("MarkRunning() error = %v, want ErrInvalidTransition", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	reg, _ := newTestRegistry()
	id, _ := reg.Create(validConfig())
	reg.Transition(id, domain.ProgressEvent{
		Kind:      domain.EventCompleted,
		Artifacts: []domain.ArtifactRef{{Kind: domain.ArtifactMono, Key: "outputs/t/mono.pdf"}},
	})

	snap, _ := reg.Get(id)
	snap.Artifacts[0].Key = "tampered"

	fresh, _ := reg.Get(id)
	if fresh.Artifacts[0].Key != "outputs/t/mono.pdf" {
		t.Fatal("mutating a snapshot leaked into registry state")
	}
}
