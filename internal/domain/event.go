package domain

import (
	"fmt"
	"time"
)

// EventKind classifies progress notifications emitted during execution.
type EventKind string

const (
	EventStageStarted  EventKind = "stage_started"
	EventStageProgress EventKind = "stage_progress"
	EventStageFinished EventKind = "stage_finished"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
	EventCancelled     EventKind = "cancelled"
)

// Terminal reports whether the kind ends a task's event stream.
func (k EventKind) Terminal() bool {
	switch k {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	default:
		return false
	}
}

// Status maps a terminal event kind to the task state it produces.
func (k EventKind) Status() TaskStatus {
	switch k {
	case EventCompleted:
		return TaskStatusCompleted
	case EventFailed:
		return TaskStatusFailed
	case EventCancelled:
		return TaskStatusCancelled
	default:
		return TaskStatusRunning
	}
}

// ProgressEvent is a sequenced notification consumed by subscribers.
// Seq is assigned by the registry when the event is applied.
type ProgressEvent struct {
	Seq          int64         `json:"seq"`
	TaskID       string        `json:"task_id"`
	Kind         EventKind     `json:"kind"`
	Timestamp    time.Time     `json:"timestamp"`
	Stage        string        `json:"stage,omitempty"`
	Percent      float64       `json:"percent"`
	StagePercent float64       `json:"stage_percent,omitempty"`
	Message      string        `json:"message,omitempty"`
	Artifacts    []ArtifactRef `json:"artifacts,omitempty"`
	Cause        string        `json:"cause,omitempty"`
}

// EngineErrorKind classifies failures surfaced by the engine adapter.
type EngineErrorKind string

const (
	EngineErrorExtraction EngineErrorKind = "extraction"
	EngineErrorUpstream   EngineErrorKind = "upstream"
	EngineErrorRateLimit  EngineErrorKind = "rate_limit"
	EngineErrorInternal   EngineErrorKind = "internal"
)

// EngineError is a classified engine failure. The adapter never lets a
// raw failure escape; everything is normalized into this type.
type EngineError struct {
	Kind    EngineErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("engine %s failure: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
