package domain

import "time"

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions may occur.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ArtifactKind names a produced output category.
type ArtifactKind string

const (
	ArtifactMono ArtifactKind = "mono"
	ArtifactDual ArtifactKind = "dual"
)

// ArtifactRef points at a stored output. The store owns the bytes; tasks
// only carry the key.
type ArtifactRef struct {
	Kind ArtifactKind `json:"kind"`
	Key  string       `json:"key"`
}

// Task is a snapshot of one translation unit of work. Registry hands out
// copies, so mutating a snapshot never affects the authoritative state.
type Task struct {
	ID              string        `json:"id"`
	Status          TaskStatus    `json:"status"`
	Config          JobConfig     `json:"config"`
	CreatedAt       time.Time     `json:"created_at"`
	FinishedAt      time.Time     `json:"finished_at,omitempty"`
	Stage           string        `json:"stage,omitempty"`
	Percent         float64       `json:"percent"`
	StagePercent    float64       `json:"stage_percent,omitempty"`
	Message         string        `json:"message,omitempty"`
	Artifacts       []ArtifactRef `json:"artifacts,omitempty"`
	Failure         string        `json:"failure,omitempty"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	LastSeq         int64         `json:"last_seq"`
}

// UploadedInput describes a file accepted by intake, referenced by tasks
// through JobConfig.FileID.
type UploadedInput struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"upload_time"`
}
