package engine

import (
	"context"

	"doctrans/internal/domain"
)

// Job is the normalized input handed to an engine: the immutable task
// configuration plus resolved filesystem locations.
type Job struct {
	TaskID        string
	Config        domain.JobConfig
	InputPath     string
	OutputDir     string
	OutputKey     string
	GlossaryPaths []string
}

// Engine runs one translation job and streams progress events. The
// returned channel carries zero or more non-terminal events followed by
// exactly one terminal event, then closes. The stream is not restartable;
// the caller records events as they arrive. Implementations observe ctx
// at stage boundaries and end the stream with a cancelled terminal event
// once cancellation is detected. A raw failure never escapes: any engine
// fault is normalized into a failed terminal event with a classified
// cause.
type Engine interface {
	Execute(ctx context.Context, job Job) <-chan domain.ProgressEvent
}
