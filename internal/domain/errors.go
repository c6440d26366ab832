package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotReady          = errors.New("result not ready")
	ErrTaskFailed        = errors.New("task failed")
	ErrTaskCancelled     = errors.New("task cancelled")
)
