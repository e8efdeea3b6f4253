package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the staging and orchestration layers.
// NotFound deliberately covers missing, expired and foreign-owner references
// so callers cannot probe for other users' data.
var (
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrFileTooLarge         = errors.New("file exceeds every platform's size limit")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict: already consumed or state changed")
	ErrReferenceUnavailable = errors.New("reference unavailable")
	ErrTimeoutExceeded      = errors.New("timeout exceeded")
)

// AdapterError wraps any platform-side failure so the orchestrator can
// record it on the job without caring which platform produced it.
type AdapterError struct {
	Platform string
	Op       string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("platform %s: %s: %v", e.Platform, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
