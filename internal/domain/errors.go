package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a schedule or task id resolves to nothing.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input: a bad cron expression, a missing
// required field for the given schedule type. Surfaced to the caller
// unchanged, never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ConflictError reports a schedule whose type and supplied fields are
// mutually inconsistent, e.g. a recurring schedule without an interval.
type ConflictError struct {
	Message string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Message
}

// DownstreamError wraps a failed rendering, device-directory, or playback
// call. Recorded on the task and surfaced to the firing's caller; the
// worker itself keeps running.
type DownstreamError struct {
	Target string
	Err    error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.Target, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// OrchestrationError wraps a failed trigger upsert or removal. During
// create/update it aborts the paired store write; during delete it aborts
// the schedule deletion.
type OrchestrationError struct {
	Op  string
	Key uuid.UUID
	Err error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration %s (key=%s): %v", e.Op, e.Key, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }
