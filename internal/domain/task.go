package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status is final. Terminal tasks never
// transition back to pending.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one spoken sub-action belonging to a schedule. A task cannot
// outlive its schedule: schedule deletion cascades.
type Task struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID

	Text     string
	Language string

	// Volume is stored 0-100 and scaled to 0-1.0 at the playback boundary.
	Volume int

	Status   TaskStatus
	Attempts int

	// Result is the opaque record of the last dispatch outcome.
	Result json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}
