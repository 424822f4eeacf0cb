package domain

import (
	"time"

	"github.com/google/uuid"
)

type PayloadKind string

const (
	// PayloadKindTask means the firing targets individual tasks; the
	// dispatcher renders and plays each referenced task text.
	PayloadKindTask PayloadKind = "task"

	// PayloadKindSchedule means the firing targets the whole schedule; the
	// dispatcher composes a roll-up message from the schedule's tasks.
	PayloadKindSchedule PayloadKind = "schedule"
)

// Firing is emitted by the trigger registry when a schedule's trigger
// reaches its moment.
type Firing struct {
	// Key is the trigger key, which is always the schedule ID.
	Key uuid.UUID

	Kind PayloadKind

	// TaskID narrows a task-kind firing to a single task. Zero value means
	// every task of the schedule, in creation order.
	TaskID uuid.UUID

	// Priority is derived from the schedule category at registration time.
	// Lower dispatches first.
	Priority int

	ScheduledAt time.Time
	FiredAt     time.Time
}
