package domain

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleType string

const (
	ScheduleTypeOneTime   ScheduleType = "one_time"
	ScheduleTypeRecurring ScheduleType = "recurring"
)

// Schedule is a persisted rule describing when and how often spoken tasks
// should be dispatched. The schedule ID doubles as the trigger-registry key,
// so at most one live trigger exists per schedule.
type Schedule struct {
	ID uuid.UUID

	Title       string
	Description string

	Type     ScheduleType
	Category Category

	// Interval holds the 5-field cron expression for recurring schedules.
	// Legacy one-time schedules may carry their single fire moment here in
	// cron form instead of ExecutionDate.
	Interval string

	// ExecutionDate is the absolute fire moment for one-time schedules.
	// Converted to cron form only at the trigger-registry boundary.
	ExecutionDate *time.Time

	Active           bool
	RemoveOnComplete bool

	StartTime *time.Time
	EndTime   *time.Time

	// Tasks are ordered by creation time ascending. The order is
	// load-bearing: dispatch enumerates tasks in exactly this order.
	Tasks []Task

	OwnerID uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether a one-time schedule's fire moment has passed.
// Recurring schedules never expire. Legacy one-time schedules without an
// explicit ExecutionDate are resolved by the caller via the cron evaluator.
func (s Schedule) Expired(now time.Time) bool {
	if s.Type != ScheduleTypeOneTime {
		return false
	}
	if s.ExecutionDate == nil {
		return false
	}
	return s.ExecutionDate.Before(now)
}

// OneShot reports whether the schedule's trigger should fire exactly once
// and then unregister itself.
func (s Schedule) OneShot() bool {
	return s.Type == ScheduleTypeOneTime && s.RemoveOnComplete
}
