// Package orchestrator keeps the trigger registry consistent with the
// schedule store: one live trigger per schedule, keyed by the schedule id,
// carrying the priority and payload the dispatcher needs.
package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/cron"
	"github.com/ralpioxxcs/vtlr/internal/domain"
	"github.com/ralpioxxcs/vtlr/internal/trigger"
)

// Registry is the trigger-registry capability the orchestrator drives.
type Registry interface {
	Upsert(key uuid.UUID, entry trigger.Entry) error
	Remove(key uuid.UUID) error
}

// Orchestrator maps schedules to trigger entries.
type Orchestrator struct {
	registry Registry
}

func New(registry Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// Register upserts the trigger for a schedule. Calling it twice with the
// same schedule updates the existing trigger; it never creates a second
// one for the same id.
func (o *Orchestrator) Register(schedule domain.Schedule) error {
	entry := entryFor(schedule)
	if err := o.registry.Upsert(schedule.ID, entry); err != nil {
		return &domain.OrchestrationError{Op: "register", Key: schedule.ID, Err: err}
	}
	return nil
}

// Update recomputes pattern, priority and window and re-upserts under the
// same key.
func (o *Orchestrator) Update(id uuid.UUID, schedule domain.Schedule) error {
	schedule.ID = id
	if err := o.registry.Upsert(id, entryFor(schedule)); err != nil {
		return &domain.OrchestrationError{Op: "update", Key: id, Err: err}
	}
	return nil
}

// Delete removes the schedule's trigger. Callers must not delete the
// schedule row when this fails, or an orphaned trigger would keep firing
// against a row that no longer exists.
func (o *Orchestrator) Delete(id uuid.UUID) error {
	if err := o.registry.Remove(id); err != nil {
		return &domain.OrchestrationError{Op: "delete", Key: id, Err: err}
	}
	return nil
}

// entryFor derives the trigger entry from a schedule. One-time schedules
// with an explicit execution date are converted to cron form here, at the
// registry boundary; the rest of the system works with the timestamp.
func entryFor(schedule domain.Schedule) trigger.Entry {
	pattern := schedule.Interval
	if schedule.Type == domain.ScheduleTypeOneTime && schedule.ExecutionDate != nil {
		pattern = cron.FromTime(*schedule.ExecutionDate)
	}

	repeat := 0
	if schedule.OneShot() {
		repeat = 1
	}

	kind := domain.PayloadKindTask
	var taskID uuid.UUID
	if schedule.Category == domain.CategoryTask {
		kind = domain.PayloadKindSchedule
	} else if len(schedule.Tasks) == 1 {
		taskID = schedule.Tasks[0].ID
	}

	return trigger.Entry{
		Pattern:  pattern,
		Start:    cloneTime(schedule.StartTime),
		End:      cloneTime(schedule.EndTime),
		Repeat:   repeat,
		Kind:     kind,
		TaskID:   taskID,
		Priority: schedule.Category.Priority(),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
