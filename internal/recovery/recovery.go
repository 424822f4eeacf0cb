// Package recovery rebuilds the in-memory trigger registry from the store
// after a restart. Triggers live only in memory, so every boot replays the
// persisted schedules before the dispatcher starts consuming firings.
package recovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// Store lists every schedule with its tasks in one consistent snapshot.
type Store interface {
	ListSchedulesWithTasks(ctx context.Context) ([]domain.Schedule, error)
}

// Registrar registers and removes triggers for schedules.
type Registrar interface {
	Register(schedule domain.Schedule) error
	Delete(id uuid.UUID) error
}

// Evaluator resolves whether a legacy one-time cron moment already passed.
type Evaluator interface {
	IsExpired(expression string, ref time.Time) (bool, error)
}

// Recoverer replays persisted schedules into the trigger registry.
type Recoverer struct {
	store     Store
	registrar Registrar
	eval      Evaluator
	clock     func() time.Time
}

func New(store Store, registrar Registrar, eval Evaluator) *Recoverer {
	return &Recoverer{
		store:     store,
		registrar: registrar,
		eval:      eval,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (r *Recoverer) WithClock(clock func() time.Time) *Recoverer {
	r.clock = clock
	return r
}

// Run performs one recovery pass. Recurring schedules always come back;
// one-time schedules come back only when their moment has not yet passed.
// A registration failure unwinds every trigger registered so far and
// surfaces as a fatal error, so the process never serves from a
// half-rebuilt registry.
func (r *Recoverer) Run(ctx context.Context) error {
	now := r.clock().UTC()

	schedules, err := r.store.ListSchedulesWithTasks(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	var registered []uuid.UUID
	skipped := 0

	for _, schedule := range schedules {
		keep, err := r.shouldRegister(schedule, now)
		if err != nil {
			log.Printf("recovery: schedule=%s unparseable interval %q, skipping: %v",
				schedule.ID, schedule.Interval, err)
			skipped++
			continue
		}
		if !keep {
			log.Printf("recovery: schedule=%s one-time moment already passed, skipping", schedule.ID)
			skipped++
			continue
		}

		if err := r.registrar.Register(schedule); err != nil {
			r.unwind(registered)
			return fmt.Errorf("register schedule %s: %w", schedule.ID, err)
		}
		registered = append(registered, schedule.ID)
	}

	log.Printf("recovery: complete (registered=%d, skipped=%d)", len(registered), skipped)
	return nil
}

func (r *Recoverer) shouldRegister(schedule domain.Schedule, now time.Time) (bool, error) {
	if schedule.Type != domain.ScheduleTypeOneTime {
		return true, nil
	}
	if schedule.ExecutionDate != nil {
		return !schedule.ExecutionDate.Before(now), nil
	}
	// Legacy one-time rows carry the moment in cron form.
	expired, err := r.eval.IsExpired(schedule.Interval, now)
	if err != nil {
		return false, err
	}
	return !expired, nil
}

func (r *Recoverer) unwind(registered []uuid.UUID) {
	for _, id := range registered {
		if err := r.registrar.Delete(id); err != nil {
			log.Printf("recovery: unwind failed for schedule=%s: %v", id, err)
		}
	}
}
