package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/cron"
	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// OneTimePastPolicy decides what happens when a one-time schedule is
// created with a fire moment that has already passed.
type OneTimePastPolicy string

const (
	// PolicyRejectPast rejects already-expired one-time moments. Default.
	PolicyRejectPast OneTimePastPolicy = "reject"

	// PolicyAllowPast accepts them; the trigger fires at the moment's next
	// calendar occurrence.
	PolicyAllowPast OneTimePastPolicy = "allow"
)

// Store is the schedule-store capability the service consumes.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	GetScheduleWithTasks(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	ListSchedules(ctx context.Context, limit, offset int) ([]domain.Schedule, error)
}

// Tx is a transactional view of the store. Service operations mutate rows,
// upsert the trigger, and only then commit, so store and trigger state
// never diverge.
type Tx interface {
	InsertSchedule(ctx context.Context, schedule domain.Schedule) error
	UpdateSchedule(ctx context.Context, schedule domain.Schedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetScheduleForUpdate(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error)
	TasksBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]domain.Task, error)
	Commit() error
	Rollback() error
}

// Evaluator validates cron expressions and resolves legacy one-time expiry.
type Evaluator interface {
	Parse(expression string) (cron.Schedule, error)
	IsExpired(expression string, ref time.Time) (bool, error)
}

// Service exposes the schedule/task operations consumed by the API layer
// and the dispatcher's cleanup path.
type Service struct {
	store  Store
	orch   *Orchestrator
	eval   Evaluator
	policy OneTimePastPolicy
	clock  func() time.Time
}

func NewService(store Store, orch *Orchestrator, eval Evaluator, policy OneTimePastPolicy) *Service {
	if policy == "" {
		policy = PolicyRejectPast
	}
	return &Service{
		store:  store,
		orch:   orch,
		eval:   eval,
		policy: policy,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Orchestrator returns the underlying trigger orchestrator. Recovery
// registers through it directly.
func (s *Service) Orchestrator() *Orchestrator {
	return s.orch
}

// NewTask describes a task supplied at creation time.
type NewTask struct {
	Text     string
	Language string
	Volume   int
}

// NewSchedule describes a schedule supplied at creation time.
type NewSchedule struct {
	Title            string
	Description      string
	Type             domain.ScheduleType
	Category         domain.Category
	Interval         string
	ExecutionDate    *time.Time
	RemoveOnComplete bool
	StartTime        *time.Time
	EndTime          *time.Time
	OwnerID          uuid.UUID
	Tasks            []NewTask
}

// CreateSchedule persists a schedule with its tasks and registers its
// trigger atomically: a failed trigger upsert rolls the store write back.
func (s *Service) CreateSchedule(ctx context.Context, req NewSchedule) (domain.Schedule, error) {
	now := s.clock().UTC()

	if err := s.validateTiming(req.Type, req.Interval, req.ExecutionDate, now); err != nil {
		return domain.Schedule{}, err
	}
	if !req.Category.Valid() {
		return domain.Schedule{}, domain.ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", req.Category)}
	}

	schedule := domain.Schedule{
		ID:               uuid.New(),
		Title:            req.Title,
		Description:      req.Description,
		Type:             req.Type,
		Category:         req.Category,
		Interval:         req.Interval,
		ExecutionDate:    req.ExecutionDate,
		Active:           true,
		RemoveOnComplete: req.RemoveOnComplete,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		OwnerID:          req.OwnerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, nt := range req.Tasks {
		// Stagger creation timestamps so a batch preserves supplied order.
		createdAt := now.Add(time.Duration(i) * time.Millisecond)
		schedule.Tasks = append(schedule.Tasks, domain.Task{
			ID:         uuid.New(),
			ScheduleID: schedule.ID,
			Text:       nt.Text,
			Language:   nt.Language,
			Volume:     nt.Volume,
			Status:     domain.TaskStatusPending,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		})
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.InsertSchedule(ctx, schedule); err != nil {
		return domain.Schedule{}, fmt.Errorf("insert schedule: %w", err)
	}
	for _, task := range schedule.Tasks {
		if err := tx.InsertTask(ctx, task); err != nil {
			return domain.Schedule{}, fmt.Errorf("insert task: %w", err)
		}
	}

	if err := s.orch.Register(schedule); err != nil {
		return domain.Schedule{}, err
	}

	if err := tx.Commit(); err != nil {
		// The trigger is live but the row never landed: compensate.
		if rmErr := s.orch.Delete(schedule.ID); rmErr != nil {
			log.Printf("orchestrator: failed to remove trigger after commit failure (id=%s): %v", schedule.ID, rmErr)
		}
		return domain.Schedule{}, fmt.Errorf("commit: %w", err)
	}

	log.Printf("orchestrator: schedule created (id=%s, type=%s, category=%s, tasks=%d)",
		schedule.ID, schedule.Type, schedule.Category, len(schedule.Tasks))
	return schedule, nil
}

// ScheduleUpdate is a partial update; nil fields stay unchanged.
type ScheduleUpdate struct {
	Title            *string
	Description      *string
	Type             *domain.ScheduleType
	Category         *domain.Category
	Interval         *string
	ExecutionDate    *time.Time
	Active           *bool
	RemoveOnComplete *bool
	StartTime        *time.Time
	EndTime          *time.Time
}

// UpdateSchedule mutates a schedule and re-derives its trigger under the
// same key. A failed trigger upsert rolls the store write back.
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, upd ScheduleUpdate) (domain.Schedule, error) {
	now := s.clock().UTC()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	schedule, err := tx.GetScheduleForUpdate(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	prev := schedule

	applyUpdate(&schedule, upd)
	schedule.UpdatedAt = now

	if err := s.validateTiming(schedule.Type, schedule.Interval, schedule.ExecutionDate, now); err != nil {
		return domain.Schedule{}, err
	}
	if !schedule.Category.Valid() {
		return domain.Schedule{}, domain.ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", schedule.Category)}
	}

	if err := tx.UpdateSchedule(ctx, schedule); err != nil {
		return domain.Schedule{}, fmt.Errorf("update schedule: %w", err)
	}

	tasks, err := tx.TasksBySchedule(ctx, id)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("load tasks: %w", err)
	}
	schedule.Tasks = tasks

	if err := s.orch.Update(id, schedule); err != nil {
		return domain.Schedule{}, err
	}

	if err := tx.Commit(); err != nil {
		// The trigger reflects a write that never landed: restore it.
		prev.Tasks = tasks
		s.restoreTrigger(id, prev)
		return domain.Schedule{}, fmt.Errorf("commit: %w", err)
	}

	log.Printf("orchestrator: schedule updated (id=%s)", id)
	return schedule, nil
}

// DeleteSchedule removes the trigger first and only then the schedule row
// (tasks cascade). If trigger removal fails the row is left untouched.
func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if _, err := s.store.GetSchedule(ctx, id); err != nil {
		return err
	}

	if err := s.orch.Delete(id); err != nil {
		return err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf("orchestrator: schedule deleted (id=%s)", id)
	return nil
}

// AppendTask adds a task to an existing schedule and refreshes the trigger
// payload.
func (s *Service) AppendTask(ctx context.Context, scheduleID uuid.UUID, nt NewTask) (domain.Task, error) {
	now := s.clock().UTC()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	schedule, err := tx.GetScheduleForUpdate(ctx, scheduleID)
	if err != nil {
		return domain.Task{}, err
	}

	task := domain.Task{
		ID:         uuid.New(),
		ScheduleID: scheduleID,
		Text:       nt.Text,
		Language:   nt.Language,
		Volume:     nt.Volume,
		Status:     domain.TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.InsertTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}

	tasks, err := tx.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load tasks: %w", err)
	}
	schedule.Tasks = tasks

	if err := s.orch.Update(scheduleID, schedule); err != nil {
		return domain.Task{}, err
	}

	if err := tx.Commit(); err != nil {
		// The inserted task never landed: restore the trigger without it.
		prev := schedule
		prev.Tasks = withoutTask(tasks, task.ID)
		s.restoreTrigger(scheduleID, prev)
		return domain.Task{}, fmt.Errorf("commit: %w", err)
	}

	log.Printf("orchestrator: task appended (schedule=%s, task=%s)", scheduleID, task.ID)
	return task, nil
}

// TaskUpdate is a partial task update; nil fields stay unchanged.
type TaskUpdate struct {
	Text     *string
	Language *string
	Volume   *int
	Status   *domain.TaskStatus
}

// UpdateTask mutates a task's user-facing fields. Terminal statuses never
// transition back to pending.
func (s *Service) UpdateTask(ctx context.Context, taskID uuid.UUID, upd TaskUpdate) (domain.Task, error) {
	now := s.clock().UTC()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return domain.Task{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	if upd.Text != nil {
		task.Text = *upd.Text
	}
	if upd.Language != nil {
		task.Language = *upd.Language
	}
	if upd.Volume != nil {
		task.Volume = *upd.Volume
	}
	if upd.Status != nil {
		if task.Status.Terminal() && *upd.Status == domain.TaskStatusPending {
			return domain.Task{}, domain.ConflictError{Message: "task already in a terminal state"}
		}
		task.Status = *upd.Status
	}
	task.UpdatedAt = now

	if err := tx.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

// DeleteTask removes a single task and refreshes the trigger payload.
func (s *Service) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	schedule, err := tx.GetScheduleForUpdate(ctx, task.ScheduleID)
	if err != nil {
		return err
	}

	if err := tx.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	tasks, err := tx.TasksBySchedule(ctx, task.ScheduleID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	schedule.Tasks = tasks

	if err := s.orch.Update(schedule.ID, schedule); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		// The deletion never landed: restore the trigger with the task back.
		prev := schedule
		prev.Tasks = append(append([]domain.Task(nil), tasks...), task)
		s.restoreTrigger(schedule.ID, prev)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// restoreTrigger re-upserts the pre-mutation trigger entry after a commit
// failure so the registry never reflects a write that was rolled back.
func (s *Service) restoreTrigger(id uuid.UUID, prev domain.Schedule) {
	if err := s.orch.Update(id, prev); err != nil {
		log.Printf("orchestrator: failed to restore trigger after commit failure (id=%s): %v", id, err)
	}
}

func withoutTask(tasks []domain.Task, id uuid.UUID) []domain.Task {
	kept := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.ID != id {
			kept = append(kept, task)
		}
	}
	return kept
}

// GetSchedule returns a schedule with its tasks.
func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	return s.store.GetScheduleWithTasks(ctx, id)
}

// ListSchedules returns schedules without tasks, newest first.
func (s *Service) ListSchedules(ctx context.Context, limit, offset int) ([]domain.Schedule, error) {
	return s.store.ListSchedules(ctx, limit, offset)
}

// validateTiming enforces the type/field consistency rules and the
// one-time past policy.
func (s *Service) validateTiming(typ domain.ScheduleType, interval string, executionDate *time.Time, now time.Time) error {
	switch typ {
	case domain.ScheduleTypeOneTime:
		if executionDate != nil && interval != "" {
			return domain.ConflictError{Message: "one-time schedule cannot carry both execution date and interval"}
		}
		if executionDate == nil && interval == "" {
			return domain.ValidationError{Field: "executionDate", Message: "one-time schedule needs an execution date"}
		}
		if interval != "" {
			if _, err := s.eval.Parse(interval); err != nil {
				return domain.ValidationError{Field: "interval", Message: err.Error()}
			}
		}
		if s.policy == PolicyRejectPast {
			if executionDate != nil && executionDate.Before(now) {
				return domain.ValidationError{Field: "executionDate", Message: "one-time moment already passed"}
			}
			if interval != "" {
				expired, err := s.eval.IsExpired(interval, now)
				if err != nil {
					return domain.ValidationError{Field: "interval", Message: err.Error()}
				}
				if expired {
					return domain.ValidationError{Field: "interval", Message: "one-time moment already passed"}
				}
			}
		}
	case domain.ScheduleTypeRecurring:
		if executionDate != nil {
			return domain.ConflictError{Message: "recurring schedule cannot carry an execution date"}
		}
		if interval == "" {
			return domain.ValidationError{Field: "interval", Message: "recurring schedule needs an interval"}
		}
		if _, err := s.eval.Parse(interval); err != nil {
			return domain.ValidationError{Field: "interval", Message: err.Error()}
		}
	default:
		return domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown schedule type %q", typ)}
	}
	return nil
}

func applyUpdate(schedule *domain.Schedule, upd ScheduleUpdate) {
	if upd.Title != nil {
		schedule.Title = *upd.Title
	}
	if upd.Description != nil {
		schedule.Description = *upd.Description
	}
	if upd.Type != nil {
		schedule.Type = *upd.Type
	}
	if upd.Category != nil {
		schedule.Category = *upd.Category
	}
	if upd.Interval != nil {
		schedule.Interval = *upd.Interval
	}
	if upd.ExecutionDate != nil {
		schedule.ExecutionDate = upd.ExecutionDate
	}
	if upd.Active != nil {
		schedule.Active = *upd.Active
	}
	if upd.RemoveOnComplete != nil {
		schedule.RemoveOnComplete = *upd.RemoveOnComplete
	}
	if upd.StartTime != nil {
		schedule.StartTime = upd.StartTime
	}
	if upd.EndTime != nil {
		schedule.EndTime = upd.EndTime
	}
}
