// Package postgres persists schedules and their tasks. Tasks cascade on
// schedule deletion via a foreign key; paired store and trigger mutations
// run inside an explicit transaction so either both sides apply or neither
// does.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// Store implements the schedule/task store on PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store with a per-operation timeout applied to every query.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetSchedule returns a schedule without its tasks.
func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, querySelectSchedule, id)
	return scanSchedule(row)
}

// GetScheduleWithTasks returns a schedule and its tasks in creation order.
func (s *Store) GetScheduleWithTasks(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, querySelectSchedule, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return domain.Schedule{}, err
	}

	rows, err := s.db.QueryContext(ctx, querySelectTasksBySchedule, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return domain.Schedule{}, err
		}
		schedule.Tasks = append(schedule.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return domain.Schedule{}, err
	}
	return schedule, nil
}

// ListSchedules returns schedules without tasks, newest first.
func (s *Store) ListSchedules(ctx context.Context, limit, offset int) ([]domain.Schedule, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListSchedules, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, schedule)
	}
	return result, rows.Err()
}

// ListSchedulesWithTasks loads every schedule with its tasks inside one
// repeatable-read snapshot, so recovery neither misses nor double-reads a
// schedule racing a concurrent write.
func (s *Store) ListSchedulesWithTasks(ctx context.Context) ([]domain.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryListAllSchedules)
	if err != nil {
		return nil, err
	}

	var schedules []domain.Schedule
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[schedule.ID] = len(schedules)
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	taskRows, err := tx.QueryContext(ctx, queryListAllTasks)
	if err != nil {
		return nil, err
	}
	defer taskRows.Close()

	for taskRows.Next() {
		task, err := scanTask(taskRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[task.ScheduleID]; ok {
			schedules[i].Tasks = append(schedules[i].Tasks, task)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}

	return schedules, tx.Commit()
}

// SetScheduleActive flips a schedule's active flag.
func (s *Store) SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, querySetScheduleActive, id, active, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetTask returns a single task.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanTask(s.db.QueryRowContext(ctx, querySelectTask, id))
}

// UpdateTaskOutcome records a dispatch outcome: status, incremented
// attempts, and the opaque result. Transitions back to pending are denied.
func (s *Store) UpdateTaskOutcome(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result []byte) error {
	if !status.Terminal() {
		return domain.ConflictError{Message: "task outcome must be a terminal status"}
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var resultArg any
	if len(result) > 0 {
		resultArg = result
	}
	res, err := s.db.ExecContext(ctx, queryUpdateTaskOutcome, id, string(status), resultArg, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Tx is a transactional view of the store. Orchestrator operations insert
// or update rows, upsert the trigger, and only then commit.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a read-write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// InsertSchedule inserts a schedule row (tasks are inserted separately).
func (t *Tx) InsertSchedule(ctx context.Context, schedule domain.Schedule) error {
	_, err := t.tx.ExecContext(ctx, queryInsertSchedule,
		schedule.ID,
		schedule.Title,
		schedule.Description,
		string(schedule.Type),
		string(schedule.Category),
		schedule.Interval,
		schedule.ExecutionDate,
		schedule.Active,
		schedule.RemoveOnComplete,
		schedule.StartTime,
		schedule.EndTime,
		schedule.OwnerID,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	return err
}

// UpdateSchedule rewrites the mutable schedule fields.
func (t *Tx) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateSchedule,
		schedule.ID,
		schedule.Title,
		schedule.Description,
		string(schedule.Type),
		string(schedule.Category),
		schedule.Interval,
		schedule.ExecutionDate,
		schedule.Active,
		schedule.RemoveOnComplete,
		schedule.StartTime,
		schedule.EndTime,
		schedule.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteSchedule removes a schedule row; tasks cascade via the foreign key.
func (t *Tx) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	err := t.tx.QueryRowContext(ctx, queryDeleteSchedule, id).Scan(&deleted)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

// InsertTask inserts a task row under its schedule.
func (t *Tx) InsertTask(ctx context.Context, task domain.Task) error {
	var resultArg any
	if len(task.Result) > 0 {
		resultArg = []byte(task.Result)
	}
	_, err := t.tx.ExecContext(ctx, queryInsertTask,
		task.ID,
		task.ScheduleID,
		task.Text,
		task.Language,
		task.Volume,
		string(task.Status),
		task.Attempts,
		resultArg,
		task.CreatedAt,
		task.UpdatedAt,
	)
	return err
}

// UpdateTask rewrites a task's user-mutable fields.
func (t *Tx) UpdateTask(ctx context.Context, task domain.Task) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateTask,
		task.ID,
		task.Text,
		task.Language,
		task.Volume,
		string(task.Status),
		task.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteTask removes a single task.
func (t *Tx) DeleteTask(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	err := t.tx.QueryRowContext(ctx, queryDeleteTask, id).Scan(&deleted)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

// GetScheduleForUpdate loads a schedule row with a row lock held for the
// duration of the transaction.
func (t *Tx) GetScheduleForUpdate(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	row := t.tx.QueryRowContext(ctx, querySelectSchedule+" FOR UPDATE", id)
	return scanSchedule(row)
}

// GetTask loads a single task inside the transaction.
func (t *Tx) GetTask(ctx context.Context, id uuid.UUID) (domain.Task, error) {
	return scanTask(t.tx.QueryRowContext(ctx, querySelectTask, id))
}

// TasksBySchedule loads a schedule's tasks, in creation order, inside the
// transaction.
func (t *Tx) TasksBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]domain.Task, error) {
	rows, err := t.tx.QueryContext(ctx, querySelectTasksBySchedule, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (domain.Schedule, error) {
	var s domain.Schedule
	var typ, category string
	var description, interval sql.NullString

	err := row.Scan(
		&s.ID,
		&s.Title,
		&description,
		&typ,
		&category,
		&interval,
		&s.ExecutionDate,
		&s.Active,
		&s.RemoveOnComplete,
		&s.StartTime,
		&s.EndTime,
		&s.OwnerID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.Schedule{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Schedule{}, err
	}
	s.Description = description.String
	s.Interval = interval.String
	s.Type = domain.ScheduleType(typ)
	s.Category = domain.Category(category)
	return s, nil
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var result []byte

	err := row.Scan(
		&t.ID,
		&t.ScheduleID,
		&t.Text,
		&t.Language,
		&t.Volume,
		&status,
		&t.Attempts,
		&result,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.Task{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskStatus(status)
	t.Result = result
	return t, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
