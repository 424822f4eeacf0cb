package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

func validateCreateSchedule(req CreateScheduleRequest) error {
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}

	typ := domain.ScheduleType(req.Type)
	if typ != domain.ScheduleTypeOneTime && typ != domain.ScheduleTypeRecurring {
		return fmt.Errorf("type must be %q or %q", domain.ScheduleTypeOneTime, domain.ScheduleTypeRecurring)
	}

	if !domain.Category(req.Category).Valid() {
		return fmt.Errorf("unknown category %q", req.Category)
	}

	if req.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if _, err := uuid.Parse(req.OwnerID); err != nil {
		return fmt.Errorf("invalid owner_id: %w", err)
	}

	if req.ExecutionDate != "" {
		if _, err := time.Parse(time.RFC3339, req.ExecutionDate); err != nil {
			return fmt.Errorf("invalid execution_date: %w", err)
		}
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return err
	}

	for i, task := range req.Tasks {
		if err := validateTask(task); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	return nil
}

func validateTask(task TaskRequest) error {
	if task.Text == "" {
		return fmt.Errorf("text is required")
	}
	if task.Volume < 0 || task.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100")
	}
	return nil
}

func validateWindow(start, end string) error {
	var startAt, endAt time.Time
	var err error
	if start != "" {
		if startAt, err = time.Parse(time.RFC3339, start); err != nil {
			return fmt.Errorf("invalid start_time: %w", err)
		}
	}
	if end != "" {
		if endAt, err = time.Parse(time.RFC3339, end); err != nil {
			return fmt.Errorf("invalid end_time: %w", err)
		}
	}
	if start != "" && end != "" && !endAt.After(startAt) {
		return fmt.Errorf("end_time must be after start_time")
	}
	return nil
}

// parseTimePtr parses an RFC3339 string into a *time.Time; an empty string
// yields nil.
func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
