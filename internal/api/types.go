package api

import (
	"encoding/json"
	"time"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

type TaskRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Volume   int    `json:"volume,omitempty"`
}

type CreateScheduleRequest struct {
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	Type             string        `json:"type"`
	Category         string        `json:"category"`
	Interval         string        `json:"interval,omitempty"`
	ExecutionDate    string        `json:"execution_date,omitempty"` // RFC3339
	RemoveOnComplete bool          `json:"remove_on_complete,omitempty"`
	StartTime        string        `json:"start_time,omitempty"` // RFC3339
	EndTime          string        `json:"end_time,omitempty"`   // RFC3339
	OwnerID          string        `json:"owner_id"`
	Tasks            []TaskRequest `json:"tasks,omitempty"`
}

// UpdateScheduleRequest is a partial update; absent fields stay unchanged.
type UpdateScheduleRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Type             *string `json:"type,omitempty"`
	Category         *string `json:"category,omitempty"`
	Interval         *string `json:"interval,omitempty"`
	ExecutionDate    *string `json:"execution_date,omitempty"`
	Active           *bool   `json:"active,omitempty"`
	RemoveOnComplete *bool   `json:"remove_on_complete,omitempty"`
	StartTime        *string `json:"start_time,omitempty"`
	EndTime          *string `json:"end_time,omitempty"`
}

// UpdateTaskRequest is a partial update; absent fields stay unchanged.
type UpdateTaskRequest struct {
	Text     *string `json:"text,omitempty"`
	Language *string `json:"language,omitempty"`
	Volume   *int    `json:"volume,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type TaskResponse struct {
	ID         string          `json:"id"`
	ScheduleID string          `json:"schedule_id"`
	Text       string          `json:"text"`
	Language   string          `json:"language,omitempty"`
	Volume     int             `json:"volume"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

type ScheduleResponse struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Type             string         `json:"type"`
	Category         string         `json:"category"`
	Interval         string         `json:"interval,omitempty"`
	ExecutionDate    string         `json:"execution_date,omitempty"`
	Active           bool           `json:"active"`
	RemoveOnComplete bool           `json:"remove_on_complete"`
	StartTime        string         `json:"start_time,omitempty"`
	EndTime          string         `json:"end_time,omitempty"`
	OwnerID          string         `json:"owner_id"`
	Tasks            []TaskResponse `json:"tasks,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func scheduleResponse(s domain.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:               s.ID.String(),
		Title:            s.Title,
		Description:      s.Description,
		Type:             string(s.Type),
		Category:         string(s.Category),
		Interval:         s.Interval,
		Active:           s.Active,
		RemoveOnComplete: s.RemoveOnComplete,
		OwnerID:          s.OwnerID.String(),
		CreatedAt:        formatTime(s.CreatedAt),
		UpdatedAt:        formatTime(s.UpdatedAt),
	}
	if s.ExecutionDate != nil {
		resp.ExecutionDate = formatTime(*s.ExecutionDate)
	}
	if s.StartTime != nil {
		resp.StartTime = formatTime(*s.StartTime)
	}
	if s.EndTime != nil {
		resp.EndTime = formatTime(*s.EndTime)
	}
	for _, task := range s.Tasks {
		resp.Tasks = append(resp.Tasks, taskResponse(task))
	}
	return resp
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:         t.ID.String(),
		ScheduleID: t.ScheduleID.String(),
		Text:       t.Text,
		Language:   t.Language,
		Volume:     t.Volume,
		Status:     string(t.Status),
		Attempts:   t.Attempts,
		Result:     t.Result,
		CreatedAt:  formatTime(t.CreatedAt),
		UpdatedAt:  formatTime(t.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
