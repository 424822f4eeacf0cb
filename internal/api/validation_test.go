package api

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func validCreateRequest() CreateScheduleRequest {
	return CreateScheduleRequest{
		Title:    "morning briefing",
		Type:     "recurring",
		Category: "routine",
		Interval: "0 7 * * *",
		OwnerID:  uuid.New().String(),
		Tasks: []TaskRequest{
			{Text: "good morning", Language: "ko", Volume: 80},
		},
	}
}

func TestValidateCreateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		mut     func(*CreateScheduleRequest)
		wantErr string
	}{
		{"valid", func(r *CreateScheduleRequest) {}, ""},
		{"valid one-time with execution date", func(r *CreateScheduleRequest) {
			r.Type = "one_time"
			r.Interval = ""
			r.ExecutionDate = "2025-08-20T14:45:00Z"
		}, ""},
		{"valid window", func(r *CreateScheduleRequest) {
			r.Category = "task"
			r.StartTime = "2025-08-15T09:00:00Z"
			r.EndTime = "2025-08-15T18:00:00Z"
		}, ""},
		{"no tasks is fine", func(r *CreateScheduleRequest) { r.Tasks = nil }, ""},

		{"empty title", func(r *CreateScheduleRequest) { r.Title = "" }, "title is required"},
		{"unknown type", func(r *CreateScheduleRequest) { r.Type = "hourly" }, "type must be"},
		{"unknown category", func(r *CreateScheduleRequest) { r.Category = "chore" }, "unknown category"},
		{"missing owner", func(r *CreateScheduleRequest) { r.OwnerID = "" }, "owner_id is required"},
		{"malformed owner", func(r *CreateScheduleRequest) { r.OwnerID = "abc" }, "invalid owner_id"},
		{"malformed execution date", func(r *CreateScheduleRequest) { r.ExecutionDate = "20-08-2025" }, "invalid execution_date"},
		{"malformed start time", func(r *CreateScheduleRequest) { r.StartTime = "9am" }, "invalid start_time"},
		{"malformed end time", func(r *CreateScheduleRequest) { r.EndTime = "6pm" }, "invalid end_time"},
		{"end before start", func(r *CreateScheduleRequest) {
			r.StartTime = "2025-08-15T18:00:00Z"
			r.EndTime = "2025-08-15T09:00:00Z"
		}, "end_time must be after start_time"},
		{"end equal to start", func(r *CreateScheduleRequest) {
			r.StartTime = "2025-08-15T09:00:00Z"
			r.EndTime = "2025-08-15T09:00:00Z"
		}, "end_time must be after start_time"},
		{"task missing text", func(r *CreateScheduleRequest) { r.Tasks[0].Text = "" }, "task 0"},
		{"task volume over 100", func(r *CreateScheduleRequest) { r.Tasks[0].Volume = 101 }, "volume must be between"},
		{"task volume negative", func(r *CreateScheduleRequest) { r.Tasks[0].Volume = -1 }, "volume must be between"},
		{"second task broken", func(r *CreateScheduleRequest) {
			r.Tasks = append(r.Tasks, TaskRequest{Text: "", Volume: 50})
		}, "task 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mut(&req)

			err := validateCreateSchedule(req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseTimePtr(t *testing.T) {
	got, err := parseTimePtr("")
	if err != nil || got != nil {
		t.Errorf("empty string: got (%v, %v), want (nil, nil)", got, err)
	}

	got, err = parseTimePtr("2025-08-20T14:45:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Hour() != 14 || got.Minute() != 45 {
		t.Errorf("parsed = %v", got)
	}

	if _, err := parseTimePtr("yesterday"); err == nil {
		t.Error("expected error for non-RFC3339 input")
	}
}
