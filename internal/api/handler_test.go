package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
	"github.com/ralpioxxcs/vtlr/internal/orchestrator"
)

type fakeService struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]domain.Schedule
	tasks     map[uuid.UUID]domain.Task

	createErr error
	updateErr error
	deleteErr error

	lastCreate orchestrator.NewSchedule
	lastUpdate orchestrator.ScheduleUpdate
	lastLimit  int
	lastOffset int
}

func newFakeService() *fakeService {
	return &fakeService{
		schedules: make(map[uuid.UUID]domain.Schedule),
		tasks:     make(map[uuid.UUID]domain.Task),
	}
}

func (f *fakeService) CreateSchedule(_ context.Context, req orchestrator.NewSchedule) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = req
	if f.createErr != nil {
		return domain.Schedule{}, f.createErr
	}
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
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
	for _, nt := range req.Tasks {
		schedule.Tasks = append(schedule.Tasks, domain.Task{
			ID:         uuid.New(),
			ScheduleID: schedule.ID,
			Text:       nt.Text,
			Language:   nt.Language,
			Volume:     nt.Volume,
			Status:     domain.TaskStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	f.schedules[schedule.ID] = schedule
	return schedule, nil
}

func (f *fakeService) UpdateSchedule(_ context.Context, id uuid.UUID, upd orchestrator.ScheduleUpdate) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdate = upd
	if f.updateErr != nil {
		return domain.Schedule{}, f.updateErr
	}
	schedule, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	if upd.Title != nil {
		schedule.Title = *upd.Title
	}
	if upd.Active != nil {
		schedule.Active = *upd.Active
	}
	f.schedules[id] = schedule
	return schedule, nil
}

func (f *fakeService) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeService) GetSchedule(_ context.Context, id uuid.UUID) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	schedule, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return schedule, nil
}

func (f *fakeService) ListSchedules(_ context.Context, limit, offset int) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	f.lastOffset = offset
	out := make([]domain.Schedule, 0, len(f.schedules))
	for _, schedule := range f.schedules {
		out = append(out, schedule)
	}
	return out, nil
}

func (f *fakeService) AppendTask(_ context.Context, scheduleID uuid.UUID, nt orchestrator.NewTask) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[scheduleID]; !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	task := domain.Task{
		ID:         uuid.New(),
		ScheduleID: scheduleID,
		Text:       nt.Text,
		Language:   nt.Language,
		Volume:     nt.Volume,
		Status:     domain.TaskStatusPending,
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeService) UpdateTask(_ context.Context, taskID uuid.UUID, upd orchestrator.TaskUpdate) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return domain.Task{}, f.updateErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	if upd.Text != nil {
		task.Text = *upd.Text
	}
	if upd.Status != nil {
		task.Status = *upd.Status
	}
	f.tasks[taskID] = task
	return task, nil
}

func (f *fakeService) DeleteTask(_ context.Context, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func seedSchedule(f *fakeService) domain.Schedule {
	schedule := domain.Schedule{
		ID:       uuid.New(),
		Title:    "morning briefing",
		Type:     domain.ScheduleTypeRecurring,
		Category: domain.CategoryRoutine,
		Interval: "0 7 * * *",
		Active:   true,
		OwnerID:  uuid.New(),
	}
	f.schedules[schedule.ID] = schedule
	return schedule
}

func createBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(CreateScheduleRequest{
		Title:    "morning briefing",
		Type:     "recurring",
		Category: "routine",
		Interval: "0 7 * * *",
		OwnerID:  uuid.New().String(),
		Tasks: []TaskRequest{
			{Text: "good morning", Language: "ko", Volume: 80},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestHandler_CreateSchedule(t *testing.T) {
	svc := newFakeService()
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler", createBody(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ScheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Title != "morning briefing" {
		t.Errorf("title = %q", resp.Title)
	}
	if !resp.Active {
		t.Error("new schedule should be active")
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Text != "good morning" {
		t.Errorf("tasks = %+v", resp.Tasks)
	}
	if len(svc.lastCreate.Tasks) != 1 {
		t.Errorf("service received %d tasks", len(svc.lastCreate.Tasks))
	}
}

func TestHandler_CreateSchedule_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*CreateScheduleRequest)
		want string
	}{
		{"missing title", func(r *CreateScheduleRequest) { r.Title = "" }, "title"},
		{"bad type", func(r *CreateScheduleRequest) { r.Type = "weekly" }, "type"},
		{"bad category", func(r *CreateScheduleRequest) { r.Category = "misc" }, "category"},
		{"missing owner", func(r *CreateScheduleRequest) { r.OwnerID = "" }, "owner_id"},
		{"bad owner", func(r *CreateScheduleRequest) { r.OwnerID = "nope" }, "owner_id"},
		{"bad execution date", func(r *CreateScheduleRequest) { r.ExecutionDate = "tomorrow" }, "execution_date"},
		{"task volume", func(r *CreateScheduleRequest) { r.Tasks[0].Volume = 150 }, "volume"},
		{"inverted window", func(r *CreateScheduleRequest) {
			r.StartTime = "2025-08-15T14:00:00Z"
			r.EndTime = "2025-08-15T12:00:00Z"
		}, "end_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := CreateScheduleRequest{
				Title:    "t",
				Type:     "recurring",
				Category: "routine",
				OwnerID:  uuid.New().String(),
				Tasks:    []TaskRequest{{Text: "x", Volume: 50}},
			}
			tt.mut(&base)
			body, _ := json.Marshal(base)

			req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			NewHandler(newFakeService()).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("error %q should mention %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestHandler_CreateSchedule_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	NewHandler(newFakeService()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_CreateSchedule_BodyTooLarge(t *testing.T) {
	huge := fmt.Sprintf(`{"title":%q`, strings.Repeat("x", maxRequestBodySize+1))
	req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler", strings.NewReader(huge))
	rec := httptest.NewRecorder()
	NewHandler(newFakeService()).ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandler_GetSchedule(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler/"+schedule.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ScheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != schedule.ID.String() {
		t.Errorf("id = %q, want %q", resp.ID, schedule.ID)
	}
}

func TestHandler_GetSchedule_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	NewHandler(newFakeService()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetSchedule_BadID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	NewHandler(newFakeService()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_ListSchedules(t *testing.T) {
	svc := newFakeService()
	seedSchedule(svc)
	seedSchedule(svc)
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler?limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ListSchedulesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Schedules) != 2 {
		t.Errorf("expected 2 schedules, got %d", len(resp.Schedules))
	}
	if svc.lastLimit != 10 || svc.lastOffset != 5 {
		t.Errorf("pagination passed as limit=%d offset=%d", svc.lastLimit, svc.lastOffset)
	}
}

func TestHandler_ListSchedules_PaginationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"limit over max", "?limit=1001"},
		{"negative limit", "?limit=-1"},
		{"negative offset", "?offset=-1"},
		{"non-numeric limit", "?limit=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler"+tt.query, nil)
			rec := httptest.NewRecorder()
			NewHandler(newFakeService()).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandler_ListSchedules_DefaultPagination(t *testing.T) {
	svc := newFakeService()
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1.0/scheduler", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastLimit != DefaultLimit {
		t.Errorf("default limit = %d, want %d", svc.lastLimit, DefaultLimit)
	}
}

func TestHandler_UpdateSchedule(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	handler := NewHandler(svc)

	body := `{"title":"evening briefing","active":false}`
	req := httptest.NewRequest(http.MethodPatch, "/v1.0/scheduler/"+schedule.ID.String(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ScheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Title != "evening briefing" {
		t.Errorf("title = %q", resp.Title)
	}
	if resp.Active {
		t.Error("schedule should be inactive after update")
	}
	if svc.lastUpdate.Active == nil || *svc.lastUpdate.Active {
		t.Error("active=false not forwarded to service")
	}
}

func TestHandler_UpdateSchedule_ConflictMapsTo409(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	svc.updateErr = domain.ConflictError{Message: "one-time moment already passed"}
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/v1.0/scheduler/"+schedule.ID.String(), strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandler_UpdateSchedule_ValidationMapsTo400(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	svc.updateErr = domain.ValidationError{Field: "interval", Message: "invalid cron expression"}
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/v1.0/scheduler/"+schedule.ID.String(), strings.NewReader(`{"interval":"bad"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "interval") {
		t.Errorf("error should mention the field: %s", rec.Body.String())
	}
}

func TestHandler_UpdateSchedule_InternalErrorMapsTo500(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	svc.updateErr = errors.New("connection reset")
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPatch, "/v1.0/scheduler/"+schedule.ID.String(), strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error details should not leak to clients")
	}
}

func TestHandler_DeleteSchedule(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	handler := NewHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1.0/scheduler/"+schedule.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := svc.schedules[schedule.ID]; ok {
		t.Error("schedule still present after delete")
	}
}

func TestHandler_AppendTask(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	handler := NewHandler(svc)

	body := `{"text":"buy groceries","volume":60}`
	req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler/"+schedule.ID.String()+"/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "buy groceries" || resp.Status != "pending" {
		t.Errorf("task = %+v", resp)
	}
}

func TestHandler_AppendTask_MissingText(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1.0/scheduler/"+schedule.ID.String()+"/tasks", strings.NewReader(`{"volume":60}`))
	rec := httptest.NewRecorder()
	NewHandler(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_UpdateTask(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	task, _ := svc.AppendTask(context.Background(), schedule.ID, orchestrator.NewTask{Text: "old", Volume: 50})
	handler := NewHandler(svc)

	body := `{"text":"new text","status":"completed"}`
	path := "/v1.0/scheduler/" + schedule.ID.String() + "/tasks/" + task.ID.String()
	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "new text" || resp.Status != "completed" {
		t.Errorf("task = %+v", resp)
	}
}

func TestHandler_UpdateTask_UnknownStatus(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	task, _ := svc.AppendTask(context.Background(), schedule.ID, orchestrator.NewTask{Text: "x", Volume: 50})

	path := "/v1.0/scheduler/" + schedule.ID.String() + "/tasks/" + task.ID.String()
	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"status":"paused"}`))
	rec := httptest.NewRecorder()
	NewHandler(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_DeleteTask(t *testing.T) {
	svc := newFakeService()
	schedule := seedSchedule(svc)
	task, _ := svc.AppendTask(context.Background(), schedule.ID, orchestrator.NewTask{Text: "x", Volume: 50})
	handler := NewHandler(svc)

	path := "/v1.0/scheduler/" + schedule.ID.String() + "/tasks/" + task.ID.String()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := svc.tasks[task.ID]; ok {
		t.Error("task still present after delete")
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v2.0/scheduler"},
		{http.MethodPut, "/v1.0/scheduler"},
		{http.MethodGet, "/v1.0/scheduler/a/b/c/d"},
		{http.MethodPost, "/"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		NewHandler(newFakeService()).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

type fakePinger struct {
	err error
}

func (p *fakePinger) PingContext(context.Context) error { return p.err }

func TestHandler_Health(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	NewHandler(newFakeService()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHandler_HealthVerbose(t *testing.T) {
	handler := NewHandler(newFakeService()).WithHealthChecker(&fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Components["database"] != "healthy" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHandler_HealthVerbose_DegradedDatabase(t *testing.T) {
	handler := NewHandler(newFakeService()).WithHealthChecker(&fakePinger{err: errors.New("refused")})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q", resp.Status)
	}
}
