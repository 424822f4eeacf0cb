// Package api exposes the schedule and task operations over HTTP. Routing
// sticks to the standard library; the handler translates the error
// taxonomy into status codes and delegates everything else to the
// orchestrator service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
	"github.com/ralpioxxcs/vtlr/internal/orchestrator"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const routePrefix = "/v1.0/scheduler"

// Service is the schedule/task capability the handler delegates to.
type Service interface {
	CreateSchedule(ctx context.Context, req orchestrator.NewSchedule) (domain.Schedule, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, upd orchestrator.ScheduleUpdate) (domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	ListSchedules(ctx context.Context, limit, offset int) ([]domain.Schedule, error)
	AppendTask(ctx context.Context, scheduleID uuid.UUID, task orchestrator.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID uuid.UUID, upd orchestrator.TaskUpdate) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID uuid.UUID) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	service Service
	db      HealthChecker
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/health" && r.Method == http.MethodGet {
		h.health(w, r)
		return
	}

	if !strings.HasPrefix(path, routePrefix) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(path, routePrefix), "/")
	parts := []string{}
	if rest != "" {
		parts = strings.Split(rest, "/")
	}

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.createSchedule(w, r)

	case len(parts) == 0 && r.Method == http.MethodGet:
		h.listSchedules(w, r)

	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getSchedule(w, r, parts[0])

	case len(parts) == 1 && r.Method == http.MethodPatch:
		h.updateSchedule(w, r, parts[0])

	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.deleteSchedule(w, r, parts[0])

	case len(parts) == 2 && parts[1] == "tasks" && r.Method == http.MethodPost:
		h.appendTask(w, r, parts[0])

	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodPatch:
		h.updateTask(w, r, parts[2])

	case len(parts) == 3 && parts[1] == "tasks" && r.Method == http.MethodDelete:
		h.deleteTask(w, r, parts[2])

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateSchedule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID, _ := uuid.Parse(req.OwnerID)
	executionDate, _ := parseTimePtr(req.ExecutionDate)
	startTime, _ := parseTimePtr(req.StartTime)
	endTime, _ := parseTimePtr(req.EndTime)

	create := orchestrator.NewSchedule{
		Title:            req.Title,
		Description:      req.Description,
		Type:             domain.ScheduleType(req.Type),
		Category:         domain.Category(req.Category),
		Interval:         req.Interval,
		ExecutionDate:    executionDate,
		RemoveOnComplete: req.RemoveOnComplete,
		StartTime:        startTime,
		EndTime:          endTime,
		OwnerID:          ownerID,
	}
	for _, task := range req.Tasks {
		create.Tasks = append(create.Tasks, orchestrator.NewTask{
			Text:     task.Text,
			Language: task.Language,
			Volume:   task.Volume,
		})
	}

	schedule, err := h.service.CreateSchedule(r.Context(), create)
	if err != nil {
		writeServiceError(w, "create schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, scheduleResponse(schedule))
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedules, err := h.service.ListSchedules(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, "list schedules", err)
		return
	}

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, len(schedules))}
	for i, schedule := range schedules {
		resp.Schedules[i] = scheduleResponse(schedule)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse(schedule))
}

func (h *Handler) updateSchedule(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	upd := orchestrator.ScheduleUpdate{
		Title:            req.Title,
		Description:      req.Description,
		Active:           req.Active,
		RemoveOnComplete: req.RemoveOnComplete,
		Interval:         req.Interval,
	}
	if req.Type != nil {
		typ := domain.ScheduleType(*req.Type)
		upd.Type = &typ
	}
	if req.Category != nil {
		category := domain.Category(*req.Category)
		upd.Category = &category
	}
	if req.ExecutionDate != nil {
		executionDate, err := parseTimePtr(*req.ExecutionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid execution_date")
			return
		}
		upd.ExecutionDate = executionDate
	}
	if req.StartTime != nil {
		startTime, err := parseTimePtr(*req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		upd.StartTime = startTime
	}
	if req.EndTime != nil {
		endTime, err := parseTimePtr(*req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		upd.EndTime = endTime
	}

	schedule, err := h.service.UpdateSchedule(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, "update schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleResponse(schedule))
}

func (h *Handler) deleteSchedule(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), id); err != nil {
		writeServiceError(w, "delete schedule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) appendTask(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validateTask(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.AppendTask(r.Context(), id, orchestrator.NewTask{
		Text:     req.Text,
		Language: req.Language,
		Volume:   req.Volume,
	})
	if err != nil {
		writeServiceError(w, "append task", err)
		return
	}

	writeJSON(w, http.StatusCreated, taskResponse(task))
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request, idStr string) {
	taskID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 100) {
		writeError(w, http.StatusBadRequest, "volume must be between 0 and 100")
		return
	}

	upd := orchestrator.TaskUpdate{
		Text:     req.Text,
		Language: req.Language,
		Volume:   req.Volume,
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		if status != domain.TaskStatusPending && !status.Terminal() {
			writeError(w, http.StatusBadRequest, "unknown task status")
			return
		}
		upd.Status = &status
	}

	task, err := h.service.UpdateTask(r.Context(), taskID, upd)
	if err != nil {
		writeServiceError(w, "update task", err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse(task))
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request, idStr string) {
	taskID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if err := h.service.DeleteTask(r.Context(), taskID); err != nil {
		writeServiceError(w, "delete task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the error taxonomy onto status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var validationErr domain.ValidationError
	var conflictErr domain.ConflictError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, conflictErr.Error())
	default:
		log.Printf("api: %s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
