package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/logging"
	"trello-project/backend/tasks-service/middleware"
	"trello-project/backend/tasks-service/models"
	"trello-project/backend/tasks-service/repositories"
	"trello-project/backend/tasks-service/services"
)

type TaskHandler struct {
	service      *services.TaskService
	upcomingDays int
	now          func() time.Time
}

func NewTaskHandler(service *services.TaskService, upcomingDays int) *TaskHandler {
	return &TaskHandler{service: service, upcomingDays: upcomingDays, now: time.Now}
}

// Register mounts the task routes on r. The dashboard route is registered
// before the {taskID} routes so it is not captured as an id.
func (h *TaskHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/tasks", h.GetAllTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", h.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/dashboard", h.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", h.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", h.UpdateTask).Methods(http.MethodPatch)
	r.HandleFunc("/api/tasks/{taskID}", h.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/tasks/{taskID}/subtasks", h.GetSubtasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}/main", h.GetMainTask).Methods(http.MethodGet)
}

// taskView is a task as the board renders it. DisplayStatus reads overdue
// for late tasks; Status keeps the stored value.
type taskView struct {
	models.Task
	DisplayStatus models.TaskStatus `json:"displayStatus"`
}

func (h *TaskHandler) view(t models.Task) taskView {
	return taskView{Task: t, DisplayStatus: lifecycle.DisplayStatus(&t, h.now())}
}

func (h *TaskHandler) views(tasks []models.Task) []taskView {
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, h.view(t))
	}
	return out
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in services.CreateTaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.service.CreateTask(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(*task))
}

func (h *TaskHandler) GetAllTasks(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	tasks, err := h.service.ListTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(tasks))
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	task, err := h.service.GetTask(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*task))
}

// UpdateTask is the server side of the board's optimistic changes. The
// response body is the canonical record the client commits.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var patch models.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.service.UpdateTask(r.Context(), actor, mux.Vars(r)["taskID"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*task))
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), actor, mux.Vars(r)["taskID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) GetSubtasks(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	subtasks, err := h.service.Subtasks(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(subtasks))
}

func (h *TaskHandler) GetMainTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	task, err := h.service.MainTask(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(*task))
}

// Dashboard accepts optional ?days=N and ?since=RFC3339 query parameters.
func (h *TaskHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	days := h.upcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := parseDays(v)
		if err != nil {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = n
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		since = t
	}

	view, err := h.service.Dashboard(r.Context(), actor, days, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func parseDays(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return actor, ok
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, repositories.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.Logger.Errorf("Event ID: REQUEST_FAILED, Description: %v", err)
		message = "Internal server error"
	}
	http.Error(w, message, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: %v", err)
	}
}
