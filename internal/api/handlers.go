package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/auth"
	"github.com/tasksuite/tasks/internal/core"
	"github.com/tasksuite/tasks/internal/httputil"
	"github.com/tasksuite/tasks/internal/hub"
	"github.com/tasksuite/tasks/internal/model"
	"github.com/tasksuite/tasks/internal/store"
)

type APIHandler struct {
	store     *store.SQLiteStore
	agents    *core.AgentService
	hub       *hub.Hub
	functions http.Handler
	issuer    *auth.Issuer
	providers map[string]auth.Provider
	publicURL string
	upgrader  websocket.Upgrader
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Store     *store.SQLiteStore
	Agents    *core.AgentService
	Hub       *hub.Hub
	Functions http.Handler
	Issuer    *auth.Issuer
	Providers map[string]auth.Provider
	// PublicURL is where browsers reach the server; used for default
	// redirects and the secure cookie flag.
	PublicURL string
}

func NewAPIHandler(deps Deps) *APIHandler {
	providers := deps.Providers
	if providers == nil {
		providers = map[string]auth.Provider{}
	}
	return &APIHandler{
		store:     deps.Store,
		agents:    deps.Agents,
		hub:       deps.Hub,
		functions: deps.Functions,
		issuer:    deps.Issuer,
		providers: providers,
		publicURL: strings.TrimRight(deps.PublicURL, "/"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Task entity handlers

type CreateTaskRequest struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

func (h *APIHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasks(r.Context())
	if err != nil {
		log.Errorf("Error listing tasks: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tasks)
}

func (h *APIHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeTaskError(w, taskID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

func (h *APIHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		httputil.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	task, err := h.store.CreateTask(r.Context(), title, req.Completed)
	if err != nil {
		log.Errorf("Error creating task: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, task)
}

func (h *APIHandler) UpdateTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var patch model.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			httputil.WriteError(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		patch.Title = &title
	}

	task, err := h.store.UpdateTask(r.Context(), taskID, patch)
	if err != nil {
		h.writeTaskError(w, taskID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, task)
}

func (h *APIHandler) DeleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if err := h.store.DeleteTask(r.Context(), taskID); err != nil {
		h.writeTaskError(w, taskID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) writeTaskError(w http.ResponseWriter, taskID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "Task not found: "+taskID)
		return
	}
	log.Errorf("Error accessing task %s: %v", taskID, err)
	httputil.WriteError(w, http.StatusInternalServerError, "Failed to access task")
}
