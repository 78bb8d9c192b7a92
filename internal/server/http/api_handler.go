// Package http is the inbound HTTP boundary: JSON endpoints for task
// analysis, CRUD, and follow-ups, plus the SSE execution stream.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/analyzer"
	taskerrors "taskpilot/internal/errors"
	"taskpilot/internal/exec"
	"taskpilot/internal/logging"
	"taskpilot/internal/store"
	id "taskpilot/internal/utils/id"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// rawSearchCount is the cap on the raw /api/search path, twice the execution
// path's cap.
const rawSearchCount = 10

// APIHandler serves the JSON (non-streaming) endpoints.
type APIHandler struct {
	analyzer *analyzer.Analyzer
	followup *exec.FollowUp
	tasks    ports.TaskStore
	history  ports.HistoryStore
	search   ports.SearchProvider
	logger   logging.Logger
}

func NewAPIHandler(an *analyzer.Analyzer, followup *exec.FollowUp, tasks ports.TaskStore, history ports.HistoryStore, search ports.SearchProvider) *APIHandler {
	return &APIHandler{
		analyzer: an,
		followup: followup,
		tasks:    tasks,
		history:  history,
		search:   search,
		logger:   logging.NewComponentLogger("APIHandler"),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// statusFor maps internal errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case taskerrors.IsPermanent(err):
		if code := taskerrors.StatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func (h *APIHandler) HandleAnalyzeTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Task text is required", "")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		h.logger.Error("Analyze failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to analyze task", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) HandleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text             string `json:"text"`
		OriginalText     string `json:"originalText"`
		PreviousResponse string `json:"previousResponse"`
		TaskID           string `json:"taskId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Follow-up text is required", "")
		return
	}

	response, err := h.followup.Respond(r.Context(), exec.FollowUpRequest{
		TaskID:           req.TaskID,
		NewText:          req.Text,
		OriginalTaskText: req.OriginalText,
		PreviousResponse: req.PreviousResponse,
	})
	if err != nil {
		h.logger.Error("Follow-up failed for task %s: %v", req.TaskID, err)
		writeError(w, statusFor(err), "Failed to generate follow-up response", err.Error())
		return
	}

	// The answer exists either way; persistence failures are logged and the
	// response still goes back to the client.
	if req.TaskID != "" {
		userID := id.UserIDFromContext(r.Context())
		if _, err := h.history.AppendExecution(r.Context(), req.TaskID, userID, response, nil); err != nil {
			h.logger.Error("Failed to persist follow-up execution for task %s: %v", req.TaskID, err)
		}
		if _, err := h.history.AppendTurn(r.Context(), req.TaskID, userID, "user", req.Text); err != nil {
			h.logger.Error("Failed to persist user turn for task %s: %v", req.TaskID, err)
		}
		if _, err := h.history.AppendTurn(r.Context(), req.TaskID, userID, "assistant", response); err != nil {
			h.logger.Error("Failed to persist assistant turn for task %s: %v", req.TaskID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (h *APIHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string     `json:"text"`
		Section      string     `json:"section"`
		Priority     string     `json:"priority"`
		AIExecutable bool       `json:"aiExecutable"`
		DueDate      *time.Time `json:"dueDate"`
		Analysis     string     `json:"analysis"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Task text is required", "")
		return
	}

	task := &ports.Task{
		UserID:       id.UserIDFromContext(r.Context()),
		Text:         req.Text,
		Section:      ports.Section(req.Section),
		Priority:     ports.Priority(req.Priority),
		AIExecutable: req.AIExecutable,
		DueDate:      req.DueDate,
		Analysis:     req.Analysis,
	}
	if task.Section == "" {
		task.Section = ports.SectionPersonal
	}
	if task.Priority == "" {
		task.Priority = ports.PriorityMedium
	}

	created, err := h.tasks.Create(r.Context(), task)
	if err != nil {
		h.logger.Error("Create task failed: %v", err)
		writeError(w, statusFor(err), "Failed to create task", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context(), id.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), "Failed to list tasks", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *APIHandler) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var update ports.TaskUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	task, err := h.tasks.Update(r.Context(), r.PathValue("id"), update)
	if err != nil {
		writeError(w, statusFor(err), "Failed to update task", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *APIHandler) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), "Failed to delete task", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	executions, err := h.history.ListExecutions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to list executions", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (h *APIHandler) HandleListConversation(w http.ResponseWriter, r *http.Request) {
	turns, err := h.history.ListConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to list conversation", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// HandleUpdateExecution is the explicit user-edit path for a persisted
// response. It targets exactly one execution.
func (h *APIHandler) HandleUpdateExecution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response string `json:"response"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.history.UpdateExecutionResponse(r.Context(), r.PathValue("id"), req.Response); err != nil {
		writeError(w, statusFor(err), "Failed to update execution", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch is the raw search tool path. Like the execution path it fails
// open: provider trouble means an empty result list, not an error.
func (h *APIHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "Query parameter q is required", "")
		return
	}
	results := h.search.Search(r.Context(), query, rawSearchCount)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
