package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/exec"
	"taskpilot/internal/logging"
	"taskpilot/internal/observability"
	id "taskpilot/internal/utils/id"
)

// ExecuteHandler streams task executions over SSE and persists completed
// ones.
type ExecuteHandler struct {
	orchestrator *exec.Orchestrator
	history      ports.HistoryStore
	logger       logging.Logger
}

func NewExecuteHandler(orchestrator *exec.Orchestrator, history ports.HistoryStore) *ExecuteHandler {
	return &ExecuteHandler{
		orchestrator: orchestrator,
		history:      history,
		logger:       logging.NewComponentLogger("ExecuteHandler"),
	}
}

// executeTaskRequest is the wire shape of POST /api/execute-task. Context is
// polymorphic: a string is a first-turn analysis hint, an array is prior
// conversation turns and makes this a continuation.
type executeTaskRequest struct {
	Text    string          `json:"text"`
	TaskID  string          `json:"taskId"`
	Context json.RawMessage `json:"context"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *ExecuteHandler) HandleExecuteTask(w http.ResponseWriter, r *http.Request) {
	var req executeTaskRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Task text is required", "")
		return
	}

	hint, history, err := parseExecutionContext(req.Context)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid context", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	userID := id.UserIDFromContext(ctx)

	sink := func(event exec.Event) error {
		if event.Type == exec.EventCompletion {
			// Persist before forwarding so the client learns about a failed
			// save through the warning field on the same event.
			event = h.persistCompletion(ctx, userID, req.Text, event)
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	execReq := exec.ExecuteRequest{
		TaskID:       req.TaskID,
		Text:         req.Text,
		AnalysisHint: hint,
		History:      history,
	}

	if len(history) > 0 {
		err = h.orchestrator.ExecuteConversation(ctx, execReq, sink)
	} else {
		err = h.orchestrator.ExecuteInitial(ctx, execReq, sink)
	}
	if err != nil {
		// The stream already carried the error event when one was possible.
		h.logger.Debug("Execution for task %s ended with error: %v", req.TaskID, err)
	}
}

// persistCompletion appends the execution and both conversation turns. On
// failure the completion still goes out, flagged with a warning; the client
// keeps the streamed answer either way.
func (h *ExecuteHandler) persistCompletion(ctx context.Context, userID, text string, event exec.Event) exec.Event {
	if event.TaskID == "" {
		return event
	}

	// Once a full response was generated, a client dropping the connection
	// should not abort the save mid-way.
	ctx = context.WithoutCancel(ctx)

	record, err := h.history.AppendExecution(ctx, event.TaskID, userID, event.Response, event.SearchResults)
	if err != nil {
		h.logger.Error("Failed to persist execution for task %s: %v", event.TaskID, err)
		observability.IncPersistFailures()
		event.Warning = "Response could not be saved"
		return event
	}

	if _, err := h.history.AppendTurn(ctx, event.TaskID, userID, "user", text); err != nil {
		h.logger.Error("Failed to persist user turn for task %s: %v", event.TaskID, err)
	}
	if _, err := h.history.AppendTurn(ctx, event.TaskID, userID, "assistant", event.Response); err != nil {
		h.logger.Error("Failed to persist assistant turn for task %s: %v", event.TaskID, err)
	}

	h.logger.Debug("Persisted execution %s for task %s", record.ID, event.TaskID)
	return event
}

func parseExecutionContext(raw json.RawMessage) (hint string, history []ports.Message, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, `"`):
		if err := json.Unmarshal(raw, &hint); err != nil {
			return "", nil, err
		}
		return hint, nil, nil
	case strings.HasPrefix(trimmed, "["):
		var turns []wireTurn
		if err := json.Unmarshal(raw, &turns); err != nil {
			return "", nil, err
		}
		history = make([]ports.Message, 0, len(turns))
		for _, turn := range turns {
			role := turn.Role
			if role != ports.RoleSystem && role != ports.RoleAssistant {
				role = ports.RoleUser
			}
			history = append(history, ports.Message{Role: role, Content: turn.Content})
		}
		return "", history, nil
	default:
		return "", nil, fmt.Errorf("context must be a string or an array of turns")
	}
}
