package exec

import (
	"context"
	"fmt"
	"strings"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/logging"
	"taskpilot/internal/observability"
)

// FollowUpRequest is a chat turn after the first execution.
type FollowUpRequest struct {
	TaskID           string
	NewText          string
	OriginalTaskText string
	PreviousResponse string
}

// FollowUp answers chat turns with a single blocking completion. It never
// classifies or searches; the original search context is assumed to still
// apply. The caller persists the returned string as a new execution and
// conversation turns.
type FollowUp struct {
	llm    ports.LLMClient
	logger logging.Logger
}

func NewFollowUp(llm ports.LLMClient) *FollowUp {
	return &FollowUp{
		llm:    llm,
		logger: logging.NewComponentLogger("followup"),
	}
}

func (f *FollowUp) Respond(ctx context.Context, req FollowUpRequest) (string, error) {
	if strings.TrimSpace(req.NewText) == "" {
		return "", fmt.Errorf("follow-up text is required")
	}

	user := fmt.Sprintf(`The original task was: %s

Your previous response was:
%s

Follow-up from the user: %s`, req.OriginalTaskText, req.PreviousResponse, req.NewText)

	resp, err := f.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: ports.RoleSystem, Content: taskExecutorSystemPrompt},
			{Role: ports.RoleUser, Content: user},
		},
	})
	if err != nil {
		observability.ObserveFollowUp(observability.OutcomeErrored)
		f.logger.Error("[task:%s] follow-up failed: %v", req.TaskID, err)
		return "", fmt.Errorf("follow-up completion: %w", err)
	}

	observability.ObserveFollowUp(observability.OutcomeCompleted)
	f.logger.Debug("[task:%s] follow-up answered, %d chars", req.TaskID, len(resp.Content))
	return resp.Content, nil
}
