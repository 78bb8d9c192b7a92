// Package analyzer turns free-form task text into structured task metadata
// through a forced function-calling LLM request.
package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskpilot/internal/agent/ports"
	taskerrors "taskpilot/internal/errors"
	"taskpilot/internal/logging"
)

const toolName = "analyze_task"

// Analysis is the analyzer's verdict about one task text. DueDate is set only
// when the model produced a recognized date token; otherwise DueDateRaw
// carries the model's value untouched.
type Analysis struct {
	TaskName     string         `json:"taskName"`
	Section      ports.Section  `json:"section"`
	Priority     ports.Priority `json:"priority"`
	AIExecutable bool           `json:"aiExecutable"`
	DueDate      *time.Time     `json:"dueDate,omitempty"`
	DueDateRaw   string         `json:"dueDateRaw,omitempty"`
	Analysis     string         `json:"analysis"`
}

// Analyzer asks the model to categorize a task. Failures are hard errors; a
// task is never created from a partial analysis.
type Analyzer struct {
	llm    ports.LLMClient
	logger logging.Logger
	retry  taskerrors.RetryConfig
	now    func() time.Time
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithClock overrides the time source used for due-date resolution.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRetryConfig overrides the retry policy for the LLM call.
func WithRetryConfig(cfg taskerrors.RetryConfig) Option {
	return func(a *Analyzer) {
		a.retry = cfg
	}
}

func New(llm ports.LLMClient, opts ...Option) *Analyzer {
	a := &Analyzer{
		llm:    llm,
		logger: logging.NewComponentLogger("analyzer"),
		retry:  taskerrors.DefaultRetryConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func analyzeTool() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        toolName,
		Description: "Categorize a to-do item and judge whether an AI assistant can execute it.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"taskName": {
					Type:        "string",
					Description: "A short cleaned-up title for the task",
				},
				"section": {
					Type:        "string",
					Enum:        []any{"Work", "Personal"},
					Description: "Which list the task belongs to",
				},
				"priority": {
					Type:        "string",
					Enum:        []any{"High", "Medium", "Low"},
					Description: "Urgency of the task",
				},
				"aiExecutable": {
					Type:        "boolean",
					Description: "Whether an AI assistant could complete this task on the user's behalf",
				},
				"dueDate": {
					Type:        "string",
					Description: `Due date as "today", "tomorrow", "+N days", or empty when none is implied`,
				},
				"analysis": {
					Type:        "string",
					Description: "One or two sentences explaining the categorization",
				},
			},
			Required: []string{"taskName", "section", "priority", "aiExecutable", "analysis"},
		},
	}
}

func (a *Analyzer) systemPrompt() string {
	today := a.now().Format("Monday, January 2, 2006")
	return fmt.Sprintf(`You are a task analysis assistant. Today is %s.
Given a to-do item, call %s exactly once with your categorization.
For dueDate use only the tokens "today", "tomorrow", or "+N days" (for example "+3 days") when the task text implies a deadline; otherwise leave it empty.`, today, toolName)
}

// Analyze categorizes the task text. The model's tool call is mandatory;
// a response without one, or with unusable arguments, is an error.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, taskerrors.NewPermanentError(fmt.Errorf("empty task text"), "Task text is required.")
	}

	req := ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: ports.RoleSystem, Content: a.systemPrompt()},
			{Role: ports.RoleUser, Content: text},
		},
		Tools:       []ports.ToolDefinition{analyzeTool()},
		ToolChoice:  toolName,
		Temperature: 0.2,
	}

	resp, err := taskerrors.RetryWithResultAndLog(ctx, a.retry, func(ctx context.Context) (*ports.CompletionResponse, error) {
		return a.llm.Complete(ctx, req)
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("analyze task: %w", err)
	}

	call := findToolCall(resp.ToolCalls, toolName)
	if call == nil {
		a.logger.Error("Model did not call %s (content=%q)", toolName, resp.Content)
		return nil, taskerrors.NewPermanentError(fmt.Errorf("model did not call %s", toolName), "The model could not analyze this task.")
	}
	if call.Arguments == nil {
		return nil, taskerrors.NewPermanentError(fmt.Errorf("malformed %s arguments: %s", toolName, call.RawArguments), "The model could not analyze this task.")
	}

	return a.buildAnalysis(call.Arguments)
}

func (a *Analyzer) buildAnalysis(args map[string]any) (*Analysis, error) {
	result := &Analysis{
		TaskName: stringArg(args, "taskName"),
		Analysis: stringArg(args, "analysis"),
	}
	if result.TaskName == "" {
		return nil, taskerrors.NewPermanentError(fmt.Errorf("missing taskName"), "The model could not analyze this task.")
	}

	section, ok := parseSection(stringArg(args, "section"))
	if !ok {
		return nil, taskerrors.NewPermanentError(fmt.Errorf("invalid section %q", args["section"]), "The model could not analyze this task.")
	}
	result.Section = section

	priority, ok := parsePriority(stringArg(args, "priority"))
	if !ok {
		return nil, taskerrors.NewPermanentError(fmt.Errorf("invalid priority %q", args["priority"]), "The model could not analyze this task.")
	}
	result.Priority = priority

	if v, ok := args["aiExecutable"].(bool); ok {
		result.AIExecutable = v
	}

	if raw := stringArg(args, "dueDate"); raw != "" {
		if due, ok := a.resolveDueDate(raw); ok {
			result.DueDate = &due
		} else {
			result.DueDateRaw = raw
		}
	}

	return result, nil
}

var plusDaysPattern = regexp.MustCompile(`^\+(\d+)\s+days?$`)

// resolveDueDate maps the recognized token vocabulary onto concrete dates.
// Anything else is left for the caller to carry as opaque text.
func (a *Analyzer) resolveDueDate(raw string) (time.Time, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	now := a.now()
	switch token {
	case "today":
		return now, true
	case "tomorrow":
		return now.Add(24 * time.Hour), true
	}
	if m := plusDaysPattern.FindStringSubmatch(token); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return now.Add(time.Duration(n) * 24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func parseSection(raw string) (ports.Section, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "work":
		return ports.SectionWork, true
	case "personal":
		return ports.SectionPersonal, true
	}
	return "", false
}

func parsePriority(raw string) (ports.Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return ports.PriorityHigh, true
	case "medium":
		return ports.PriorityMedium, true
	case "low":
		return ports.PriorityLow, true
	}
	return "", false
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func findToolCall(calls []ports.ToolCall, name string) *ports.ToolCall {
	for i := range calls {
		if calls[i].Name == name {
			return &calls[i]
		}
	}
	return nil
}
