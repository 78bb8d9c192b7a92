package ports

import (
	"context"
	"time"
)

// Section classifies a task as work or personal.
type Section string

const (
	SectionWork     Section = "Work"
	SectionPersonal Section = "Personal"
)

// Priority is the task urgency level.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Task is a user-created to-do item, optionally AI-executable.
type Task struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Text         string     `json:"text"`
	Completed    bool       `json:"completed"`
	Section      Section    `json:"section"`
	Priority     Priority   `json:"priority"`
	AIExecutable bool       `json:"ai_executable"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	// Analysis is the analyzer's free-text rationale. Session-only: it is
	// returned to the client at creation time and never persisted.
	Analysis  string    `json:"analysis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Execution is one complete AI-generated answer for a task, with its search
// sources. Executions are append-only; the pipeline never mutates Response
// after creation.
type Execution struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"task_id"`
	UserID        string         `json:"user_id"`
	Response      string         `json:"response"`
	SearchResults []SearchResult `json:"search_results"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ConversationTurn is one message in a task's chat history.
type ConversationTurn struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskUpdate carries the mutable task fields for partial updates. Nil fields
// are left unchanged.
type TaskUpdate struct {
	Text         *string    `json:"text,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Section      *Section   `json:"section,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	AIExecutable *bool      `json:"ai_executable,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// TaskStore persists tasks. Delete cascades to the task's executions and
// conversation turns; the store enforces that invariant, not the caller.
type TaskStore interface {
	Create(ctx context.Context, task *Task) (*Task, error)
	Get(ctx context.Context, taskID string) (*Task, error)
	List(ctx context.Context, userID string) ([]*Task, error)
	Update(ctx context.Context, taskID string, update TaskUpdate) (*Task, error)
	Delete(ctx context.Context, taskID string) error
}

// HistoryStore persists per-task executions (one row per generation) and
// conversation turns (one row per message).
//
// ListExecutions after N successful AppendExecution calls for the same task
// returns exactly N records, newest first; single-row-insert atomicity from
// the underlying store is sufficient, appends are independent.
type HistoryStore interface {
	AppendExecution(ctx context.Context, taskID, userID, response string, results []SearchResult) (*Execution, error)
	ListExecutions(ctx context.Context, taskID string) ([]*Execution, error)
	// UpdateExecutionResponse is the explicit user-edit path. It targets
	// exactly one execution by id; it is the only write that may overwrite
	// a persisted response.
	UpdateExecutionResponse(ctx context.Context, executionID, response string) error
	AppendTurn(ctx context.Context, taskID, userID, role, content string) (*ConversationTurn, error)
	ListConversation(ctx context.Context, taskID string) ([]*ConversationTurn, error)
}
