// Package store persists tasks, executions, and conversation turns. Two
// implementations share the ports contracts: an in-memory store for tests
// and keyless deployments, and a Postgres store.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"taskpilot/internal/agent/ports"
	id "taskpilot/internal/utils/id"
)

// ErrNotFound is returned when a task or execution id is unknown.
var ErrNotFound = errors.New("not found")

// MemoryStore is a mutex-guarded in-memory implementation of both
// ports.TaskStore and ports.HistoryStore.
type MemoryStore struct {
	mu         sync.RWMutex
	tasks      map[string]*ports.Task
	executions map[string][]*ports.Execution       // keyed by task id, append order
	turns      map[string][]*ports.ConversationTurn // keyed by task id, append order
	execIndex  map[string]*ports.Execution          // keyed by execution id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[string]*ports.Task),
		executions: make(map[string][]*ports.Execution),
		turns:      make(map[string][]*ports.ConversationTurn),
		execIndex:  make(map[string]*ports.Execution),
	}
}

func (m *MemoryStore) Create(ctx context.Context, task *ports.Task) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *task
	if stored.ID == "" {
		stored.ID = id.NewTaskID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.tasks[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (m *MemoryStore) Get(ctx context.Context, taskID string) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *task
	return &result, nil
}

func (m *MemoryStore) List(ctx context.Context, userID string) ([]*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ports.Task, 0)
	for _, task := range m.tasks {
		if task.UserID != userID {
			continue
		}
		copied := *task
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, taskID string, update ports.TaskUpdate) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}

	if update.Text != nil {
		task.Text = *update.Text
	}
	if update.Completed != nil {
		task.Completed = *update.Completed
	}
	if update.Section != nil {
		task.Section = *update.Section
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.AIExecutable != nil {
		task.AIExecutable = *update.AIExecutable
	}
	if update.DueDate != nil {
		due := *update.DueDate
		task.DueDate = &due
	}

	result := *task
	return &result, nil
}

// Delete removes the task together with every execution and conversation
// turn it owns.
func (m *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[taskID]; !ok {
		return ErrNotFound
	}

	for _, exec := range m.executions[taskID] {
		delete(m.execIndex, exec.ID)
	}
	delete(m.tasks, taskID)
	delete(m.executions, taskID)
	delete(m.turns, taskID)
	return nil
}

func (m *MemoryStore) AppendExecution(ctx context.Context, taskID, userID, response string, results []ports.SearchResult) (*ports.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exec := &ports.Execution{
		ID:            id.NewExecutionID(),
		TaskID:        taskID,
		UserID:        userID,
		Response:      response,
		SearchResults: copyResults(results),
		CreatedAt:     time.Now(),
	}
	m.executions[taskID] = append(m.executions[taskID], exec)
	m.execIndex[exec.ID] = exec

	result := *exec
	return &result, nil
}

// ListExecutions returns the task's executions newest first.
func (m *MemoryStore) ListExecutions(ctx context.Context, taskID string) ([]*ports.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.executions[taskID]
	result := make([]*ports.Execution, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		copied := *stored[i]
		copied.SearchResults = copyResults(stored[i].SearchResults)
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MemoryStore) UpdateExecutionResponse(ctx context.Context, executionID, response string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.execIndex[executionID]
	if !ok {
		return ErrNotFound
	}
	exec.Response = response
	return nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, taskID, userID, role, content string) (*ports.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	turn := &ports.ConversationTurn{
		ID:        id.NewTurnID(),
		TaskID:    taskID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.turns[taskID] = append(m.turns[taskID], turn)

	result := *turn
	return &result, nil
}

// ListConversation returns the task's turns in ascending order.
func (m *MemoryStore) ListConversation(ctx context.Context, taskID string) ([]*ports.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.turns[taskID]
	result := make([]*ports.ConversationTurn, 0, len(stored))
	for _, turn := range stored {
		copied := *turn
		result = append(result, &copied)
	}
	return result, nil
}

func copyResults(results []ports.SearchResult) []ports.SearchResult {
	if results == nil {
		return []ports.SearchResult{}
	}
	copied := make([]ports.SearchResult, len(results))
	copy(copied, results)
	return copied
}

var (
	_ ports.TaskStore    = (*MemoryStore)(nil)
	_ ports.HistoryStore = (*MemoryStore)(nil)
)
