package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/logging"
	id "taskpilot/internal/utils/id"
)

const (
	tasksTable         = "tasks"
	executionsTable    = "task_executions"
	conversationsTable = "task_conversations"
)

// PostgresStore implements ports.TaskStore and ports.HistoryStore on a pgx
// connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logging.NewComponentLogger("PostgresStore"),
	}, nil
}

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the three tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("store not initialized")
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    text TEXT NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    section TEXT NOT NULL,
    priority TEXT NOT NULL,
    ai_executable BOOLEAN NOT NULL DEFAULT FALSE,
    due_date TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON %[1]s (user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS %[2]s (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    response TEXT NOT NULL,
    search_results JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_executions_task_id ON %[2]s (task_id, created_at DESC);
CREATE TABLE IF NOT EXISTS %[3]s (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_conversations_task_id ON %[3]s (task_id, created_at ASC);
`, tasksTable, executionsTable, conversationsTable)

	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, task *ports.Task) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}

	stored := *task
	if stored.ID == "" {
		stored.ID = id.NewTaskID()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, user_id, text, completed, section, priority, ai_executable, due_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, tasksTable)

	_, err := s.pool.Exec(ctx, query,
		stored.ID, stored.UserID, stored.Text, stored.Completed,
		string(stored.Section), string(stored.Priority), stored.AIExecutable,
		stored.DueDate, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, taskID string) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT id, user_id, text, completed, section, priority, ai_executable, due_date, created_at
FROM %s WHERE id = $1
`, tasksTable)

	task, err := scanTask(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT id, user_id, text, completed, section, priority, ai_executable, due_date, created_at
FROM %s WHERE user_id = $1 ORDER BY created_at DESC
`, tasksTable)

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*ports.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, taskID string, update ports.TaskUpdate) (*ports.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Text != nil {
		addSet("text", *update.Text)
	}
	if update.Completed != nil {
		addSet("completed", *update.Completed)
	}
	if update.Section != nil {
		addSet("section", string(*update.Section))
	}
	if update.Priority != nil {
		addSet("priority", string(*update.Priority))
	}
	if update.AIExecutable != nil {
		addSet("ai_executable", *update.AIExecutable)
	}
	if update.DueDate != nil {
		addSet("due_date", *update.DueDate)
	}
	if len(sets) == 0 {
		return s.Get(ctx, taskID)
	}

	args = append(args, taskID)
	query := fmt.Sprintf(`
UPDATE %s SET %s WHERE id = $%d
RETURNING id, user_id, text, completed, section, priority, ai_executable, due_date, created_at
`, tasksTable, strings.Join(sets, ", "), len(args))

	task, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Delete removes the task, its executions, and its conversation turns in one
// transaction.
func (s *PostgresStore) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE task_id = $1", conversationsTable), taskID); err != nil {
		return fmt.Errorf("delete conversation turns: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE task_id = $1", executionsTable), taskID); err != nil {
		return fmt.Errorf("delete executions: %w", err)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", tasksTable), taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) AppendExecution(ctx context.Context, taskID, userID, response string, results []ports.SearchResult) (*ports.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exec := &ports.Execution{
		ID:            id.NewExecutionID(),
		TaskID:        taskID,
		UserID:        userID,
		Response:      response,
		SearchResults: copyResults(results),
		CreatedAt:     time.Now(),
	}

	resultsJSON, err := json.Marshal(exec.SearchResults)
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, task_id, user_id, response, search_results, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, executionsTable)

	if _, err := s.pool.Exec(ctx, query, exec.ID, exec.TaskID, exec.UserID, exec.Response, resultsJSON, exec.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return exec, nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, taskID string) ([]*ports.Execution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT id, task_id, user_id, response, search_results, created_at
FROM %s WHERE task_id = $1 ORDER BY created_at DESC, id DESC
`, executionsTable)

	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*ports.Execution, 0)
	for rows.Next() {
		var (
			exec        ports.Execution
			resultsJSON []byte
		)
		if err := rows.Scan(&exec.ID, &exec.TaskID, &exec.UserID, &exec.Response, &resultsJSON, &exec.CreatedAt); err != nil {
			return nil, err
		}
		exec.SearchResults = []ports.SearchResult{}
		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &exec.SearchResults); err != nil {
				return nil, fmt.Errorf("decode search results: %w", err)
			}
		}
		executions = append(executions, &exec)
	}
	return executions, rows.Err()
}

func (s *PostgresStore) UpdateExecutionResponse(ctx context.Context, executionID, response string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET response = $1 WHERE id = $2", executionsTable),
		response, executionID)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, taskID, userID, role, content string) (*ports.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	turn := &ports.ConversationTurn{
		ID:        id.NewTurnID(),
		TaskID:    taskID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, task_id, user_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, conversationsTable)

	if _, err := s.pool.Exec(ctx, query, turn.ID, turn.TaskID, turn.UserID, turn.Role, turn.Content, turn.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert conversation turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) ListConversation(ctx context.Context, taskID string) ([]*ports.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT id, task_id, user_id, role, content, created_at
FROM %s WHERE task_id = $1 ORDER BY created_at ASC, id ASC
`, conversationsTable)

	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	turns := make([]*ports.ConversationTurn, 0)
	for rows.Next() {
		var turn ports.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.TaskID, &turn.UserID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ports.Task, error) {
	var (
		task     ports.Task
		section  string
		priority string
	)
	err := row.Scan(&task.ID, &task.UserID, &task.Text, &task.Completed,
		&section, &priority, &task.AIExecutable, &task.DueDate, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	task.Section = ports.Section(section)
	task.Priority = ports.Priority(priority)
	return &task, nil
}

var (
	_ ports.TaskStore    = (*PostgresStore)(nil)
	_ ports.HistoryStore = (*PostgresStore)(nil)
)
