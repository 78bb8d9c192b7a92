package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/analyzer"
	"taskpilot/internal/exec"
	"taskpilot/internal/llm"
	"taskpilot/internal/store"
)

type fixedSearch struct {
	results []ports.SearchResult
	counts  []int
}

func (s *fixedSearch) Search(ctx context.Context, query string, count int) []ports.SearchResult {
	s.counts = append(s.counts, count)
	if s.results == nil {
		return []ports.SearchResult{}
	}
	return s.results
}

// failingHistory simulates a store outage for the persistence-warning path.
type failingHistory struct {
	ports.HistoryStore
}

func (f *failingHistory) AppendExecution(ctx context.Context, taskID, userID, response string, results []ports.SearchResult) (*ports.Execution, error) {
	return nil, errors.New("store unavailable")
}

type testEnv struct {
	server  *httptest.Server
	mock    *llm.MockClient
	search  *fixedSearch
	store   *store.MemoryStore
	history ports.HistoryStore
}

func newTestEnv(t *testing.T, responses ...llm.MockResponse) *testEnv {
	t.Helper()
	env := &testEnv{
		mock:   llm.NewMockClient(responses...),
		search: &fixedSearch{},
		store:  store.NewMemoryStore(),
	}
	env.history = env.store
	return env.start(t)
}

func (env *testEnv) start(t *testing.T) *testEnv {
	t.Helper()
	an := analyzer.New(env.mock)
	followup := exec.NewFollowUp(env.mock)
	orchestrator := exec.NewOrchestrator(env.mock, exec.NewClassifier(env.mock), env.search)

	api := NewAPIHandler(an, followup, env.store, env.history, env.search)
	execute := NewExecuteHandler(orchestrator, env.history)
	env.server = httptest.NewServer(NewRouter(api, execute, nil))
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-1")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func readSSEEvents(t *testing.T, resp *http.Response) []exec.Event {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var events []exec.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var event exec.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestExecuteTaskStreamsAndPersists(t *testing.T) {
	env := newTestEnv(t,
		llm.MockResponse{Content: "yes"},
		llm.MockResponse{Chunks: []string{"Here", " is", " a summary"}},
	)
	env.search.results = []ports.SearchResult{
		{Title: "AI roundup", Description: "digest", URL: "https://example.com/a"},
		{Title: "Release notes", Description: "notes", URL: "https://example.com/b"},
	}

	resp := env.post(t, "/api/execute-task", map[string]any{
		"text":   "Summarize today's top AI news",
		"taskId": "task-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := readSSEEvents(t, resp)
	require.Len(t, events, 5)
	assert.Equal(t, exec.EventSearchResults, events[0].Type)
	assert.Len(t, events[0].SearchResults, 2)

	var streamed strings.Builder
	for _, e := range events[1:4] {
		require.Equal(t, exec.EventContentChunk, e.Type)
		streamed.WriteString(e.Content)
	}

	completion := events[4]
	require.Equal(t, exec.EventCompletion, completion.Type)
	assert.Equal(t, "Here is a summary", completion.Response)
	assert.Equal(t, streamed.String(), completion.Response)
	assert.Equal(t, "Summarize today's top AI news", completion.OriginalTask)
	assert.Empty(t, completion.Warning)

	// Completion drove persistence: one execution, two turns.
	executions, err := env.store.ListExecutions(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "Here is a summary", executions[0].Response)
	assert.Equal(t, "user-1", executions[0].UserID)
	assert.Len(t, executions[0].SearchResults, 2)

	turns, err := env.store.ListConversation(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "Here is a summary", turns[1].Content)
}

func TestExecuteTaskConversationContext(t *testing.T) {
	env := newTestEnv(t,
		llm.MockResponse{Chunks: []string{"Day two details."}},
	)

	resp := env.post(t, "/api/execute-task", map[string]any{
		"text":   "Expand day two",
		"taskId": "task-2",
		"context": []map[string]string{
			{"role": "user", "content": "Plan a trip"},
			{"role": "assistant", "content": "Here is an itinerary."},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSEEvents(t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, exec.EventContentChunk, events[0].Type)
	assert.Equal(t, exec.EventCompletion, events[1].Type)

	// Continuations never classify or search: the single model call is the
	// generation, fed the history verbatim.
	require.Len(t, env.mock.Requests, 1)
	assert.Empty(t, env.search.counts)
	msgs := env.mock.Requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "Plan a trip", msgs[0].Content)
	assert.Equal(t, "Expand day two", msgs[2].Content)
}

func TestExecuteTaskPersistFailureWarns(t *testing.T) {
	env := &testEnv{
		mock: llm.NewMockClient(
			llm.MockResponse{Content: "no"},
			llm.MockResponse{Chunks: []string{"answer"}},
		),
		search: &fixedSearch{},
		store:  store.NewMemoryStore(),
	}
	env.history = &failingHistory{HistoryStore: env.store}
	env.start(t)

	resp := env.post(t, "/api/execute-task", map[string]any{"text": "Anything", "taskId": "task-3"})
	events := readSSEEvents(t, resp)

	completion := events[len(events)-1]
	require.Equal(t, exec.EventCompletion, completion.Type)
	assert.Equal(t, "answer", completion.Response)
	assert.Equal(t, "Response could not be saved", completion.Warning)
}

func TestExecuteTaskErrorEvent(t *testing.T) {
	env := newTestEnv(t,
		llm.MockResponse{Err: errors.New("provider exploded")},
	)

	resp := env.post(t, "/api/execute-task", map[string]any{"text": "Anything", "taskId": "task-4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSEEvents(t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, exec.EventError, events[0].Type)
	assert.NotEmpty(t, events[0].Error)
	assert.Contains(t, events[0].Details, "provider exploded")

	// Nothing persisted on the error path.
	executions, err := env.store.ListExecutions(context.Background(), "task-4")
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecuteTaskValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/execute-task", map[string]any{"text": " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.post(t, "/api/execute-task", map[string]any{"text": "x", "context": 42})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAnalyzeTaskEndpoint(t *testing.T) {
	env := newTestEnv(t, llm.MockResponse{
		ToolCalls: []ports.ToolCall{{Name: "analyze_task", Arguments: map[string]any{
			"taskName":     "Buy milk",
			"section":      "Personal",
			"priority":     "Low",
			"aiExecutable": false,
			"analysis":     "A simple errand.",
		}}},
	})

	resp := env.post(t, "/api/analyze-task", map[string]string{"text": "buy milk"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var result analyzer.Analysis
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "Buy milk", result.TaskName)
	assert.Equal(t, ports.SectionPersonal, result.Section)
}

func TestAnalyzeTaskFailure(t *testing.T) {
	env := newTestEnv(t, llm.MockResponse{Content: "no tool call"})

	resp := env.post(t, "/api/analyze-task", map[string]string{"text": "anything"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestFollowUpEndpointPersists(t *testing.T) {
	env := newTestEnv(t, llm.MockResponse{Content: "Start with the summary."})

	resp := env.post(t, "/api/followup", map[string]string{
		"text":             "Where do I start?",
		"originalText":     "Write the report",
		"previousResponse": "Here is a draft.",
		"taskId":           "task-5",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Start with the summary.", body["response"])

	executions, err := env.store.ListExecutions(context.Background(), "task-5")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "Start with the summary.", executions[0].Response)

	turns, err := env.store.ListConversation(context.Background(), "task-5")
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestTaskCRUDEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/tasks", map[string]any{
		"text":     "Write report",
		"section":  "Work",
		"priority": "High",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created ports.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.UserID)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/tasks", nil)
	req.Header.Set("X-User-Id", "user-1")
	listResp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	var tasks []ports.Task
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&tasks))
	_ = listResp.Body.Close()
	require.Len(t, tasks, 1)

	patch, _ := json.Marshal(map[string]any{"completed": true})
	req, _ = http.NewRequest(http.MethodPatch, fmt.Sprintf("%s/api/tasks/%s", env.server.URL, created.ID), bytes.NewReader(patch))
	patchResp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, patchResp.StatusCode)
	var updated ports.Task
	require.NoError(t, json.NewDecoder(patchResp.Body).Decode(&updated))
	_ = patchResp.Body.Close()
	assert.True(t, updated.Completed)

	req, _ = http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/tasks/%s", env.server.URL, created.ID), nil)
	delResp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	_ = delResp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, env.server.URL+"/api/tasks/task-missing", nil)
	missingResp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missingResp.StatusCode)
	_ = missingResp.Body.Close()
}

func TestSearchEndpointUsesRawCount(t *testing.T) {
	env := newTestEnv(t)
	env.search.results = []ports.SearchResult{{Title: "hit", URL: "https://example.com"}}

	resp, err := env.server.Client().Get(env.server.URL + "/api/search?q=go+generics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Results []ports.SearchResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	require.Equal(t, []int{10}, env.search.counts)

	missing, err := env.server.Client().Get(env.server.URL + "/api/search")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
	_ = missing.Body.Close()
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/tasks", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-User-Id")
}

func TestParseExecutionContext(t *testing.T) {
	hint, history, err := parseExecutionContext(json.RawMessage(`"analysis hint"`))
	require.NoError(t, err)
	assert.Equal(t, "analysis hint", hint)
	assert.Nil(t, history)

	hint, history, err = parseExecutionContext(json.RawMessage(`[{"role":"weird","content":"x"}]`))
	require.NoError(t, err)
	assert.Empty(t, hint)
	require.Len(t, history, 1)
	assert.Equal(t, ports.RoleUser, history[0].Role, "unknown roles normalize to user")

	_, _, err = parseExecutionContext(json.RawMessage(`{"role":"user"}`))
	require.Error(t, err)

	hint, history, err = parseExecutionContext(nil)
	require.NoError(t, err)
	assert.Empty(t, hint)
	assert.Nil(t, history)
}
