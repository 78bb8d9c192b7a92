package streamclient

import (
	"sync"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/exec"
)

// TaskView is a derived read-only snapshot of one task's client-side state.
type TaskView struct {
	TaskID        string
	Draft         string
	SearchResults []ports.SearchResult
	Transcript    []ports.Message
	Streaming     bool
	Warning       string
	Err           *StreamError
}

// CurrentResponse is the text a client should render: the completed draft,
// or whatever has streamed so far.
func (v TaskView) CurrentResponse() string {
	return v.Draft
}

// Store is the single normalized client-side state container, keyed by task
// id. Events mutate it; views are computed on read so there is never a
// second copy of drafts or transcripts to reconcile.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*taskState
}

type taskState struct {
	draft         string
	searchResults []ports.SearchResult
	transcript    []ports.Message
	streaming     bool
	warning       string
	err           *StreamError
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*taskState)}
}

// SeedTranscript installs persisted conversation turns, e.g. after a task is
// re-selected and its history reloaded.
func (s *Store) SeedTranscript(taskID string, turns []ports.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state(taskID)
	state.transcript = append([]ports.Message(nil), turns...)
}

// BeginExecution records the user's prompt and resets in-flight state.
func (s *Store) BeginExecution(taskID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state(taskID)
	state.draft = ""
	state.warning = ""
	state.err = nil
	state.streaming = true
	state.transcript = append(state.transcript, ports.Message{Role: ports.RoleUser, Content: text})
}

// ApplyEvent folds one stream event into the task's state.
func (s *Store) ApplyEvent(taskID string, event exec.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state(taskID)

	switch event.Type {
	case exec.EventSearchResults:
		state.searchResults = event.SearchResults

	case exec.EventContentChunk:
		state.draft += event.Content

	case exec.EventCompletion:
		// The completion record is authoritative over the streamed draft.
		if event.Response != "" {
			state.draft = event.Response
		}
		if len(event.SearchResults) > 0 {
			state.searchResults = event.SearchResults
		}
		state.warning = event.Warning
		state.streaming = false
		state.transcript = append(state.transcript, ports.Message{Role: ports.RoleAssistant, Content: state.draft})

	case exec.EventError:
		state.err = &StreamError{Message: event.Error, Details: event.Details}
		state.streaming = false
	}
}

// View computes the task's current snapshot.
func (s *Store) View(taskID string) TaskView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tasks[taskID]
	if !ok {
		return TaskView{TaskID: taskID}
	}
	return TaskView{
		TaskID:        taskID,
		Draft:         state.draft,
		SearchResults: append([]ports.SearchResult(nil), state.searchResults...),
		Transcript:    append([]ports.Message(nil), state.transcript...),
		Streaming:     state.streaming,
		Warning:       state.warning,
		Err:           state.err,
	}
}

// Drop forgets a task, mirroring a server-side cascade delete.
func (s *Store) Drop(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

func (s *Store) state(taskID string) *taskState {
	state, ok := s.tasks[taskID]
	if !ok {
		state = &taskState{}
		s.tasks[taskID] = state
	}
	return state
}
