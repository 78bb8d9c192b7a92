// Package exec contains the task execution pipeline: the search-need
// classifier, the streaming execution orchestrator, and the follow-up
// handler for chat turns after the first execution.
package exec

import (
	"taskpilot/internal/agent/ports"
	taskerrors "taskpilot/internal/errors"
)

// EventType discriminates the streaming event union.
type EventType string

const (
	EventSearchResults EventType = "search_results"
	EventContentChunk  EventType = "content_chunk"
	EventCompletion    EventType = "completion"
	EventError         EventType = "error"
)

// Event is one frame of the execution stream. Exactly the fields belonging
// to its Type are populated; the constructors below are the only way events
// are built.
type Event struct {
	Type EventType `json:"type"`

	// search_results and completion
	SearchResults []ports.SearchResult `json:"searchResults,omitempty"`

	// content_chunk
	Content string `json:"content,omitempty"`

	// completion
	TaskID       string `json:"taskId,omitempty"`
	OriginalTask string `json:"originalTask,omitempty"`
	Response     string `json:"response,omitempty"`
	// Warning is set when the response streamed successfully but could not
	// be persisted. The client keeps the answer; it is just not saved.
	Warning string `json:"warning,omitempty"`

	// error
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// EventSink receives events in emission order. The orchestrator invokes it
// from a single goroutine; implementations need no internal ordering. A send
// error aborts the execution.
type EventSink func(Event) error

func newSearchResultsEvent(results []ports.SearchResult) Event {
	if results == nil {
		results = []ports.SearchResult{}
	}
	return Event{Type: EventSearchResults, SearchResults: results}
}

func newContentChunkEvent(content string) Event {
	return Event{Type: EventContentChunk, Content: content}
}

func newCompletionEvent(taskID, originalTask, response string, results []ports.SearchResult) Event {
	if results == nil {
		results = []ports.SearchResult{}
	}
	return Event{
		Type:          EventCompletion,
		TaskID:        taskID,
		OriginalTask:  originalTask,
		Response:      response,
		SearchResults: results,
	}
}

func newErrorEvent(err error) Event {
	return Event{
		Type:    EventError,
		Error:   userMessage(err),
		Details: err.Error(),
	}
}

// userMessage extracts the user-facing message from a classified error, with
// a generic fallback for unclassified ones.
func userMessage(err error) string {
	if msg := taskerrors.UserMessage(err); msg != "" {
		return msg
	}
	return "Task execution failed. Please try again."
}
