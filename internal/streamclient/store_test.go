package streamclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/exec"
)

func TestStoreAssemblesDraftAndTranscript(t *testing.T) {
	s := NewStore()
	s.BeginExecution("task-1", "Summarize today's top AI news")

	view := s.View("task-1")
	assert.True(t, view.Streaming)
	require.Len(t, view.Transcript, 1)
	assert.Equal(t, ports.RoleUser, view.Transcript[0].Role)

	s.ApplyEvent("task-1", exec.Event{Type: exec.EventSearchResults, SearchResults: []ports.SearchResult{{Title: "A"}}})
	s.ApplyEvent("task-1", exec.Event{Type: exec.EventContentChunk, Content: "Here"})
	s.ApplyEvent("task-1", exec.Event{Type: exec.EventContentChunk, Content: " is a summary"})

	view = s.View("task-1")
	assert.Equal(t, "Here is a summary", view.CurrentResponse())
	assert.Len(t, view.SearchResults, 1)
	assert.True(t, view.Streaming)

	s.ApplyEvent("task-1", exec.Event{
		Type:     exec.EventCompletion,
		TaskID:   "task-1",
		Response: "Here is a summary",
	})

	view = s.View("task-1")
	assert.False(t, view.Streaming)
	require.Len(t, view.Transcript, 2)
	assert.Equal(t, ports.RoleAssistant, view.Transcript[1].Role)
	assert.Equal(t, "Here is a summary", view.Transcript[1].Content)
}

func TestStoreCompletionOverridesDraft(t *testing.T) {
	s := NewStore()
	s.BeginExecution("task-1", "anything")
	s.ApplyEvent("task-1", exec.Event{Type: exec.EventContentChunk, Content: "partial"})
	s.ApplyEvent("task-1", exec.Event{Type: exec.EventCompletion, Response: "corrected full answer"})

	assert.Equal(t, "corrected full answer", s.View("task-1").Draft)
}

func TestStoreCarriesWarningAndError(t *testing.T) {
	s := NewStore()
	s.BeginExecution("task-1", "anything")
	s.ApplyEvent("task-1", exec.Event{Type: exec.EventCompletion, Response: "answer", Warning: "Response could not be saved"})
	assert.Equal(t, "Response could not be saved", s.View("task-1").Warning)

	s.BeginExecution("task-2", "anything")
	s.ApplyEvent("task-2", exec.Event{Type: exec.EventError, Error: "boom", Details: "details"})
	view := s.View("task-2")
	require.NotNil(t, view.Err)
	assert.Equal(t, "boom", view.Err.Message)
	assert.False(t, view.Streaming)

	// A new execution clears the previous failure.
	s.BeginExecution("task-2", "retry")
	assert.Nil(t, s.View("task-2").Err)
}

func TestStoreSeedAndDrop(t *testing.T) {
	s := NewStore()
	s.SeedTranscript("task-1", []ports.Message{
		{Role: ports.RoleUser, Content: "Plan a trip"},
		{Role: ports.RoleAssistant, Content: "Here is an itinerary."},
	})
	assert.Len(t, s.View("task-1").Transcript, 2)

	s.Drop("task-1")
	assert.Empty(t, s.View("task-1").Transcript)
}
