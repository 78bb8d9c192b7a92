package streamclient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/agent/ports"
)

func frames(lines ...string) string {
	return "data: " + strings.Join(lines, "\n\ndata: ") + "\n\n"
}

func TestConsumeAssemblesDraft(t *testing.T) {
	stream := frames(
		`{"type":"search_results","searchResults":[{"title":"A","description":"d","url":"https://a"},{"title":"B","description":"d","url":"https://b"}]}`,
		`{"type":"content_chunk","content":"Here"}`,
		`{"type":"content_chunk","content":" is"}`,
		`{"type":"content_chunk","content":" a summary"}`,
		`{"type":"completion","taskId":"task-1","originalTask":"Summarize today's top AI news","response":"Here is a summary","searchResults":[{"title":"A","description":"d","url":"https://a"},{"title":"B","description":"d","url":"https://b"}]}`,
	)

	var drafts []string
	var searchResults []ports.SearchResult
	result, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{
		OnDraft:         func(d string) { drafts = append(drafts, d) },
		OnSearchResults: func(r []ports.SearchResult) { searchResults = r },
	})
	require.NoError(t, err)

	// The draft grows chunk by chunk, each snapshot a prefix of the next.
	assert.Equal(t, []string{"Here", "Here is", "Here is a summary"}, drafts)
	assert.Len(t, searchResults, 2)

	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, "Here is a summary", result.Response)
	assert.False(t, result.Reconciled)
	assert.Len(t, result.SearchResults, 2)
	assert.Equal(t, ports.RoleAssistant, result.AssistantTurn().Role)
	assert.Equal(t, result.Response, result.AssistantTurn().Content)
}

func TestConsumeReconcilesDivergentCompletion(t *testing.T) {
	stream := frames(
		`{"type":"content_chunk","content":"partial"}`,
		`{"type":"completion","taskId":"task-1","response":"full corrected answer"}`,
	)

	result, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{})
	require.NoError(t, err)
	assert.True(t, result.Reconciled)
	assert.Equal(t, "full corrected answer", result.Response, "the completion record wins")
}

func TestConsumeCarriesWarning(t *testing.T) {
	stream := frames(
		`{"type":"content_chunk","content":"answer"}`,
		`{"type":"completion","taskId":"task-1","response":"answer","warning":"Response could not be saved"}`,
	)

	result, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, "Response could not be saved", result.Warning)
}

func TestConsumeErrorEvent(t *testing.T) {
	stream := frames(
		`{"type":"error","error":"The model is overloaded.","details":"http status 503"}`,
	)

	_, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{})
	require.Error(t, err)

	var streamErr *StreamError
	require.True(t, errors.As(err, &streamErr))
	assert.Equal(t, "The model is overloaded.", streamErr.Message)
	assert.Contains(t, streamErr.Error(), "503")
}

func TestConsumeTruncatedStream(t *testing.T) {
	stream := frames(`{"type":"content_chunk","content":"partial"}`)

	_, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestConsumeSkipsMalformedFrames(t *testing.T) {
	stream := "data: {not json}\n\n" + frames(
		`{"type":"content_chunk","content":"ok"}`,
		`{"type":"completion","taskId":"task-1","response":"ok"}`,
	)

	result, err := NewConsumer().Consume(context.Background(), strings.NewReader(stream), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
}
