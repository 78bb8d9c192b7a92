// Package streamclient decodes an execution event stream and assembles the
// in-flight draft, then reconciles it against the completion record. It is
// the Go counterpart of the browser-side stream consumer and is used by
// integration tooling and tests.
package streamclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/exec"
	"taskpilot/internal/logging"
)

// ErrTruncated is returned when the stream ends without a terminal
// completion or error event.
var ErrTruncated = errors.New("stream ended without completion or error event")

// StreamError is the decoded terminal error event.
type StreamError struct {
	Message string
	Details string
}

func (e *StreamError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Result is the assembled outcome of one execution stream.
type Result struct {
	TaskID        string
	OriginalTask  string
	Response      string
	SearchResults []ports.SearchResult
	Warning       string
	// Reconciled is set when the completion response differed from the
	// streamed chunks; the completion record wins.
	Reconciled bool
}

// AssistantTurn is the chat turn a client appends to its transcript after a
// successful stream.
func (r *Result) AssistantTurn() ports.Message {
	return ports.Message{Role: ports.RoleAssistant, Content: r.Response}
}

// Hooks receive incremental progress while the stream is consumed. Any hook
// may be nil.
type Hooks struct {
	// OnDraft is called after each chunk with the full draft so far.
	OnDraft func(draft string)
	// OnSearchResults is called once if a search_results event arrives.
	OnSearchResults func(results []ports.SearchResult)
}

// Consumer decodes data: frames from a single execution stream.
type Consumer struct {
	logger logging.Logger
}

func NewConsumer() *Consumer {
	return &Consumer{logger: logging.NewComponentLogger("StreamConsumer")}
}

// Consume reads the stream until its terminal event. A terminal error event
// is returned as a *StreamError; transport problems and truncation are
// ordinary errors. Malformed frames are skipped, matching the transport's
// tolerance for noise between events.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, hooks Hooks) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var draft strings.Builder
	var searchResults []ports.SearchResult

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event exec.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.logger.Debug("Skipping malformed frame: %v", err)
			continue
		}

		switch event.Type {
		case exec.EventSearchResults:
			searchResults = event.SearchResults
			if hooks.OnSearchResults != nil {
				hooks.OnSearchResults(event.SearchResults)
			}

		case exec.EventContentChunk:
			draft.WriteString(event.Content)
			if hooks.OnDraft != nil {
				hooks.OnDraft(draft.String())
			}

		case exec.EventCompletion:
			result := &Result{
				TaskID:        event.TaskID,
				OriginalTask:  event.OriginalTask,
				Response:      event.Response,
				SearchResults: event.SearchResults,
				Warning:       event.Warning,
			}
			if len(result.SearchResults) == 0 {
				result.SearchResults = searchResults
			}
			// The persisted record is authoritative when it disagrees with
			// what was streamed.
			if event.Response != draft.String() {
				result.Reconciled = true
			}
			if result.Response == "" {
				result.Response = draft.String()
			}
			return result, nil

		case exec.EventError:
			return nil, &StreamError{Message: event.Error, Details: event.Details}

		default:
			c.logger.Debug("Skipping unknown event type %q", event.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, ErrTruncated
}
