package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/logging"
	"taskpilot/internal/observability"
)

// executionSearchCount caps results fetched while grounding an execution.
const executionSearchCount = 5

type state string

const (
	stateInit        state = "INIT"
	stateClassifying state = "CLASSIFYING"
	stateSearching   state = "SEARCHING"
	stateGenerating  state = "GENERATING"
	stateCompleted   state = "COMPLETED"
	stateErrored     state = "ERRORED"
)

// ExecuteRequest describes one execution run.
type ExecuteRequest struct {
	TaskID string
	Text   string
	// AnalysisHint is the analyzer's free-text rationale, folded into the
	// system prompt on first-turn executions.
	AnalysisHint string
	// History carries prior conversation turns for ExecuteConversation.
	// ExecuteInitial ignores it.
	History []ports.Message
}

// Orchestrator drives a task execution through classification, optional
// search, and streamed generation, emitting events on the sink in strict
// order: search_results (0..1, first), content_chunk (0..N), then exactly
// one completion or error. All sink calls happen from the caller's
// goroutine.
type Orchestrator struct {
	llm        ports.LLMClient
	classifier *Classifier
	search     ports.SearchProvider
	logger     logging.Logger
}

func NewOrchestrator(llm ports.LLMClient, classifier *Classifier, search ports.SearchProvider) *Orchestrator {
	return &Orchestrator{
		llm:        llm,
		classifier: classifier,
		search:     search,
		logger:     logging.NewComponentLogger("orchestrator"),
	}
}

// ExecuteInitial runs a first-turn execution: classify, search when the
// classifier is unambiguous, then stream generation.
func (o *Orchestrator) ExecuteInitial(ctx context.Context, req ExecuteRequest, sink EventSink) error {
	started := time.Now()
	run := &execRun{orchestrator: o, req: req, sink: sink, started: started, state: stateInit}

	run.transition(stateClassifying)
	needsSearch, err := o.classifier.NeedsSearch(ctx, req.Text)
	if err != nil {
		return run.fail(ctx, err)
	}

	var results []ports.SearchResult
	searched := false
	if needsSearch {
		run.transition(stateSearching)
		results = o.search.Search(ctx, req.Text, executionSearchCount)
		observability.ObserveSearch(len(results))
		searched = true
	}

	// The event is emitted whenever search ran, even with zero results, so
	// the client can distinguish "searched, found nothing" from "skipped".
	if searched {
		if err := sink(newSearchResultsEvent(results)); err != nil {
			return fmt.Errorf("send search results: %w", err)
		}
	}

	messages := buildInitialMessages(req.Text, req.AnalysisHint, results)
	return run.generate(ctx, messages, results)
}

// ExecuteConversation runs a continuation turn: prior history passes through
// verbatim, the new text is appended bare, and neither the classifier nor
// the search provider is consulted.
func (o *Orchestrator) ExecuteConversation(ctx context.Context, req ExecuteRequest, sink EventSink) error {
	run := &execRun{orchestrator: o, req: req, sink: sink, started: time.Now(), state: stateInit}
	messages := buildContinuationMessages(req.History, req.Text)
	return run.generate(ctx, messages, nil)
}

// execRun is the per-execution state machine instance.
type execRun struct {
	orchestrator *Orchestrator
	req          ExecuteRequest
	sink         EventSink
	started      time.Time
	state        state
}

func (r *execRun) transition(next state) {
	r.orchestrator.logger.Debug("[task:%s] %s -> %s", r.req.TaskID, r.state, next)
	r.state = next
}

// generate streams the completion and terminates the event stream. It is
// shared by both entry points.
func (r *execRun) generate(ctx context.Context, messages []ports.Message, results []ports.SearchResult) error {
	r.transition(stateGenerating)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The delta callback cannot return an error, so a failed sink write is
	// recorded here and the upstream call is cancelled.
	var mu sync.Mutex
	var sinkErr error

	resp, err := r.orchestrator.llm.StreamComplete(streamCtx, ports.CompletionRequest{Messages: messages}, ports.CompletionStreamCallbacks{
		OnContentDelta: func(delta ports.ContentDelta) {
			if delta.Final || delta.Delta == "" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if sinkErr != nil {
				return
			}
			if err := r.sink(newContentChunkEvent(delta.Delta)); err != nil {
				sinkErr = err
				cancel()
				return
			}
			observability.IncContentChunks()
		},
	})

	mu.Lock()
	failedSink := sinkErr
	mu.Unlock()

	if failedSink != nil {
		// The client is gone; there is no stream left to send an error on.
		r.transition(stateErrored)
		observability.ObserveExecution(observability.OutcomeCancelled, time.Since(r.started))
		return fmt.Errorf("send content chunk: %w", failedSink)
	}
	if err != nil {
		return r.fail(ctx, err)
	}

	if err := r.sink(newCompletionEvent(r.req.TaskID, r.req.Text, resp.Content, results)); err != nil {
		r.transition(stateErrored)
		observability.ObserveExecution(observability.OutcomeCancelled, time.Since(r.started))
		return fmt.Errorf("send completion: %w", err)
	}

	r.transition(stateCompleted)
	observability.ObserveExecution(observability.OutcomeCompleted, time.Since(r.started))
	r.orchestrator.logger.Info("[task:%s] execution completed, %d chars in %v",
		r.req.TaskID, len(resp.Content), time.Since(r.started))
	return nil
}

// fail terminates the stream with an error event, unless the run was
// cancelled, in which case the client is gone and nothing is emitted.
func (r *execRun) fail(ctx context.Context, err error) error {
	r.transition(stateErrored)

	// Only the request context going away means the client disconnected; a
	// provider-side timeout still has a live stream to report on.
	if ctx.Err() != nil {
		observability.ObserveExecution(observability.OutcomeCancelled, time.Since(r.started))
		return err
	}

	observability.ObserveExecution(observability.OutcomeErrored, time.Since(r.started))
	r.orchestrator.logger.Error("[task:%s] execution failed: %v", r.req.TaskID, err)
	if sendErr := r.sink(newErrorEvent(err)); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}
