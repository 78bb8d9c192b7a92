package exec

import (
	"fmt"
	"strings"

	"taskpilot/internal/agent/ports"
)

const taskExecutorSystemPrompt = `You are a capable assistant that executes tasks on the user's behalf.
Produce a complete, well-structured answer in markdown. Be direct and practical; do not ask clarifying questions unless the task is impossible without them.`

// buildInitialMessages frames a first-turn execution: system instruction,
// optional search context as an assistant message, then the wrapped task
// text. Continuations never come through here.
func buildInitialMessages(text, analysisHint string, results []ports.SearchResult) []ports.Message {
	system := taskExecutorSystemPrompt
	if analysisHint != "" {
		system += "\n\nTask analysis: " + analysisHint
	}

	messages := []ports.Message{{Role: ports.RoleSystem, Content: system}}
	if ctx := formatSearchContext(results); ctx != "" {
		messages = append(messages, ports.Message{Role: ports.RoleAssistant, Content: ctx})
	}
	messages = append(messages, ports.Message{
		Role:    ports.RoleUser,
		Content: "Execute this task: " + text,
	})
	return messages
}

// buildContinuationMessages passes prior turns through verbatim and appends
// the new text bare. The history already carries the first turn's framing.
func buildContinuationMessages(history []ports.Message, text string) []ports.Message {
	messages := make([]ports.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ports.Message{Role: ports.RoleUser, Content: text})
	return messages
}

// formatSearchContext renders search results as a numbered context block, or
// "" when there are none.
func formatSearchContext(results []ports.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Here are current web search results relevant to the task:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\nSource: %s\n\n", i+1, r.Title, r.Description, r.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
