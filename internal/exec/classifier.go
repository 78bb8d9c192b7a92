package exec

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/logging"
)

const classifierCacheSize = 256

const classifierSystemPrompt = `You decide whether completing a task requires searching the web for current information.
Answer with exactly one word: yes or no. No punctuation, no explanation.`

// Classifier asks the model whether a task needs a web search before
// execution. The verdict is deliberately strict: anything other than an
// unambiguous yes means no, so a hedging model skips search rather than
// triggering it.
type Classifier struct {
	llm    ports.LLMClient
	cache  *lru.Cache[string, bool]
	logger logging.Logger
}

func NewClassifier(llm ports.LLMClient) *Classifier {
	// Size is fixed; New only fails on a non-positive size.
	cache, _ := lru.New[string, bool](classifierCacheSize)
	return &Classifier{
		llm:    llm,
		cache:  cache,
		logger: logging.NewComponentLogger("classifier"),
	}
}

// NeedsSearch returns true iff the model's trimmed, lowercased answer is
// exactly "yes". LLM failure propagates; verdicts are cached per task text,
// errors never are.
func (c *Classifier) NeedsSearch(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	if verdict, ok := c.cache.Get(text); ok {
		c.logger.Debug("Cache hit for %q: %v", text, verdict)
		return verdict, nil
	}

	resp, err := c.llm.Complete(ctx, ports.CompletionRequest{
		Messages: []ports.Message{
			{Role: ports.RoleSystem, Content: classifierSystemPrompt},
			{Role: ports.RoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("classify search need: %w", err)
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Content)) == "yes"
	c.logger.Debug("Classified %q: answer=%q verdict=%v", text, resp.Content, verdict)
	c.cache.Add(text, verdict)
	return verdict, nil
}
