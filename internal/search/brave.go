// Package search provides web search providers used to ground task
// executions with fresh results.
package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/httpclient"
	"taskpilot/internal/logging"
)

const (
	braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

	// DefaultCount is the result count used when grounding an execution.
	DefaultCount = 5
	// MaxCount is the largest result count a caller may request.
	MaxCount = 10

	defaultSearchTimeout = 30 * time.Second
)

// BraveProvider queries the Brave Search REST API. Failures are absorbed:
// a provider outage degrades executions to answering without search context
// rather than failing them.
type BraveProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     logging.Logger
}

// BraveOption customizes a BraveProvider.
type BraveOption func(*BraveProvider)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) BraveOption {
	return func(p *BraveProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(endpoint string) BraveOption {
	return func(p *BraveProvider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) BraveOption {
	return func(p *BraveProvider) {
		if timeout > 0 {
			p.httpClient = httpclient.New(timeout, p.logger)
		}
	}
}

// NewBraveProvider constructs a Brave search provider. The key may be empty;
// every search then degrades to no results.
func NewBraveProvider(apiKey string, opts ...BraveOption) *BraveProvider {
	logger := logging.NewComponentLogger("search-brave")
	p := &BraveProvider{
		apiKey:     apiKey,
		endpoint:   braveEndpoint,
		httpClient: httpclient.New(defaultSearchTimeout, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns up to count web results for the query. It never returns an
// error: configuration, transport, and decode failures all yield an empty
// slice so the caller can continue without search context.
func (p *BraveProvider) Search(ctx context.Context, query string, count int) []ports.SearchResult {
	if query == "" {
		return []ports.SearchResult{}
	}
	if p.apiKey == "" {
		p.logger.Info("No search API key configured, skipping search for %q", query)
		return []ports.SearchResult{}
	}
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	endpoint := p.endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.logger.Error("Failed to build search request: %v", err)
		return []ports.SearchResult{}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	started := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("Search request failed for %q: %v", query, err)
		return []ports.SearchResult{}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("Search returned status %d for %q", resp.StatusCode, query)
		return []ports.SearchResult{}
	}

	body, err := httpclient.ReadAllWithLimit(resp.Body, 4*1024*1024)
	if err != nil {
		p.logger.Error("Failed to read search response for %q: %v", query, err)
		return []ports.SearchResult{}
	}

	var decoded braveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		p.logger.Error("Failed to decode search response for %q: %v", query, err)
		return []ports.SearchResult{}
	}

	results := make([]ports.SearchResult, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, ports.SearchResult{
			Title:       r.Title,
			Description: r.Description,
			URL:         r.URL,
		})
	}

	p.logger.Debug("Search %q returned %d results in %v", query, len(results), time.Since(started))
	return results
}

var _ ports.SearchProvider = (*BraveProvider)(nil)
