package ports

import "context"

// SearchResult is one normalized web-search hit. Fields are never null
// upstream-absent values collapse to the empty string so downstream prompt
// formatting stays total.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchProvider wraps a web-search API.
//
// Implementations are fail-open: a provider outage, non-2xx status, or decode
// failure yields an empty result slice and a nil error, so callers cannot
// distinguish "search failed" from "nothing found". A search outage must not
// block task execution.
type SearchProvider interface {
	Search(ctx context.Context, query string, count int) []SearchResult
}
