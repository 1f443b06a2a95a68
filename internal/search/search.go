package search

import "context"

// Result is one ranked search hit. Results are ephemeral: they live only for
// the interview turn that requested them and are never persisted.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider returns a small ranked list of results for a text query.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearchFunc adapts a function to a Provider for tests.
type SearchFunc func(ctx context.Context, query string, maxResults int) ([]Result, error)

func (f SearchFunc) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return f(ctx, query, maxResults)
}
