package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGoClient is the keyless fallback engine, backed by the DuckDuckGo
// instant-answer API. Result quality is thinner than Tavily but it needs no
// credentials.
type DuckDuckGoClient struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewDuckDuckGoClient(logger *zap.Logger) *DuckDuckGoClient {
	return &DuckDuckGoClient{
		endpoint: duckDuckGoEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

type ddgResponse struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (d *DuckDuckGoClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	u := fmt.Sprintf("%s?q=%s&format=json&no_html=1", d.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build duckduckgo request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo search: unexpected status %d", resp.StatusCode)
	}

	var parsed ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	var results []Result
	if parsed.AbstractText != "" {
		results = append(results, Result{Title: parsed.Heading, URL: parsed.AbstractURL, Content: parsed.AbstractText})
	}
	for _, t := range parsed.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if t.Text == "" {
			continue
		}
		results = append(results, Result{Title: t.Text, URL: t.FirstURL, Content: t.Text})
	}
	d.logger.Debug("duckduckgo search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// NewProvider picks Tavily when an API key is configured, the keyless
// DuckDuckGo engine otherwise.
func NewProvider(tavilyAPIKey string, logger *zap.Logger) Provider {
	if tavilyAPIKey != "" {
		return NewTavilyClient(tavilyAPIKey, logger)
	}
	return NewDuckDuckGoClient(logger)
}
