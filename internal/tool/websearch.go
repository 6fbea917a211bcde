package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// WebSearchConfig configures the Tavily web search adapter.
type WebSearchConfig struct {
	APIKey     string
	MaxResults int
	Endpoint   string
	HTTPClient *http.Client
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// NewWebSearch returns the Tavily-backed web search tool.
func NewWebSearch(cfg WebSearchConfig) *Tool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tavilyEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Tool{
		Name: "tavily_search",
		Description: "Search the web for current information, news, and recent events. " +
			"Use for anything time-sensitive that an encyclopedia would not cover.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			return searchTavily(ctx, cfg, query)
		},
	}
}

func searchTavily(ctx context.Context, cfg WebSearchConfig, query string) (string, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        cfg.APIKey,
		Query:         query,
		MaxResults:    cfg.MaxResults,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("web search is rate limited, try again shortly")
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("web search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}

	if result.Answer == "" && len(result.Results) == 0 {
		return "No web results found for this query. Try different keywords.", nil
	}

	var b strings.Builder
	if result.Answer != "" {
		b.WriteString("Answer: ")
		b.WriteString(result.Answer)
		b.WriteString("\n\n")
	}
	for i, r := range result.Results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "Title: %s\nURL: %s\nContent: %s\n", r.Title, r.URL, truncate(r.Content, 600))
	}
	return b.String(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
