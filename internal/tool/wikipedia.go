package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

// WikipediaConfig configures the encyclopedia lookup adapter.
type WikipediaConfig struct {
	MaxResults  int
	ExtractSize int
	Endpoint    string
	HTTPClient  *http.Client
}

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			Title  string `json:"title"`
			PageID int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

type wikiExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// NewWikipedia returns the Wikipedia encyclopedia lookup tool.
func NewWikipedia(cfg WikipediaConfig) *Tool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	if cfg.ExtractSize <= 0 {
		cfg.ExtractSize = 1000
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = wikipediaEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Tool{
		Name: "wikipedia",
		Description: "Look up general knowledge, definitions, and historical facts " +
			"on Wikipedia. Use for stable encyclopedic information, not current events.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Topic or question to look up",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			return searchWikipedia(ctx, cfg, query)
		},
	}
}

func searchWikipedia(ctx context.Context, cfg WikipediaConfig, query string) (string, error) {
	titles, err := wikiSearch(ctx, cfg, query)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "No Wikipedia articles found for this query. Try different keywords.", nil
	}

	var blocks []string
	for _, title := range titles {
		extract, err := wikiExtract(ctx, cfg, title)
		if err != nil {
			return "", err
		}
		if extract == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Page: %s\nSummary: %s\n", title, truncate(extract, cfg.ExtractSize)))
	}
	if len(blocks) == 0 {
		return "No Wikipedia articles found for this query. Try different keywords.", nil
	}
	return strings.Join(blocks, "\n---\n"), nil
}

func wikiSearch(ctx context.Context, cfg WikipediaConfig, query string) ([]string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", cfg.MaxResults))
	params.Set("format", "json")

	var result wikiSearchResponse
	if err := wikiGet(ctx, cfg, params, &result); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(result.Query.Search))
	for _, s := range result.Query.Search {
		titles = append(titles, s.Title)
	}
	return titles, nil
}

func wikiExtract(ctx context.Context, cfg WikipediaConfig, title string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("titles", title)
	params.Set("format", "json")

	var result wikiExtractResponse
	if err := wikiGet(ctx, cfg, params, &result); err != nil {
		return "", err
	}

	for _, page := range result.Query.Pages {
		return strings.TrimSpace(page.Extract), nil
	}
	return "", nil
}

func wikiGet(ctx context.Context, cfg WikipediaConfig, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create Wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", "research-agent/1.0")

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("Wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Wikipedia returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Wikipedia response: %w", err)
	}
	return nil
}
