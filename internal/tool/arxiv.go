package tool

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const arxivEndpoint = "http://export.arxiv.org/api/query"

// ArxivConfig configures the arXiv paper search adapter.
type ArxivConfig struct {
	MaxResults int
	Endpoint   string
	HTTPClient *http.Client
}

// arXiv serves Atom feeds; only the fields we render are mapped.
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// NewArxivSearch returns the arXiv academic-paper search tool.
func NewArxivSearch(cfg ArxivConfig) *Tool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 2
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = arxivEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Tool{
		Name: "arxiv_search",
		Description: "Search arXiv for academic papers on a topic. " +
			"Use for scientific research, academic papers, and technical topics.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query string, e.g. \"small language models 2024\"",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			return searchArxiv(ctx, cfg, query)
		},
	}
}

func searchArxiv(ctx context.Context, cfg ArxivConfig, query string) (string, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", cfg.MaxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create arXiv request: %w", err)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("arXiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// arXiv throttles aggressively; surface a retry hint instead of raw status.
		return "", fmt.Errorf("arXiv is rate limiting requests right now, try again in 30 seconds or use a more specific query")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arXiv returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read arXiv response: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return "", fmt.Errorf("failed to parse arXiv response: %w", err)
	}

	if len(feed.Entries) == 0 {
		return "No papers found for this query. Try different keywords.", nil
	}

	blocks := make([]string, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		blocks = append(blocks, formatArxivEntry(entry))
	}
	return strings.Join(blocks, "\n---\n"), nil
}

func formatArxivEntry(entry arxivEntry) string {
	summary := strings.Join(strings.Fields(entry.Summary), " ")
	summary = truncate(summary, 600)

	names := make([]string, 0, 3)
	for i, a := range entry.Authors {
		if i >= 3 {
			break
		}
		names = append(names, a.Name)
	}

	published := entry.Published
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		published = t.Format("2006-01-02")
	}

	return fmt.Sprintf("Title: %s\nAuthors: %s\nPublished: %s\nSummary: %s\nURL: %s\n",
		strings.TrimSpace(entry.Title),
		strings.Join(names, ", "),
		published,
		summary,
		strings.TrimSpace(entry.ID),
	)
}
