package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flightbot/internal/config"
	"flightbot/internal/domain"
	"flightbot/internal/provider"
)

const searchUserAgent = "flightbot/0.1"

// WebSearch queries the DuckDuckGo instant answer API (no key required).
type WebSearch struct {
	cfg    config.SearchConfig
	client *http.Client
	logger *slog.Logger
}

var _ domain.Tool = (*WebSearch)(nil)

func NewWebSearch(cfg config.SearchConfig, logger *slog.Logger) (*WebSearch, error) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}

	client := provider.SharedHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse search proxy URL: %w", err)
		}
		client.Transport.(*http.Transport).Proxy = http.ProxyURL(proxyURL)
	}

	return &WebSearch{cfg: cfg, client: client, logger: logger}, nil
}

func (t *WebSearch) Name() string { return "web_search" }
func (t *WebSearch) Description() string {
	return "Search the web for information. Returns result titles, links, and snippets. Use for current events, facts, or anything you're unsure about."
}

type searchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchReport struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// DuckDuckGo response types
type ddgResponse struct {
	Abstract      string     `json:"Abstract"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

func (t *WebSearch) Execute(ctx context.Context, req domain.ToolRequest) (domain.ToolResult, error) {
	var params searchParams
	if err := decodeArgs(req.Args, &params); err != nil {
		return domain.ErrorResult(err), nil
	}
	if params.Query == "" {
		return domain.ErrorResult(fmt.Errorf("missing argument: query")), nil
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = t.cfg.MaxResults
	}

	endpoint := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1&skip_disambig=1",
		url.QueryEscape(params.Query))

	resp, err := provider.DoWithRetry(ctx, t.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", searchUserAgent)
		return req, nil
	}, t.logger)
	if err != nil {
		return domain.ErrorResult(fmt.Errorf("search request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ErrorResult(fmt.Errorf("search returned HTTP %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrorResult(fmt.Errorf("read response: %w", err)), nil
	}

	var ddg ddgResponse
	if err := json.Unmarshal(body, &ddg); err != nil {
		return domain.ErrorResult(fmt.Errorf("parse response: %w", err)), nil
	}

	return domain.OKResult(buildSearchReport(params.Query, &ddg, maxResults)), nil
}

// buildSearchReport converts a DuckDuckGo instant answer into results: the
// abstract first when present, then related topics up to maxResults-1 more.
func buildSearchReport(query string, ddg *ddgResponse, maxResults int) searchReport {
	report := searchReport{Query: query, Results: []searchResult{}}

	if ddg.Abstract != "" {
		title := ddg.Heading
		if title == "" {
			title = "Summary"
		}
		report.Results = append(report.Results, searchResult{
			Title:   title,
			Link:    ddg.AbstractURL,
			Snippet: ddg.Abstract,
		})
	}

	budget := maxResults - 1
	for _, topic := range ddg.RelatedTopics {
		if budget <= 0 || len(report.Results) >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		report.Results = append(report.Results, searchResult{
			Title:   topicTitle(topic.Text),
			Link:    topic.FirstURL,
			Snippet: topic.Text,
		})
		budget--
	}

	return report
}

// topicTitle extracts the leading name from a related-topic text, which
// DuckDuckGo formats as "Name - description".
func topicTitle(text string) string {
	if title, _, ok := strings.Cut(text, " - "); ok {
		return title
	}
	return text
}
