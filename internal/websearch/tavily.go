// Package websearch queries the Tavily search API for live fact-checking
// context.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/ppiankov/verimem/internal/model"
)

// Domains excluded from every search. Social media snippets are noise for
// fact-checking.
var excludedDomains = []string{
	"reddit.com",
	"twitter.com",
	"facebook.com",
	"tiktok.com",
}

// TavilyClient searches the web through the Tavily REST API. Search
// failures degrade to an empty response so verification can proceed on
// memory evidence alone.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	depth      string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	now        func() time.Time
}

// NewTavilyClient creates a web search client
func NewTavilyClient(cfg model.SearchConfig, logger *log.Logger) (*TavilyClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Tavily API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	depth := cfg.Depth
	if depth == "" {
		depth = "advanced"
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &TavilyClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		depth:      depth,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.With("component", "websearch"),
		now:        time.Now,
	}, nil
}

type searchRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeAnswer  bool     `json:"include_answer"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

// Search runs a query and returns ranked results. Errors yield an empty
// response alongside the error.
func (c *TavilyClient) Search(ctx context.Context, query string) (*model.WebSearchResponse, error) {
	empty := &model.WebSearchResponse{Query: query, Results: []model.WebSearchResult{}}

	if err := c.limiter.Wait(ctx); err != nil {
		return empty, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(searchRequest{
		APIKey:         c.apiKey,
		Query:          query,
		SearchDepth:    c.depth,
		MaxResults:     c.maxResults,
		IncludeAnswer:  true,
		ExcludeDomains: excludedDomains,
	})
	if err != nil {
		return empty, fmt.Errorf("marshal search request: %w", err)
	}

	start := c.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("web search failed", "err", err)
		return empty, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("web search returned non-200", "status", resp.StatusCode)
		return empty, fmt.Errorf("search API status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return empty, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]model.WebSearchResult, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		results = append(results, model.WebSearchResult{
			Title:         StripHTML(item.Title),
			URL:           item.URL,
			Content:       StripHTML(item.Content),
			Score:         item.Score,
			PublishedDate: item.PublishedDate,
		})
	}

	return &model.WebSearchResponse{
		Query:      query,
		Results:    results,
		Answer:     parsed.Answer,
		SearchTime: c.now().Sub(start).Seconds(),
	}, nil
}

// SearchFactCheck shapes the query for fact-checking. The current year is
// added so time-sensitive claims surface recent coverage.
func (c *TavilyClient) SearchFactCheck(ctx context.Context, claim string) (*model.WebSearchResponse, error) {
	query := fmt.Sprintf("fact check %d: %s", c.now().Year(), claim)
	return c.Search(ctx, query)
}

// FormatForLLM renders a search response as prompt context
func FormatForLLM(resp *model.WebSearchResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web Search Results for: %q\n", resp.Query)
	fmt.Fprintf(&b, "Found %d sources:\n", len(resp.Results))
	for i, result := range resp.Results {
		fmt.Fprintf(&b, "\n--- Source %d ---\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", result.Title)
		fmt.Fprintf(&b, "URL: %s\n", result.URL)
		fmt.Fprintf(&b, "Relevance: %.2f\n", result.Score)
		if result.PublishedDate != "" {
			fmt.Fprintf(&b, "Date: %s\n", result.PublishedDate)
		}
		fmt.Fprintf(&b, "Content: %s", truncate(result.Content, 500))
	}
	if resp.Answer != "" {
		b.WriteString("\n\n--- Direct Answer ---\n")
		b.WriteString(resp.Answer)
	}
	return b.String()
}

// StripHTML drops markup from search snippets, keeping text content.
// Input that contains no tags passes through unchanged apart from
// whitespace normalization.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.WriteString(tokenizer.Token().Data)
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
