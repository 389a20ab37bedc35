package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/model"
)

func testClient(t *testing.T, baseURL string) *TavilyClient {
	t.Helper()
	cfg := model.DefaultConfig().Search
	cfg.APIKey = "tvly-test-key"
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 1000 // Tests must not wait on the limiter
	c, err := NewTavilyClient(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestSearch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("Expected path /search, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req["api_key"] != "tvly-test-key" {
			t.Errorf("Expected api_key in body, got %v", req["api_key"])
		}
		if req["search_depth"] != "advanced" {
			t.Errorf("Expected advanced depth, got %v", req["search_depth"])
		}
		if req["include_answer"] != true {
			t.Error("Expected include_answer true")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"query":  req["query"],
			"answer": "The claim is false.",
			"results": []map[string]any{
				{
					"title":          "Fact check: vaccines and autism",
					"url":            "https://example.org/factcheck",
					"content":        "<p>Multiple large studies found <b>no link</b>.</p>",
					"score":          0.97,
					"published_date": "2024-03-01",
				},
			},
		})
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.Search(context.Background(), "vaccines cause autism")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Content != "Multiple large studies found no link ." {
		t.Errorf("HTML should be stripped, got %q", resp.Results[0].Content)
	}
	if resp.Answer != "The claim is false." {
		t.Errorf("Unexpected answer: %q", resp.Answer)
	}
}

func TestSearch_APIErrorDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail": "rate limited"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.Search(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if resp == nil || len(resp.Results) != 0 {
		t.Errorf("Error must still return an empty response, got %+v", resp)
	}
}

func TestSearch_MalformedJSONDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	resp, err := c.Search(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error for malformed JSON")
	}
	if len(resp.Results) != 0 {
		t.Errorf("Expected empty results, got %v", resp.Results)
	}
}

func TestSearchFactCheck_ShapesQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotQuery, _ = req["query"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	if _, err := c.SearchFactCheck(context.Background(), "the moon is made of cheese"); err != nil {
		t.Fatalf("SearchFactCheck failed: %v", err)
	}
	want := fmt.Sprintf("fact check %d: the moon is made of cheese", time.Now().Year())
	if gotQuery != want {
		t.Errorf("Query shaping wrong: got %q, want %q", gotQuery, want)
	}
}

func TestNewTavilyClient_RequiresAPIKey(t *testing.T) {
	cfg := model.DefaultConfig().Search
	if _, err := NewTavilyClient(cfg, log.New(io.Discard)); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestFormatForLLM(t *testing.T) {
	resp := &model.WebSearchResponse{
		Query: "fact check 2025: test claim",
		Results: []model.WebSearchResult{
			{Title: "A", URL: "https://a.example", Content: "content a", Score: 0.9, PublishedDate: "2025-01-01"},
			{Title: "B", URL: "https://b.example", Content: "content b", Score: 0.5},
		},
		Answer: "Direct answer here.",
	}
	out := FormatForLLM(resp)
	for _, want := range []string{"--- Source 1 ---", "--- Source 2 ---", "https://a.example", "Date: 2025-01-01", "--- Direct Answer ---", "Direct answer here."} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted output missing %q:\n%s", want, out)
		}
	}

	if FormatForLLM(nil) != "" {
		t.Error("Nil response must format to empty string")
	}
	if FormatForLLM(&model.WebSearchResponse{Query: "q"}) != "" {
		t.Error("Empty results must format to empty string")
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"  spaced \n out  ", "spaced out"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"<script>alert(1)</script>safe", "alert(1) safe"},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
