package normalize

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/verimem/internal/model"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testNormalizer(t *testing.T, baseURL string) *Normalizer {
	t.Helper()
	cfg := model.DefaultConfig().LLM
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	n, err := NewNormalizer(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Failed to create normalizer: %v", err)
	}
	return n
}

func TestNormalize_Success(t *testing.T) {
	server := chatServer(t, `{"normalized": "vaccines cause autism in children", "entities": ["vaccines", "autism", "children"], "temporal": null}`)
	defer server.Close()

	n := testNormalizer(t, server.URL)
	claim, err := n.Normalize(context.Background(), "They say vaccines might cause autism in children according to some studies")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if claim.NormalizedText != "vaccines cause autism in children" {
		t.Errorf("Unexpected normalized text: %q", claim.NormalizedText)
	}
	if len(claim.Entities) != 3 {
		t.Errorf("Expected 3 entities, got %v", claim.Entities)
	}
	if claim.OriginalText == "" {
		t.Error("Original text must be preserved")
	}
	if claim.SourceType != "text" {
		t.Errorf("Unexpected source type: %q", claim.SourceType)
	}
}

func TestNormalize_StripsMarkdownFences(t *testing.T) {
	server := chatServer(t, "```json\n{\"normalized\": \"the earth is round\", \"entities\": [\"earth\"], \"temporal\": \"\"}\n```")
	defer server.Close()

	n := testNormalizer(t, server.URL)
	claim, err := n.Normalize(context.Background(), "The Earth is round!!!")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if claim.NormalizedText != "the earth is round" {
		t.Errorf("Unexpected normalized text: %q", claim.NormalizedText)
	}
}

func TestNormalize_MalformedJSONFallsBack(t *testing.T) {
	server := chatServer(t, "Sorry, I cannot produce JSON for that.")
	defer server.Close()

	n := testNormalizer(t, server.URL)
	claim, err := n.Normalize(context.Background(), "  5G towers spread viruses  ")
	if err == nil {
		t.Fatal("Expected error for unparseable output")
	}
	if claim.NormalizedText != "5G towers spread viruses" {
		t.Errorf("Fallback must be trimmed raw text, got %q", claim.NormalizedText)
	}
	if claim.Entities == nil || len(claim.Entities) != 0 {
		t.Errorf("Fallback entities must be empty, got %v", claim.Entities)
	}
}

func TestNormalize_APIErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	n := testNormalizer(t, server.URL)
	claim, err := n.Normalize(context.Background(), "water is wet")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if claim.NormalizedText != "water is wet" {
		t.Errorf("Fallback must carry the raw claim, got %q", claim.NormalizedText)
	}
}

func TestNewNormalizer_RequiresAPIKey(t *testing.T) {
	cfg := model.DefaultConfig().LLM
	if _, err := NewNormalizer(cfg, log.New(io.Discard)); err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\": 1}", `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  \n```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
