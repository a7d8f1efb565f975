package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestAnthropicChatLiftsSystemMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "key" {
			t.Errorf("api key header = %q", got)
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.System != "You are snark." {
			t.Errorf("system = %q, want it lifted out of messages", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxTokens != 4096 {
			t.Errorf("max tokens = %d, want default 4096", req.MaxTokens)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "msg-1",
			"model": "claude-sonnet",
			"content": []map[string]string{
				{"type": "text", "text": "hello "},
				{"type": "text", "text": "there"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 7, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider(Config{ID: "anthropic", Endpoint: srv.URL, APIKey: "key"}, zap.NewNop())
	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model: "claude-sonnet",
		Messages: []Message{
			{Role: "system", Content: "You are snark."},
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello there" {
		t.Errorf("content = %q, want text blocks joined", resp.Content)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestAnthropicUnsupportedOperations(t *testing.T) {
	p := NewAnthropicProvider(Config{ID: "anthropic"}, zap.NewNop())

	if _, err := p.Search(context.Background(), &SearchRequest{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Search err = %v, want ErrUnsupported", err)
	}
	if _, err := p.GenerateImage(context.Background(), "m", "p"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("GenerateImage err = %v, want ErrUnsupported", err)
	}
}
