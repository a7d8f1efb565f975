package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(Config{
		ID:       "test",
		Name:     "Test",
		Endpoint: srv.URL,
		APIKey:   "key",
	}, zap.NewNop())
	return p, srv
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "grok-4" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "resp-1",
			"model": "grok-4",
			"choices": []map[string]interface{}{{
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]interface{}{{
						"id":   "call-1",
						"type": "function",
						"function": map[string]string{
							"name":      "web_search",
							"arguments": `{"query":"latest go release"}`,
						},
					}},
				},
				"finish_reason": "tool_calls",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Model:    "grok-4",
		Messages: []Message{{Role: "user", Content: "search for go"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("tool name = %q", resp.ToolCalls[0].Function.Name)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestOpenAIChatEmptyChoices(t *testing.T) {
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})
	if _, err := p.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestOpenAIRetriesCapacityErrors(t *testing.T) {
	var calls atomic.Int32
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":"over capacity"}`, http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{
				"message": map[string]string{"role": "assistant", "content": "recovered"},
			}},
		})
	})

	start := time.Now()
	resp, err := p.Chat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("got %d calls, want 2", calls.Load())
	}
	// First backoff step is one second.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %v, want a backoff of at least 1s", elapsed)
	}
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	})

	if _, err := p.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("client error retried: %d calls", calls.Load())
	}
}

func TestOpenAISearchExtractsText(t *testing.T) {
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Tools []map[string]string `json:"tools"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Tools) != 1 || body.Tools[0]["type"] != "web_search" {
			t.Errorf("tools = %v", body.Tools)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": []map[string]interface{}{
				{"content": []map[string]string{{"text": ""}}},
				{"content": []map[string]string{{"text": "Go 1.25 is out."}}},
			},
		})
	})

	text, err := p.Search(context.Background(), &SearchRequest{
		Model:    "grok-4",
		Messages: []Message{{Role: "user", Content: "latest go release?"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Go 1.25 is out." {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIGenerateImage(t *testing.T) {
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://imgen.x.ai/img-1.png"}},
		})
	})

	url, err := p.GenerateImage(context.Background(), "grok-2-image", "a lighthouse")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://imgen.x.ai/img-1.png" {
		t.Errorf("url = %q", url)
	}
}

func TestOpenAIGenerateImageEmptyData(t *testing.T) {
	p, _ := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	})
	if _, err := p.GenerateImage(context.Background(), "m", "p"); err == nil {
		t.Fatal("expected error for empty image data")
	}
}
