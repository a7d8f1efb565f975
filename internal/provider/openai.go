package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible
// APIs, including xAI's. The Search and GenerateImage operations use the
// /responses and /images/generations endpoints respectively.
type OpenAIProvider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.x.ai/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

// Chat sends a non-streaming chat request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var oaiResp openAIChatResponse
	err := p.postRetry(ctx, "/chat/completions", req, &oaiResp)
	if err != nil {
		return nil, err
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from provider")
	}
	choice := oaiResp.Choices[0]
	return &ChatResponse{
		ID:           oaiResp.ID,
		Model:        oaiResp.Model,
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// Search sends a responses-API request with the provider's web_search tool
// enabled and returns the synthesized text.
func (p *OpenAIProvider) Search(ctx context.Context, req *SearchRequest) (string, error) {
	type inputMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	input := make([]inputMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		input = append(input, inputMsg{Role: m.Role, Content: m.Content})
	}
	body := map[string]interface{}{
		"model": req.Model,
		"input": input,
		"tools": []map[string]string{{"type": "web_search"}},
	}

	var resp openAIResponsesResponse
	if err := p.postRetry(ctx, "/responses", body, &resp); err != nil {
		return "", err
	}
	for _, item := range resp.Output {
		for _, block := range item.Content {
			if block.Text != "" {
				return block.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no text output in search response")
}

// GenerateImage produces one image and returns its URL.
func (p *OpenAIProvider) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	body := map[string]string{"model": model, "prompt": prompt}
	var resp openAIImageResponse
	if err := p.postRetry(ctx, "/images/generations", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("no image in response")
	}
	return resp.Data[0].URL, nil
}

// HealthCheck verifies the provider is reachable.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.config.Endpoint+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check status %d", resp.StatusCode)
	}
	return nil
}

const maxRetries = 3

// postRetry posts JSON and decodes the response, retrying capacity errors
// with a short backoff (1s, 3s, 5s).
func (p *OpenAIProvider) postRetry(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(2*attempt-1) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = p.postOnce(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isCapacityError(lastErr) {
			return lastErr
		}
		p.logger.Warn("provider over capacity, retrying",
			zap.String("path", path), zap.Int("attempt", attempt+1))
	}
	return lastErr
}

func (p *OpenAIProvider) postOnce(ctx context.Context, path string, payload []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isCapacityError reports whether an error looks like a transient capacity
// failure worth retrying.
func isCapacityError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "API error 503") ||
		strings.Contains(s, "API error 429") ||
		strings.Contains(strings.ToLower(s), "capacity")
}

// openAI-specific response types
type openAIChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
}

type openAIChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openAIResponsesResponse struct {
	Output []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

type openAIImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}
