package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages endpoint.
type AnthropicProvider struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

// AnthropicConfig holds construction settings for the Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewAnthropicProvider creates the adapter; like the others it degrades to
// AUTH_MISSING errors when no key is configured.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke sends one messages request.
func (p *AnthropicProvider) Invoke(ctx context.Context, model, prompt string) (*Response, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindAuthMissing, Message: "ANTHROPIC_API_KEY not configured"}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: 1024,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(p.Name(), resp.StatusCode, string(respBody), resp.Header.Get("Retry-After"))
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, transportError(p.Name(), fmt.Errorf("malformed response body: %w", err))
	}

	var text string
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindTransient, Message: "response contained no text blocks"}
	}

	tokens := decoded.Usage.InputTokens + decoded.Usage.OutputTokens
	if tokens == 0 {
		tokens = estimateTokens(prompt + text)
	}

	return &Response{
		RawText:        text,
		Parsed:         ParseAnswer(text),
		TokensEstimate: tokens,
		Latency:        latency,
	}, nil
}
