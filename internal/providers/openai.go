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

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to an OpenAI-style chat completions endpoint.
type OpenAIProvider struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

// OpenAIConfig holds construction settings for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // override for tests; defaults to the public API
	Timeout time.Duration
}

// NewOpenAIProvider creates the adapter. An empty API key is allowed: the
// adapter then fails every call with AUTH_MISSING instead of crashing the
// process at startup.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Invoke sends one chat completion request.
func (p *OpenAIProvider) Invoke(ctx context.Context, model, prompt string) (*Response, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindAuthMissing, Message: "OPENAI_API_KEY not configured"}
	}

	body, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var decoded openAIResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, transportError(p.Name(), fmt.Errorf("malformed response body: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindTransient, Message: "response contained no choices"}
	}

	text := decoded.Choices[0].Message.Content
	tokens := decoded.Usage.TotalTokens
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
