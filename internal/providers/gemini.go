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

// Gemini moved generateContent between API versions; the adapter walks an
// ordered list of endpoint templates and stops at the first response that
// is not a 404/410. Each variant is tried at most once per call.
var geminiEndpointTemplates = []string{
	"/v1beta/models/%s:generateContent",
	"/v1/models/%s:generateContent",
}

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider talks to the Google generative language API.
type GeminiProvider struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

// GeminiConfig holds construction settings for the Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewGeminiProvider creates the adapter; degrades to AUTH_MISSING errors
// when no key is configured.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Invoke sends one generateContent request, walking endpoint variants when
// the path 404s.
func (p *GeminiProvider) Invoke(ctx context.Context, model, prompt string) (*Response, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindAuthMissing, Message: "GEMINI_API_KEY not configured"}
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for _, tmpl := range geminiEndpointTemplates {
		url := p.baseURL + fmt.Sprintf(tmpl, model)
		resp, err := p.invokeOnce(ctx, url, body, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Only a missing path justifies trying the next variant.
		var pe *ProviderError
		if !asProviderErrorWithStatus(err, &pe) || (pe.StatusCode != http.StatusNotFound && pe.StatusCode != http.StatusGone) {
			return nil, err
		}
	}
	return nil, lastErr
}

func asProviderErrorWithStatus(err error, out **ProviderError) bool {
	pe, ok := err.(*ProviderError)
	if !ok {
		return false
	}
	*out = pe
	return true
}

func (p *GeminiProvider) invokeOnce(ctx context.Context, url string, body []byte, prompt string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

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

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, transportError(p.Name(), fmt.Errorf("malformed response body: %w", err))
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindTransient, Message: "response contained no candidates"}
	}

	var text string
	for _, part := range decoded.Candidates[0].Content.Parts {
		text += part.Text
	}

	tokens := decoded.UsageMetadata.TotalTokenCount
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
