package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure for the orchestrator's retry policy.
type ErrorKind string

const (
	// KindAuthMissing means no credential is configured for the provider.
	// Fatal for that provider only; the process keeps running.
	KindAuthMissing ErrorKind = "AUTH_MISSING"

	// KindRateLimited means the provider returned 429. Retryable after the
	// hinted delay (default 60s when the provider gives none).
	KindRateLimited ErrorKind = "RATE_LIMITED"

	// KindTransient covers network failures, 5xx and overload responses.
	// Retryable immediately with backoff.
	KindTransient ErrorKind = "TRANSIENT"

	// KindPermanent covers 401/403/404/410 and malformed model ids.
	// Never retried.
	KindPermanent ErrorKind = "PERMANENT"
)

// DefaultRateLimitBackoff is the retry-after hint used when a 429 response
// carries no Retry-After header.
const DefaultRateLimitBackoff = 60 * time.Second

// ProviderError is the normalized failure surfaced by every adapter.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// Retryable reports whether the orchestrator may retry immediately
// (with backoff). Rate limits are retryable too, but only after the
// RetryAfter hint, which the orchestrator handles separately.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindTransient
}

// AsProviderError unwraps err into a *ProviderError, or wraps unknown
// errors as TRANSIENT so the caller always has a classified failure.
func AsProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Kind: KindTransient, Message: err.Error()}
}

// ParsedAnswer is the structured payload the engine asks models to emit.
type ParsedAnswer struct {
	Description    string   `json:"description"`
	Citations      []string `json:"citations"`
	MentionsDomain bool     `json:"mentionsDomain"`
	Reasoning      string   `json:"reasoning,omitempty"`
}

// Response is the normalized result of one model call. Parsed is nil when
// the structured parse failed; that downgrade is not an error.
type Response struct {
	RawText        string
	Parsed         *ParsedAnswer
	TokensEstimate int
	Latency        time.Duration
}

// Provider is implemented by each upstream adapter. Adapters encapsulate
// one wire protocol and auth scheme; they never retry internally (the
// orchestrator owns retries), except the Gemini adapter's endpoint-variant
// walk for a single logical call.
type Provider interface {
	// Name returns the provider identifier (openai, gemini, anthropic).
	Name() string

	// Invoke sends one prompt to one model and returns the normalized
	// response. The context carries the per-call deadline.
	Invoke(ctx context.Context, model, prompt string) (*Response, error)
}

// classifyStatus maps an HTTP status to the error taxonomy.
func classifyStatus(provider string, status int, body string, retryAfter string) *ProviderError {
	msg := strings.TrimSpace(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}

	switch {
	case status == http.StatusTooManyRequests:
		backoff := DefaultRateLimitBackoff
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			backoff = time.Duration(secs) * time.Second
		}
		return &ProviderError{Provider: provider, Kind: KindRateLimited, StatusCode: status, RetryAfter: backoff, Message: msg}
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusNotFound, status == http.StatusGone:
		return &ProviderError{Provider: provider, Kind: KindPermanent, StatusCode: status, Message: msg}
	case status == http.StatusServiceUnavailable,
		strings.Contains(strings.ToLower(msg), "overloaded"):
		return &ProviderError{Provider: provider, Kind: KindTransient, StatusCode: status, Message: msg}
	case status >= 500:
		return &ProviderError{Provider: provider, Kind: KindTransient, StatusCode: status, Message: msg}
	default:
		return &ProviderError{Provider: provider, Kind: KindPermanent, StatusCode: status, Message: msg}
	}
}

// transportError wraps a network-level failure as TRANSIENT.
func transportError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTransient, Message: err.Error()}
}

// estimateTokens is the fallback when a provider response carries no usage
// block. Four characters per token is the usual rough cut.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// newHTTPClient builds the shared transport configuration for adapters.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
