package providers

import (
	"fmt"
	"time"

	"aivisibility/internal/models"
)

// Registry resolves model keys to adapters and owns the alias table that
// reconciles short keys with provider-qualified names. Built once at
// process start; read-only afterwards.
type Registry struct {
	providers map[string]Provider
	models    map[string]models.ModelDescriptor
	order     []string          // registration order, for listing
	aliases   map[string]string // short key <-> full name, both directions
}

// RegistryConfig carries the credentials and overrides for adapter
// construction. Empty keys are allowed; the matching provider then errors
// with AUTH_MISSING on every call rather than crashing the process.
type RegistryConfig struct {
	OpenAIKey    string
	GeminiKey    string
	AnthropicKey string

	// BaseURL overrides, used by tests to point adapters at stubs.
	OpenAIBaseURL    string
	GeminiBaseURL    string
	AnthropicBaseURL string

	RequestTimeout time.Duration
	Models         []models.ModelDescriptor
}

// NewRegistry builds the registry and its bidirectional alias table from
// the model set (DefaultModelRegistry when none given).
func NewRegistry(cfg RegistryConfig) *Registry {
	descriptors := cfg.Models
	if len(descriptors) == 0 {
		descriptors = models.DefaultModelRegistry()
	}

	r := &Registry{
		providers: map[string]Provider{
			models.ProviderOpenAI:    NewOpenAIProvider(OpenAIConfig{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL, Timeout: cfg.RequestTimeout}),
			models.ProviderGemini:    NewGeminiProvider(GeminiConfig{APIKey: cfg.GeminiKey, BaseURL: cfg.GeminiBaseURL, Timeout: cfg.RequestTimeout}),
			models.ProviderAnthropic: NewAnthropicProvider(AnthropicConfig{APIKey: cfg.AnthropicKey, BaseURL: cfg.AnthropicBaseURL, Timeout: cfg.RequestTimeout}),
		},
		models:  make(map[string]models.ModelDescriptor, len(descriptors)),
		aliases: make(map[string]string, len(descriptors)*2),
	}

	for _, d := range descriptors {
		r.models[d.Key] = d
		r.order = append(r.order, d.Key)
		r.aliases[d.Key] = d.FullName
		r.aliases[d.FullName] = d.Key
	}

	return r
}

// Resolve maps a model key or provider-qualified name to its adapter and
// descriptor.
func (r *Registry) Resolve(nameOrKey string) (Provider, models.ModelDescriptor, error) {
	key := r.CanonicalKey(nameOrKey)
	desc, ok := r.models[key]
	if !ok {
		return nil, models.ModelDescriptor{}, fmt.Errorf("unknown model %q", nameOrKey)
	}
	provider, ok := r.providers[desc.Provider]
	if !ok {
		return nil, models.ModelDescriptor{}, fmt.Errorf("no adapter for provider %q", desc.Provider)
	}
	return provider, desc, nil
}

// CanonicalKey normalizes a short key or full name to the short key. Names
// outside the registry pass through unchanged so callers can still report
// on them.
func (r *Registry) CanonicalKey(nameOrKey string) string {
	if _, ok := r.models[nameOrKey]; ok {
		return nameOrKey
	}
	if alias, ok := r.aliases[nameOrKey]; ok {
		if _, ok := r.models[alias]; ok {
			return alias
		}
	}
	return nameOrKey
}

// Models lists descriptors in registration order.
func (r *Registry) Models() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.models[key])
	}
	return out
}

// ProviderByName returns the adapter for a provider identifier.
func (r *Registry) ProviderByName(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
