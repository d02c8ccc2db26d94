package models

// Provider identifiers for the upstream AI services the engine talks to.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// ModelDescriptor is the static configuration for one upstream model.
// Descriptors are defined at process start and never change or persist.
type ModelDescriptor struct {
	// Key is the short identifier used throughout the engine, e.g. "gpt-4o-mini".
	Key string `json:"key"`

	// Provider is one of the Provider* constants.
	Provider string `json:"provider"`

	// FullName is the provider-qualified name, e.g. "openai/gpt-4o-mini".
	// Health lookups reconcile Key and FullName through the alias table.
	FullName string `json:"full_name"`

	// Deprecated models are never probed and always report unhealthy.
	Deprecated bool `json:"deprecated"`

	// ProbePrompt is the canned input used for health probes.
	ProbePrompt string `json:"-"`
}

// DefaultModelRegistry returns the built-in model set. The first entry per
// provider is that provider's preferred model.
func DefaultModelRegistry() []ModelDescriptor {
	return []ModelDescriptor{
		{Key: "gpt-4o-mini", Provider: ProviderOpenAI, FullName: "openai/gpt-4o-mini", ProbePrompt: "Reply with the single word OK."},
		{Key: "gpt-4o", Provider: ProviderOpenAI, FullName: "openai/gpt-4o", ProbePrompt: "Reply with the single word OK."},
		{Key: "gemini-2.0-flash", Provider: ProviderGemini, FullName: "gemini/gemini-2.0-flash", ProbePrompt: "Reply with the single word OK."},
		{Key: "gemini-1.5-flash", Provider: ProviderGemini, FullName: "gemini/gemini-1.5-flash", ProbePrompt: "Reply with the single word OK."},
		{Key: "gemini-1.5-pro", Provider: ProviderGemini, FullName: "gemini/gemini-1.5-pro", Deprecated: true, ProbePrompt: "Reply with the single word OK."},
		{Key: "claude-3-5-haiku", Provider: ProviderAnthropic, FullName: "anthropic/claude-3-5-haiku", ProbePrompt: "Reply with the single word OK."},
	}
}

// SinglePrompt mode candidate order: first healthy model wins, the list is
// walked in order and the head is attempted anyway when everything is down.
func DefaultCandidateOrder() []string {
	return []string{"gpt-4o-mini", "claude-3-5-haiku", "gemini-2.0-flash"}
}

// Multi-provider fan-out set: the primary model plus two distinct Gemini
// models, queried in parallel on elevated-tier runs.
func DefaultFanoutSet() []string {
	return []string{"gpt-4o-mini", "gemini-2.0-flash", "gemini-1.5-flash"}
}
