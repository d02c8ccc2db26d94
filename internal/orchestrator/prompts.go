package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aivisibility/internal/models"
	"aivisibility/internal/providers"
	"aivisibility/internal/utils"
)

// Number of prompts generated for elevated-tier runs.
const customPromptCount = 10

// defaultPromptSpecs is the built-in query set used for free-tier runs and
// as the guaranteed fallback when custom generation fails. Pure string
// templating; selection from this set can never fail.
func defaultPromptSpecs() []models.PromptSpec {
	return []models.PromptSpec{
		{ID: "default-1", Template: "What do you know about {brand}? Describe what they do and link to their website if you know it.", Category: models.PromptCategoryDefault},
		{ID: "default-2", Template: "Recommend some trustworthy resources about {topic}. Include links where possible.", Category: models.PromptCategoryDefault},
		{ID: "default-3", Template: "Describe {domain}. What is the site about and who runs it?", Category: models.PromptCategoryDefault},
	}
}

// PromptSelector implements the two-stage prompt pipeline: try to generate
// business-specific prompts with a model, fall back to the static
// templates on any failure. The fallback triggers (provider error,
// timeout, malformed output, empty set) are enumerated in tryGenerate,
// not hidden behind a catch-all. A usable-but-short list is kept as is:
// a few tailored prompts beat the generic defaults.
type PromptSelector struct {
	resolver       ProviderResolver
	generatorModel string
	timeout        time.Duration
	logger         *utils.Logger
}

// NewPromptSelector builds a selector that generates prompts with the
// given model (the primary candidate by default).
func NewPromptSelector(resolver ProviderResolver, generatorModel string) *PromptSelector {
	if generatorModel == "" {
		generatorModel = models.DefaultCandidateOrder()[0]
	}
	return &PromptSelector{
		resolver:       resolver,
		generatorModel: generatorModel,
		timeout:        20 * time.Second,
		logger:         utils.NewLogger("prompts"),
	}
}

// Select returns the prompt set for a run. Elevated-tier callers get
// generated prompts when generation succeeds; everyone else (and every
// failed generation) gets the defaults. Select itself never fails.
func (s *PromptSelector) Select(ctx context.Context, elevated bool, domain string, biz models.BusinessContext) []models.PromptSpec {
	if !elevated {
		return defaultPromptSpecs()
	}

	specs, err := s.tryGenerate(ctx, domain, biz)
	if err != nil {
		s.logger.Warn("Custom prompt generation failed, using defaults", "domain", domain, "error", err)
		return defaultPromptSpecs()
	}
	return specs
}

// tryGenerate asks a model for business-specific queries. Every failure
// mode returns an error; the caller decides the fallback.
func (s *PromptSelector) tryGenerate(ctx context.Context, domain string, biz models.BusinessContext) ([]models.PromptSpec, error) {
	provider, desc, err := s.resolver.Resolve(s.generatorModel)
	if err != nil {
		return nil, fmt.Errorf("resolve generator model: %w", err)
	}

	brand := biz.BrandName
	if brand == "" {
		brand = domain
	}
	industry := biz.Industry
	if industry == "" {
		industry = "its industry"
	}

	prompt := fmt.Sprintf(
		"You are helping measure how visible a business is to AI assistants.\n"+
			"Business: %s\nWebsite: %s\nIndustry: %s\nSummary: %s\n\n"+
			"Write %d distinct questions a potential customer might ask an AI assistant "+
			"where this business could plausibly come up. Do not name the business in the questions.\n"+
			"Respond with a JSON array of strings only.",
		brand, domain, industry, biz.BrandSummary, customPromptCount,
	)

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := provider.Invoke(genCtx, desc.Key, prompt)
	if err != nil {
		return nil, fmt.Errorf("generator call: %w", err)
	}

	var questions []string
	cleaned := providers.StripCodeFence(resp.RawText)
	if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
		return nil, fmt.Errorf("malformed generator output: %w", err)
	}

	var specs []models.PromptSpec
	for i, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		specs = append(specs, models.PromptSpec{
			ID:       fmt.Sprintf("custom-%d", i+1),
			Template: q,
			Category: models.PromptCategoryCustom,
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("generator returned no usable questions")
	}
	return specs, nil
}
