package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/analyzer"
	"aivisibility/internal/models"
	"aivisibility/internal/providers"
	"aivisibility/internal/utils"
)

// Mode selects the fan-out behavior for one prompt.
type Mode string

const (
	// ModeSingleProvider calls one model, chosen by walking the candidate
	// list with health-aware fallthrough. Free tier.
	ModeSingleProvider Mode = "single-provider"

	// ModeMultiProvider fans out in parallel to the primary model plus two
	// Gemini models. Elevated tier.
	ModeMultiProvider Mode = "multi-provider"
)

const (
	maxAttempts    = 3
	backoffBase    = 1 * time.Second
	callTimeout    = 30 * time.Second
	promptInterval = 500 * time.Millisecond
)

// ProviderResolver maps model keys to adapters. Satisfied by
// providers.Registry.
type ProviderResolver interface {
	Resolve(nameOrKey string) (providers.Provider, models.ModelDescriptor, error)
}

// HealthView answers model availability questions. Satisfied by
// health.Monitor.
type HealthView interface {
	IsHealthy(nameOrKey string) bool
}

// UsageSink receives one audit record per provider call. Satisfied by the
// usage queue worker; nil disables emission.
type UsageSink interface {
	Record(ctx context.Context, rec *models.UsageRecord)
}

// PromptRunner drives one prompt through one or more providers with
// retry, backoff and health-aware fallback, and analyzes the answer.
type PromptRunner struct {
	resolver   ProviderResolver
	health     HealthView
	usage      UsageSink
	candidates []string
	fanout     []string
	logger     *utils.Logger

	// sleep is swapped out in tests so retries do not wall-clock wait.
	sleep func(time.Duration)

	// scanID tags usage records; set per run by the visibility orchestrator.
	scanID uuid.UUID
}

// NewPromptRunner wires a runner with the default candidate and fan-out
// sets.
func NewPromptRunner(resolver ProviderResolver, health HealthView, usage UsageSink) *PromptRunner {
	return &PromptRunner{
		resolver:   resolver,
		health:     health,
		usage:      usage,
		candidates: models.DefaultCandidateOrder(),
		fanout:     models.DefaultFanoutSet(),
		logger:     utils.NewLogger("prompt-runner"),
		sleep:      time.Sleep,
	}
}

// forScan returns a shallow copy tagged with the scan id for usage
// records.
func (r *PromptRunner) forScan(scanID uuid.UUID) *PromptRunner {
	copied := *r
	copied.scanID = scanID
	return &copied
}

// analysisInstruction wraps the rendered user query with the structured
// answer contract. Models that ignore it fall back to raw-text analysis.
func analysisInstruction(query string) string {
	return query + "\n\n" +
		"Answer the question, then respond ONLY with a JSON object of this shape " +
		"(no code fences): {\"description\": \"your full answer\", " +
		"\"citations\": [\"any URLs you would cite\"], " +
		"\"mentionsDomain\": <true if your answer references the business or its website>, " +
		"\"reasoning\": \"one sentence on why\"}"
}

// Run executes one prompt and always returns a result: provider failures
// are encoded in the result's Error field, never raised. One failed
// prompt never aborts a run.
func (r *PromptRunner) Run(ctx context.Context, spec models.PromptSpec, domain string, biz models.BusinessContext, mode Mode) models.AnalysisResult {
	rendered := spec.Render(analyzer.NormalizeDomain(domain), biz)
	prompt := analysisInstruction(rendered)

	if mode == ModeMultiProvider {
		return r.runMulti(ctx, spec, rendered, prompt, domain)
	}
	return r.runSingle(ctx, spec, rendered, prompt, domain)
}

// runSingle picks a model from the candidate list and retries transient
// failures with exponential backoff (1s, 2s, 4s).
func (r *PromptRunner) runSingle(ctx context.Context, spec models.PromptSpec, rendered, prompt, domain string) models.AnalysisResult {
	modelKey := r.pickCandidate()

	resp, err := r.invokeWithRetry(ctx, spec.ID, modelKey, prompt)
	if err != nil {
		pe := providers.AsProviderError("", err)
		r.logger.Warn("Prompt failed", "prompt", spec.ID, "model", modelKey, "kind", pe.Kind)
		return failedResult(spec, rendered, modelKey, pe)
	}

	res := analyzer.Analyze(resp.RawText, resp.Parsed, domain)
	result := models.AnalysisResult{
		PromptID:        spec.ID,
		Prompt:          rendered,
		Model:           modelKey,
		DomainMentioned: res.Mentioned,
		Score:           res.Score,
		Citations:       res.Citations,
		Confidence:      res.Confidence,
		TokensUsed:      resp.TokensEstimate,
	}
	if result.Score == models.ScoreAbsent && len(result.Citations) == 0 {
		recs, recTokens := r.fetchRecommendations(ctx, spec.ID, modelKey, rendered, domain)
		result.Recommendations = recs
		result.TokensUsed += recTokens
	}
	return result
}

// runMulti fans out to every model in the fan-out set and settles all
// branches: one provider's failure never cancels the others. The primary
// branch's structured answer is authoritative; citations are the
// de-duplicated union across branches that parsed.
func (r *PromptRunner) runMulti(ctx context.Context, spec models.PromptSpec, rendered, prompt, domain string) models.AnalysisResult {
	type branch struct {
		model string
		resp  *providers.Response
		err   error
	}

	branches := make([]branch, len(r.fanout))
	var wg sync.WaitGroup
	for i, modelKey := range r.fanout {
		wg.Add(1)
		go func(i int, modelKey string) {
			defer wg.Done()
			resp, err := r.invokeOnce(ctx, spec.ID, modelKey, prompt)
			branches[i] = branch{model: modelKey, resp: resp, err: err}
		}(i, modelKey)
	}
	wg.Wait()

	// The primary branch (index 0) is authoritative when it answered;
	// otherwise the first successful branch stands in.
	var basis *branch
	for i := range branches {
		if branches[i].err == nil {
			basis = &branches[i]
			break
		}
	}
	if basis == nil {
		pe := providers.AsProviderError("", branches[0].err)
		r.logger.Warn("All fan-out branches failed", "prompt", spec.ID)
		return failedResult(spec, rendered, branches[0].model, pe)
	}
	if branches[0].err == nil {
		basis = &branches[0]
	}

	res := analyzer.Analyze(basis.resp.RawText, basis.resp.Parsed, domain)

	// Union citations across every branch that returned a parsed answer.
	seen := make(map[string]bool, len(res.Citations))
	citations := make([]string, 0, len(res.Citations))
	for _, c := range res.Citations {
		if !seen[c] {
			seen[c] = true
			citations = append(citations, c)
		}
	}
	tokens := 0
	for _, b := range branches {
		if b.err != nil {
			continue
		}
		tokens += b.resp.TokensEstimate
		if b.model == basis.model || b.resp.Parsed == nil {
			continue
		}
		branchRes := analyzer.Analyze(b.resp.RawText, b.resp.Parsed, domain)
		for _, c := range branchRes.Citations {
			if !seen[c] {
				seen[c] = true
				citations = append(citations, c)
			}
		}
	}

	score, confidence, mentioned := res.Score, res.Confidence, res.Mentioned
	if len(citations) > 0 {
		score, confidence, mentioned = models.ScoreCited, models.ConfidenceHigh, true
	}

	var recommendations []string
	if score == models.ScoreAbsent && len(citations) == 0 {
		var recTokens int
		recommendations, recTokens = r.fetchRecommendations(ctx, spec.ID, basis.model, rendered, domain)
		tokens += recTokens
	}

	return models.AnalysisResult{
		PromptID:        spec.ID,
		Prompt:          rendered,
		Model:           basis.model,
		DomainMentioned: mentioned,
		Score:           score,
		Citations:       citations,
		Confidence:      confidence,
		Recommendations: recommendations,
		TokensUsed:      tokens,
	}
}

// recommendationInstruction asks for concrete actions when an answer
// surfaced no trace of the domain.
func recommendationInstruction(query, domain string) string {
	return fmt.Sprintf(
		"An AI assistant was asked: %q\nIts answer never referenced %s.\n"+
			"List 3 concrete actions the owners of %s could take so that AI assistants "+
			"surface their site for questions like this. "+
			"Respond ONLY with a JSON array of strings (no code fences).",
		query, domain, domain)
}

// fetchRecommendations requests improvement suggestions for a prompt that
// scored zero with no citations. Best effort: any failure leaves the
// result without recommendations, it never fails the prompt.
func (r *PromptRunner) fetchRecommendations(ctx context.Context, promptID, modelKey, rendered, domain string) ([]string, int) {
	instruction := recommendationInstruction(rendered, analyzer.NormalizeDomain(domain))
	resp, err := r.invokeOnce(ctx, promptID, modelKey, instruction)
	if err != nil {
		r.logger.Warn("Recommendation request failed", "prompt", promptID, "model", modelKey, "error", err)
		return nil, 0
	}

	var raw []string
	if err := json.Unmarshal([]byte(providers.StripCodeFence(resp.RawText)), &raw); err != nil {
		r.logger.Warn("Recommendation output not parseable", "prompt", promptID, "model", modelKey)
		return nil, resp.TokensEstimate
	}

	recs := make([]string, 0, len(raw))
	for _, rec := range raw {
		if rec = strings.TrimSpace(rec); rec != "" {
			recs = append(recs, rec)
		}
	}
	if len(recs) == 0 {
		return nil, resp.TokensEstimate
	}
	return recs, resp.TokensEstimate
}

// pickCandidate walks the ordered candidate list and returns the first
// healthy model. When every candidate is unhealthy the head of the list
// is attempted anyway: graceful degradation beats a guaranteed failure.
func (r *PromptRunner) pickCandidate() string {
	for _, key := range r.candidates {
		if r.health == nil || r.health.IsHealthy(key) {
			return key
		}
	}
	return r.candidates[0]
}

// invokeWithRetry retries TRANSIENT failures up to maxAttempts with
// exponential backoff. RATE_LIMITED, PERMANENT and AUTH_MISSING stop
// immediately; retrying those either wastes the quota window or can
// never succeed.
func (r *PromptRunner) invokeWithRetry(ctx context.Context, promptID, modelKey, prompt string) (*providers.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			r.sleep(backoffBase << (attempt - 1))
		}

		resp, err := r.invokeOnce(ctx, promptID, modelKey, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		pe := providers.AsProviderError("", err)
		if !pe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// invokeOnce performs a single provider call with the per-call timeout
// and emits a usage record.
func (r *PromptRunner) invokeOnce(ctx context.Context, promptID, modelKey, prompt string) (*providers.Response, error) {
	provider, desc, err := r.resolver.Resolve(modelKey)
	if err != nil {
		return nil, &providers.ProviderError{Kind: providers.KindPermanent, Message: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := provider.Invoke(callCtx, desc.Key, prompt)
	r.recordUsage(ctx, promptID, desc, resp, err)
	return resp, err
}

func (r *PromptRunner) recordUsage(ctx context.Context, promptID string, desc models.ModelDescriptor, resp *providers.Response, callErr error) {
	if r.usage == nil {
		return
	}
	rec := &models.UsageRecord{
		ID:        uuid.New(),
		ScanID:    r.scanID,
		RequestID: uuid.New(),
		Provider:  desc.Provider,
		ModelKey:  desc.Key,
		PromptID:  promptID,
		CreatedAt: time.Now(),
	}
	if resp != nil {
		rec.TokensEstimate = resp.TokensEstimate
		rec.ResponseTimeMS = int(resp.Latency.Milliseconds())
	}
	if callErr != nil {
		pe := providers.AsProviderError(desc.Provider, callErr)
		rec.ErrorKind = string(pe.Kind)
		rec.ErrorMessage = pe.Message
	}
	r.usage.Record(ctx, rec)
}

// failedResult encodes a provider failure as a zero-score entry.
func failedResult(spec models.PromptSpec, rendered, modelKey string, pe *providers.ProviderError) models.AnalysisResult {
	return models.AnalysisResult{
		PromptID:   spec.ID,
		Prompt:     rendered,
		Model:      modelKey,
		Score:      models.ScoreAbsent,
		Citations:  []string{},
		Confidence: models.ConfidenceLow,
		Error:      fmt.Sprintf("%s: %s", pe.Kind, pe.Message),
	}
}
