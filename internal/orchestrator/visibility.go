package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/analyzer"
	"aivisibility/internal/models"
	"aivisibility/internal/utils"
)

// ErrInvalidURL is the one hard failure a run can surface: without a
// usable domain there is nothing to analyze. Everything downstream
// degrades instead of failing.
var ErrInvalidURL = errors.New("invalid or empty target URL")

// costPerThousandTokensUSD is a blended estimate across the providers in
// play. It is an indicator for the report, not billed truth.
const costPerThousandTokensUSD = 0.002

// Options configures one visibility run.
type Options struct {
	IsElevatedTier  bool
	BusinessContext models.BusinessContext

	// ScanID tags usage records; a zero value gets a fresh id.
	ScanID uuid.UUID
}

// Engine is the visibility run orchestrator: it selects the prompt set,
// dispatches each prompt through the prompt runner, and aggregates the
// report. The run is a linear pipeline with no retries of the whole run.
//
// There is no run-level cancellation beyond the caller's context: each
// provider call carries its own timeout, which bounds how long any single
// prompt can stall, but a run in progress finishes its remaining prompts.
type Engine struct {
	runner   *PromptRunner
	selector *PromptSelector
	logger   *utils.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewEngine wires the orchestrator.
func NewEngine(runner *PromptRunner, selector *PromptSelector) *Engine {
	return &Engine{
		runner:   runner,
		selector: selector,
		logger:   utils.NewLogger("visibility"),
		sleep:    time.Sleep,
	}
}

// RunVisibilityAnalysis drives the full pipeline:
// select prompts -> dispatch sequentially -> aggregate.
//
// Prompt failures are embedded as zero-score details with a warning; the
// run itself succeeds whenever the URL is usable.
func (e *Engine) RunVisibilityAnalysis(ctx context.Context, rawURL string, opts Options) (*models.VisibilityReport, error) {
	domain := analyzer.NormalizeDomain(rawURL)
	if domain == "" {
		return nil, ErrInvalidURL
	}

	scanID := opts.ScanID
	if scanID == uuid.Nil {
		scanID = uuid.New()
	}
	log := e.logger.With("scan", scanID.String(), "domain", domain)

	// SELECT_PROMPTS: guaranteed to yield a non-empty set.
	prompts := e.selector.Select(ctx, opts.IsElevatedTier, domain, opts.BusinessContext)
	log.Info("Prompts selected", "count", len(prompts), "category", prompts[0].Category)

	mode := ModeSingleProvider
	if opts.IsElevatedTier {
		mode = ModeMultiProvider
	}
	runner := e.runner.forScan(scanID)

	// DISPATCH_PROMPTS: sequential, with a courtesy pause between prompts
	// so a burst of calls does not trip provider-side quotas.
	details := make([]models.AnalysisResult, 0, len(prompts))
	var warnings []string
	for i, spec := range prompts {
		if i > 0 {
			e.sleep(promptInterval)
		}
		result := runner.Run(ctx, spec, domain, opts.BusinessContext, mode)
		details = append(details, result)
		if result.Error != "" {
			warnings = append(warnings, fmt.Sprintf("prompt %s failed: %s", spec.ID, result.Error))
		}
	}

	// AGGREGATE: fractional per-prompt scores are rounded here and only
	// here.
	report := aggregate(domain, details)
	report.Warnings = warnings

	log.Info("Run complete", "score", report.TotalScore, "max", report.MaxScore, "percentage", report.Percentage, "failed_prompts", len(warnings))
	return report, nil
}

func aggregate(domain string, details []models.AnalysisResult) *models.VisibilityReport {
	total := 0
	tokens := 0
	for _, d := range details {
		total += int(math.Round(d.Score))
		tokens += d.TokensUsed
	}

	maxScore := len(details) * 3
	percentage := 0
	if maxScore > 0 {
		percentage = int(math.Round(float64(total) / float64(maxScore) * 100))
	}

	return &models.VisibilityReport{
		Domain:     domain,
		TotalScore: total,
		MaxScore:   maxScore,
		Percentage: percentage,
		Details:    details,
		Metadata: models.ReportMetadata{
			TotalTokens:      tokens,
			EstimatedCostUSD: float64(tokens) / 1000 * costPerThousandTokensUSD,
		},
	}
}
