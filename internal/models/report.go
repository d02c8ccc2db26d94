package models

// Confidence tiers for a per-prompt analysis.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Per-prompt score values. The half-step is deliberate: a prompt whose
// answer mentions the domain in the opening sentence scores 2.5, and the
// fraction is only rounded away when summing into the report total.
const (
	ScoreCited          = 3.0
	ScoreMentioned      = 2.0
	ScoreMentionedEarly = 2.5
	ScoreAbsent         = 0.0
)

// AnalysisResult is the outcome of running one prompt. A provider failure
// is encoded here (zero score, Error populated) rather than raised.
type AnalysisResult struct {
	PromptID        string   `json:"prompt_id"`
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	DomainMentioned bool     `json:"domain_mentioned"`
	Score           float64  `json:"score"`
	Citations       []string `json:"citations"`
	Confidence      string   `json:"confidence"`
	Recommendations []string `json:"recommendations,omitempty"`
	Error           string   `json:"error,omitempty"`
	TokensUsed      int      `json:"tokens_used"`
}

// ReportMetadata aggregates run-level accounting.
type ReportMetadata struct {
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// VisibilityReport is the final aggregate handed back to the caller. The
// engine produces it as a value object; the scan layer owns persistence.
type VisibilityReport struct {
	Domain     string           `json:"domain"`
	TotalScore int              `json:"total_score"`
	MaxScore   int              `json:"max_score"`
	Percentage int              `json:"percentage"`
	Details    []AnalysisResult `json:"details"`
	Metadata   ReportMetadata   `json:"metadata"`
	Warnings   []string         `json:"warnings,omitempty"`
}
