package models

import "strings"

// Prompt categories.
const (
	PromptCategoryDefault = "default"
	PromptCategoryCustom  = "custom"
)

// PromptSpec is one test query. Immutable once selected for a run.
type PromptSpec struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	Category string `json:"category"`
}

// BusinessContext carries the caller-supplied brand metadata used for
// prompt templating and custom prompt generation.
type BusinessContext struct {
	BrandName    string `json:"brand_name"`
	Industry     string `json:"industry"`
	BrandSummary string `json:"brand_summary"`
}

// Render substitutes the {domain}, {brand} and {topic} placeholders.
// Pure string templating, guaranteed to succeed.
func (p PromptSpec) Render(domain string, biz BusinessContext) string {
	brand := biz.BrandName
	if brand == "" {
		brand = domain
	}
	topic := biz.Industry
	if topic == "" {
		topic = "its industry"
	}

	r := strings.NewReplacer(
		"{domain}", domain,
		"{brand}", brand,
		"{topic}", topic,
	)
	return r.Replace(p.Template)
}
