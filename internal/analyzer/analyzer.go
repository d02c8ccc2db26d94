// Package analyzer decides whether a model answer mentions or cites a
// target domain and turns that into a visibility score. Analysis is a
// pure function: identical inputs always yield identical results, and
// nothing here performs I/O.
package analyzer

import (
	"net/url"
	"regexp"
	"strings"

	"aivisibility/internal/models"
	"aivisibility/internal/providers"
)

// Result is the outcome of analyzing one response against one domain.
type Result struct {
	Mentioned  bool
	Score      float64
	Citations  []string
	Confidence string
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// NormalizeDomain reduces a URL or domain string to a bare lowercase host:
// scheme, "www." prefix, path and trailing slash are stripped.
func NormalizeDomain(target string) string {
	d := strings.TrimSpace(strings.ToLower(target))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if idx := strings.IndexAny(d, "/?#"); idx >= 0 {
		d = d[:idx]
	}
	return strings.TrimSuffix(d, "/")
}

// domainVariants returns the substrings that count as a textual mention of
// the domain: the domain itself, its www form, and the spoken forms models
// produce when avoiding bare URLs ("example com", "example dot com").
func domainVariants(domain string) []string {
	return []string{
		domain,
		"www." + domain,
		strings.ReplaceAll(domain, ".", " "),
		strings.ReplaceAll(domain, ".", " dot "),
	}
}

// hostMatchesDomain guards against partial and subdomain mismatches in
// both directions: "blog.example.com" matches "example.com" and vice
// versa.
func hostMatchesDomain(host, domain string) bool {
	if host == "" || domain == "" {
		return false
	}
	return strings.Contains(host, domain) || strings.Contains(domain, host)
}

// citationHost extracts the normalized host from a citation URL. Bare
// domains without a scheme are accepted too.
func citationHost(citation string) string {
	raw := strings.TrimSpace(citation)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return NormalizeDomain(citation)
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// containsVariant reports whether any domain variant appears in text
// (already lowercased by the caller).
func containsVariant(text string, variants []string) bool {
	for _, v := range variants {
		if v != "" && strings.Contains(text, v) {
			return true
		}
	}
	return false
}

// firstSentence splits on sentence punctuation and returns the opening
// segment.
func firstSentence(text string) string {
	if idx := strings.IndexAny(text, ".!?"); idx >= 0 {
		return text[:idx]
	}
	return text
}

// Analyze scores one model response against the target domain.
//
// With a structured answer, the parsed citations are filtered by host
// match, mentionsDomain is authoritative, and the description text is
// additionally scanned for domain variants. Without one (structured parse
// failed upstream), URLs are regex-extracted from the raw text and the
// whole lowercased text is scanned for variants.
//
// Scoring: any matching citation is a 3 with high confidence; a bare
// mention is a 2 with medium confidence, upgraded to 2.5 when the domain
// appears in the opening sentence; otherwise 0 with low confidence. The
// half-step is preserved here and rounded only at aggregation.
func Analyze(responseText string, parsed *providers.ParsedAnswer, targetDomain string) Result {
	domain := NormalizeDomain(targetDomain)
	variants := domainVariants(domain)

	var citations []string
	var mentioned bool
	var mentionText string

	if parsed != nil {
		for _, c := range parsed.Citations {
			if hostMatchesDomain(citationHost(c), domain) {
				citations = append(citations, c)
			}
		}
		mentioned = parsed.MentionsDomain
		mentionText = strings.ToLower(parsed.Description)
		if containsVariant(mentionText, variants) {
			mentioned = true
		}
	} else {
		for _, raw := range urlPattern.FindAllString(responseText, -1) {
			if hostMatchesDomain(citationHost(raw), domain) {
				citations = append(citations, raw)
			}
		}
		mentionText = strings.ToLower(responseText)
		mentioned = containsVariant(mentionText, variants)
	}

	if citations == nil {
		citations = []string{}
	}

	switch {
	case len(citations) > 0:
		return Result{Mentioned: true, Score: models.ScoreCited, Citations: citations, Confidence: models.ConfidenceHigh}
	case mentioned:
		score := models.ScoreMentioned
		if containsVariant(firstSentence(mentionText), variants) {
			score = models.ScoreMentionedEarly
		}
		return Result{Mentioned: true, Score: score, Citations: citations, Confidence: models.ConfidenceMedium}
	default:
		return Result{Mentioned: false, Score: models.ScoreAbsent, Citations: citations, Confidence: models.ConfidenceLow}
	}
}
