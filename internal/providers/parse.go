package providers

import (
	"encoding/json"
	"strings"
)

// StripCodeFence removes a wrapping markdown code fence from a model
// answer. Models routinely wrap JSON in ```json ... ``` despite being
// asked not to.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isFenceTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isFenceTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "json", "javascript", "js", "text", "markdown":
		return true
	}
	return false
}

// ParseAnswer attempts to decode a model answer into the structured shape.
// On failure it returns a nil ParsedAnswer and the raw text untouched;
// parse failure is a downgrade, not an error.
func ParseAnswer(text string) *ParsedAnswer {
	cleaned := StripCodeFence(text)

	var parsed ParsedAnswer
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil
	}
	// An object with no description and no citations is a model echoing
	// something JSON-shaped, not our answer contract.
	if parsed.Description == "" && len(parsed.Citations) == 0 {
		return nil
	}
	if parsed.Citations == nil {
		parsed.Citations = []string{}
	}
	return &parsed
}
