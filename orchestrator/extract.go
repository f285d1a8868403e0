package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// At most this many item keys are taken from one search result.
const maxSearchKeys = 10

// Zotero item keys are exactly eight uppercase alphanumerics.
var itemKeyPattern = regexp.MustCompile(`\b[A-Z0-9]{8}\b`)

var httpCodePrefix = regexp.MustCompile(`^\d{3}\b`)

// ToolErrorText reports a tool response that arrived with HTTP 200 but whose
// text looks like a service-side error. Feeding it into the prompt as content
// would ground the answer in garbage, so the query aborts instead.
type ToolErrorText struct {
	Tool string
	Text string
}

func (e *ToolErrorText) Error() string {
	text := e.Text
	if len(text) > 200 {
		text = text[:200]
	}
	return fmt.Sprintf("%s reported an error: %s", e.Tool, text)
}

// looksLikeToolError decides whether a 200-status tool response text is
// actually an error report. The service does not reliably signal tool
// failures out-of-band, so this matches the error phrasings observed so far.
// TODO: drop the phrase matching once zotero-mcp sets isError on failed tool
// results instead of returning prose.
func looksLikeToolError(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "error") {
		return true
	}
	if httpCodePrefix.MatchString(t) {
		return true
	}
	if strings.Contains(t, "collection") &&
		(strings.Contains(t, "not found") || strings.Contains(t, "already exists")) {
		return true
	}
	return false
}

// extractItemKeys pulls item keys from a search result. A JSON array of
// objects is read via their key/itemKey fields; anything else is scanned for
// bare key tokens. Order of first appearance is preserved, duplicates are
// dropped, and the list is capped at maxSearchKeys.
func extractItemKeys(searchResult string) []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && !seen[k] && len(keys) < maxSearchKeys {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(searchResult), &items); err == nil {
		for _, item := range items {
			if k, ok := item["key"].(string); ok && k != "" {
				add(k)
			} else if k, ok := item["itemKey"].(string); ok {
				add(k)
			}
		}
		if len(keys) > 0 {
			return keys
		}
	}

	for _, match := range itemKeyPattern.FindAllString(searchResult, -1) {
		add(match)
	}
	return keys
}
