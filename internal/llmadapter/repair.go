package llmadapter

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

var trailingCommaRE = regexp.MustCompile(`,(\s*[}\]])`)

// repairJSON applies spec.md §4.5 point 3's cascade: strip markdown code
// fences, find the first {/[ and last matching }/], remove trailing
// commas. Returns the repaired candidate string (not guaranteed to be
// valid JSON — the caller still attempts json.Unmarshal and retries on
// failure).
func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if m := codeFenceRE.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	s = extractOutermostBrackets(s)
	s = trailingCommaRE.ReplaceAllString(s, "$1")
	return s
}

// extractOutermostBrackets finds the first '{' or '[' and the matching
// last '}' or ']', discarding any prose the model wrapped the JSON in.
func extractOutermostBrackets(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			if s[i] == '{' {
				open, close = '{', '}'
			} else {
				open, close = '[', ']'
			}
			break
		}
	}
	if start == -1 {
		return s
	}
	_ = open
	end := strings.LastIndexByte(s, close)
	if end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// isJSONObjectOrArray reports whether raw's top-level value is a JSON
// object or array. extractOutermostBrackets returns its input unchanged
// when no '{'/'[' is found, so a bare scalar (a quoted string, a number,
// true/false/null) can still pass json.Unmarshal; spec.md §4.5 point 3's
// JSON mode always expects an object or array, never a bare scalar.
func isJSONObjectOrArray(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
