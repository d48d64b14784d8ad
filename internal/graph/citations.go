package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// citationMarkerRE matches the LLM-emitted "[ref: URL]" marker, per
// spec.md §4.6.1. Adapted from original_source's
// extract_and_map_llm_citations, which assigns alphabetic identifiers
// (A, B, …, Z, AA, …); spec.md explicitly redesigns this to a numeric
// S1, S2, … scheme, so rewriteCitations below replaces the original's
// _next_identifier with a plain counter.
var citationMarkerRE = regexp.MustCompile(`(?i)\[ref:\s*([^\]]+?)\]`)

// rewriteCitations scans draft for [ref: URL] markers in order of first
// appearance, assigns each unique URL a short "Sk" marker, and replaces
// every occurrence. It returns the rewritten text and the ordered list of
// unique URLs (index i corresponds to marker S(i+1)).
func rewriteCitations(draft string) (string, []string) {
	if draft == "" {
		return "", nil
	}

	matches := citationMarkerRE.FindAllStringSubmatchIndex(draft, -1)
	if len(matches) == 0 {
		return draft, nil
	}

	order := make([]string, 0, len(matches))
	marker := make(map[string]string)
	for _, m := range matches {
		url := strings.TrimSpace(draft[m[2]:m[3]])
		if url == "" {
			continue
		}
		if _, ok := marker[url]; !ok {
			marker[url] = fmt.Sprintf("S%d", len(order)+1)
			order = append(order, url)
		}
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		url := strings.TrimSpace(draft[m[2]:m[3]])
		b.WriteString(draft[last:start])
		if ident, ok := marker[url]; ok {
			b.WriteString("[" + ident + "]")
		} else {
			b.WriteString(draft[start:end])
		}
		last = end
	}
	b.WriteString(draft[last:])

	return b.String(), order
}

// buildSourcesSection renders spec.md §4.6.1 point 4's "- [Sk] [Title](URL)"
// list in marker order.
func buildSourcesSection(sources []ReportSource) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Sources\n")
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		b.WriteString(fmt.Sprintf("- [%s] [%s](%s)\n", s.Marker, title, s.URL))
	}
	return b.String()
}

// dateContextFooter appends spec.md §4.6.1 point 5's one-line footer when
// a date context is set.
func dateContextFooter(dateContext string) string {
	if dateContext == "" {
		return ""
	}
	return fmt.Sprintf("\n_Report generated with date context: %s_\n", dateContext)
}
