package search

import "strings"

// stopWords is a small English stop-word set used to reduce a natural
// language query to a handful of keywords for providers (Wikipedia,
// OpenAlex) that work best with terse queries.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "and": true, "or": true, "is": true, "are": true,
	"what": true, "who": true, "when": true, "where": true, "why": true,
	"how": true, "does": true, "do": true, "did": true, "with": true,
	"that": true, "this": true, "was": true, "were": true, "be": true,
	"at": true, "by": true, "it": true, "its": true, "about": true,
}

// reduceToKeywords keeps up to max non-stop-word tokens, in order.
func reduceToKeywords(query string, max int) string {
	fields := strings.Fields(query)
	kept := make([]string, 0, max)
	for _, f := range fields {
		clean := strings.Trim(strings.ToLower(f), ".,?!:;\"'")
		if clean == "" || stopWords[clean] {
			continue
		}
		kept = append(kept, clean)
		if len(kept) >= max {
			break
		}
	}
	if len(kept) == 0 {
		return query
	}
	return strings.Join(kept, " ")
}

var legalKeywords = []string{
	"court", "lawsuit", "ruling", "statute", "plaintiff", "defendant",
	"appeal", "litigation", "case law", "judge", "verdict", "opinion",
}

var cryptoKeywords = []string{
	"bitcoin", "crypto", "ethereum", "blockchain", "token", "nft", "defi",
}

// isLegalQuery classifies a query as legal per spec.md §4.3.1: contains
// legal keywords and does not look crypto-dominant.
func isLegalQuery(query string) bool {
	q := strings.ToLower(query)
	hasLegal := false
	for _, kw := range legalKeywords {
		if strings.Contains(q, kw) {
			hasLegal = true
			break
		}
	}
	if !hasLegal {
		return false
	}
	for _, kw := range cryptoKeywords {
		if strings.Contains(q, kw) {
			return false
		}
	}
	return true
}
