// Package search implements the Search/Scrape Subsystem's fan-out half
// (C3 §4.3.1): dispatching a query across configured web-search providers,
// filtering out rate-limited ones, and attaching a trust profile to every
// result. Provider dispatch style (user-agent rotation, JSON-first with
// HTML fallback) is grounded on internal/tools/web/search.go.
package search

import (
	"context"
)

// ResultItem mirrors spec.md §3's SearchResultItem.
type ResultItem struct {
	URL          string
	Title        string
	Snippet      string
	Provider     string
	Query        string
	ProviderRank int
	TrustScore   float64
}

// Credentials carries the per-provider keys resolved by C8.
type Credentials struct {
	GoogleAPIKey, GoogleCX string
	BingAPIKey             string
	BraveAPIKey            string
	CourtListenerToken     string
}

// Provider is a single search backend.
type Provider interface {
	// Name is the provider's registry key (e.g. "duckduckgo").
	Name() string
	// Search returns up to limit results for query. Errors are always
	// provider-local; the caller decides fatal vs transient classification.
	Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error)
}

// userAgents rotates a handful of realistic browser UAs, same list used by
// the teacher's tools/web package, shared across providers and the scraper.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

func rotatingUserAgent(seed int64) string {
	if seed < 0 {
		seed = -seed
	}
	return userAgents[int(seed)%len(userAgents)]
}
