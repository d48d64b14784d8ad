package search

import "strings"

// AccessStrategy tells the scraper how much of an academic page it may
// reasonably expect to read, per spec.md §4.3.1's per-domain access map.
type AccessStrategy int

const (
	// AccessFullText means the page can be fetched and read like any
	// other web page.
	AccessFullText AccessStrategy = iota
	// AccessAbstractOnly means only the abstract/metadata is reachable
	// without a subscription; scraping should stop there.
	AccessAbstractOnly
	// AccessSnippetOnly means even the abstract is usually behind a
	// paywall teaser; treat the search snippet as the content.
	AccessSnippetOnly
	// AccessResolveThenScrape means the URL is an identifier (DOI, PMID)
	// that must be resolved to a landing page before scraping.
	AccessResolveThenScrape
)

// academicDomainStrategy maps known scholarly-publishing domains to the
// access level that can typically be scraped without a subscription.
var academicDomainStrategy = map[string]AccessStrategy{
	"arxiv.org":               AccessFullText,
	"ncbi.nlm.nih.gov":        AccessFullText,
	"pmc.ncbi.nlm.nih.gov":    AccessFullText,
	"openalex.org":            AccessAbstractOnly,
	"api.openalex.org":        AccessAbstractOnly,
	"doi.org":                 AccessResolveThenScrape,
	"dx.doi.org":               AccessResolveThenScrape,
	"sciencedirect.com":       AccessSnippetOnly,
	"www.sciencedirect.com":   AccessSnippetOnly,
	"springer.com":            AccessSnippetOnly,
	"link.springer.com":       AccessSnippetOnly,
	"nature.com":              AccessAbstractOnly,
	"www.nature.com":          AccessAbstractOnly,
	"ieee.org":                AccessSnippetOnly,
	"ieeexplore.ieee.org":     AccessSnippetOnly,
	"jstor.org":               AccessSnippetOnly,
	"www.jstor.org":           AccessSnippetOnly,
	"onlinelibrary.wiley.com": AccessSnippetOnly,
	"courtlistener.com":       AccessFullText,
	"www.courtlistener.com":   AccessFullText,
}

// StrategyForURL returns the access strategy for a given result URL's
// host, defaulting to full-text for unrecognized (non-academic) domains.
func StrategyForURL(host string) AccessStrategy {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if s, ok := academicDomainStrategy[host]; ok {
		return s
	}
	if s, ok := academicDomainStrategy["www."+host]; ok {
		return s
	}
	return AccessFullText
}

// IsAcademicDomain reports whether host is a recognized scholarly
// publishing or preprint domain.
func IsAcademicDomain(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	_, ok := academicDomainStrategy[host]
	if !ok {
		_, ok = academicDomainStrategy["www."+host]
	}
	return ok
}
