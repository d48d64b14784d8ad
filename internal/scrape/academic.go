package scrape

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/livesearch/orchestrator/internal/search"
)

// abstractPatterns are tried in order against raw HTML to pull an abstract
// out of academic landing pages that otherwise hide the full text behind a
// paywall, per spec.md §4.3.3's "abstract_only" strategy.
var abstractPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<meta\s+name=["']?(?:dc\.description|citation_abstract)["']?\s+content=["']([^"']+)["']`),
	regexp.MustCompile(`(?is)<section[^>]+class=["'][^"']*abstract[^"']*["'][^>]*>(.*?)</section>`),
	regexp.MustCompile(`(?is)<div[^>]+class=["'][^"']*abstract[^"']*["'][^>]*>(.*?)</div>`),
	regexp.MustCompile(`(?is)<blockquote[^>]+class=["'][^"']*abstract[^"']*["'][^>]*>(.*?)</blockquote>`),
}

// ScrapeAcademicAware runs FetchAndExtract but first consults the
// access-strategy map (internal/search.StrategyForURL) to decide whether
// to scrape at all, whether to fall back to a snippet, or whether the URL
// must be resolved (DOI) before scraping.
func ScrapeAcademicAware(ctx context.Context, rawURL, fallbackSnippet string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	strategy := search.StrategyForURL(u.Hostname())

	switch strategy {
	case search.AccessSnippetOnly:
		return &Result{
			Content:    fallbackSnippet,
			SourceInfo: map[string]any{"final_url": rawURL, "access_strategy": "snippet_only"},
		}, nil

	case search.AccessResolveThenScrape:
		resolved, err := resolveRedirect(ctx, rawURL)
		if err != nil {
			return &Result{
				Content:    fallbackSnippet,
				SourceInfo: map[string]any{"final_url": rawURL, "access_strategy": "resolve_then_scrape", "error": err.Error()},
			}, nil
		}
		return FetchAndExtract(ctx, resolved)

	case search.AccessAbstractOnly:
		raw, err := fetchRaw(ctx, rawURL)
		if err != nil {
			return &Result{Content: fallbackSnippet, SourceInfo: map[string]any{"final_url": rawURL, "access_strategy": "abstract_only", "error": err.Error()}}, nil
		}
		res, err := extractHTML(string(raw.body), raw.finalURL)
		if err != nil || res == nil {
			res = &Result{SourceInfo: map[string]any{"final_url": raw.finalURL}}
		}
		res.SourceInfo["access_strategy"] = "abstract_only"
		if abstract := extractAbstractFromHTML(string(raw.body)); abstract != "" {
			res.Content = abstract
		} else if res.Content == "" {
			res.Content = fallbackSnippet
		}
		return res, nil

	default: // full_text
		return FetchAndExtract(ctx, rawURL)
	}
}

func resolveRedirect(ctx context.Context, rawURL string) (string, error) {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return resp.Request.URL.String(), nil
}

// extractAbstractFromHTML tries each abstractPatterns entry in order on
// raw HTML text; its only caller passes the page body fetched by
// fetchRaw, not FetchAndExtract's reduced res.Content.
func extractAbstractFromHTML(htmlOrText string) string {
	for _, pat := range abstractPatterns {
		if m := pat.FindStringSubmatch(htmlOrText); len(m) > 1 {
			return collapseWhitespace(stripTags(m[1]))
		}
	}
	return ""
}

var tagRE = regexp.MustCompile(`<[^>]+>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagRE.ReplaceAllString(s, " "))
}
