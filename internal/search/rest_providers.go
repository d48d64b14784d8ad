package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleCSE and Bing are both straightforward REST calls; per spec.md
// §4.3.1, "on any exception the provider is treated as fatal and marked
// with a long ignore duration" — callers should wrap non-nil errors from
// these two in fatalProviderErr at the pass level if the provider itself
// did not already classify it (both already do, below).

type GoogleCSE struct {
	http *http.Client
}

func NewGoogleCSE() *GoogleCSE { return &GoogleCSE{http: &http.Client{Timeout: 12 * time.Second}} }

func (g *GoogleCSE) Name() string { return "google" }

func (g *GoogleCSE) Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error) {
	if creds.GoogleAPIKey == "" || creds.GoogleCX == "" {
		return nil, fatalProviderErr{provider: g.Name(), reason: "missing api key or cx"}
	}
	v := url.Values{}
	v.Set("key", creds.GoogleAPIKey)
	v.Set("cx", creds.GoogleCX)
	v.Set("q", query)
	if limit > 10 {
		limit = 10
	}
	v.Set("num", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/customsearch/v1?"+v.Encode(), nil)
	if err != nil {
		return nil, fatalProviderErr{provider: g.Name(), reason: err.Error()}
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fatalProviderErr{provider: g.Name(), reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fatalProviderErr{provider: g.Name(), reason: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	var payload struct {
		Items []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fatalProviderErr{provider: g.Name(), reason: "decode: " + err.Error()}
	}

	items := make([]ResultItem, 0, len(payload.Items))
	for i, it := range payload.Items {
		items = append(items, ResultItem{
			URL: it.Link, Title: it.Title, Snippet: it.Snippet,
			Provider: g.Name(), Query: query, ProviderRank: i + 1,
		})
	}
	return items, nil
}

type Bing struct {
	http *http.Client
}

func NewBing() *Bing { return &Bing{http: &http.Client{Timeout: 12 * time.Second}} }

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error) {
	if creds.BingAPIKey == "" {
		return nil, fatalProviderErr{provider: b.Name(), reason: "missing api key"}
	}
	v := url.Values{}
	v.Set("q", query)
	v.Set("count", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.bing.microsoft.com/v7.0/search?"+v.Encode(), nil)
	if err != nil {
		return nil, fatalProviderErr{provider: b.Name(), reason: err.Error()}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.BingAPIKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fatalProviderErr{provider: b.Name(), reason: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fatalProviderErr{provider: b.Name(), reason: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	var payload struct {
		WebPages struct {
			Value []struct {
				URL     string `json:"url"`
				Name    string `json:"name"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fatalProviderErr{provider: b.Name(), reason: "decode: " + err.Error()}
	}

	items := make([]ResultItem, 0, len(payload.WebPages.Value))
	for i, it := range payload.WebPages.Value {
		if i >= limit {
			break
		}
		items = append(items, ResultItem{
			URL: it.URL, Title: it.Name, Snippet: it.Snippet,
			Provider: b.Name(), Query: query, ProviderRank: i + 1,
		})
	}
	return items, nil
}

// Wikipedia reduces the query to up to 3 non-stop-word keywords and uses
// the English Wikipedia REST search API.
type Wikipedia struct {
	http *http.Client
}

func NewWikipedia() *Wikipedia { return &Wikipedia{http: &http.Client{Timeout: 12 * time.Second}} }

func (w *Wikipedia) Name() string { return "wikipedia" }

func (w *Wikipedia) Search(ctx context.Context, query string, limit int, _ Credentials) ([]ResultItem, error) {
	keywords := reduceToKeywords(query, 3)
	v := url.Values{}
	v.Set("action", "query")
	v.Set("list", "search")
	v.Set("srsearch", keywords)
	v.Set("format", "json")
	v.Set("srlimit", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://en.wikipedia.org/w/api.php?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "live-search-orchestrator/1.0")

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("wikipedia: http %d", resp.StatusCode)
	}

	var payload struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("wikipedia: decode: %w", err)
	}

	items := make([]ResultItem, 0, len(payload.Query.Search))
	for i, r := range payload.Query.Search {
		items = append(items, ResultItem{
			URL:          "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(r.Title, " ", "_"),
			Title:        r.Title,
			Snippet:      stripWikiMarkup(r.Snippet),
			Provider:     w.Name(),
			Query:        query,
			ProviderRank: i + 1,
		})
	}
	return items, nil
}

func stripWikiMarkup(s string) string {
	s = strings.ReplaceAll(s, "<span class=\"searchmatch\">", "")
	s = strings.ReplaceAll(s, "</span>", "")
	return s
}

// OpenAlex searches scholarly works, reconstructing abstracts from the
// inverted index representation when present.
type OpenAlex struct {
	http *http.Client
}

func NewOpenAlex() *OpenAlex { return &OpenAlex{http: &http.Client{Timeout: 15 * time.Second}} }

func (o *OpenAlex) Name() string { return "openalex" }

func (o *OpenAlex) Search(ctx context.Context, query string, limit int, _ Credentials) ([]ResultItem, error) {
	if limit > 50 {
		limit = 50
	}
	keywords := reduceToKeywords(query, 6)
	v := url.Values{}
	v.Set("search", keywords)
	v.Set("per-page", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.openalex.org/works?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openalex: http %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			ID                      string         `json:"id"`
			DisplayName             string         `json:"display_name"`
			AbstractInvertedIndex   map[string][]int `json:"abstract_inverted_index"`
			PrimaryLocation         struct {
				LandingPageURL string `json:"landing_page_url"`
			} `json:"primary_location"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openalex: decode: %w", err)
	}

	items := make([]ResultItem, 0, len(payload.Results))
	for i, r := range payload.Results {
		link := r.PrimaryLocation.LandingPageURL
		if link == "" {
			link = r.ID
		}
		items = append(items, ResultItem{
			URL:          link,
			Title:        r.DisplayName,
			Snippet:      reconstructAbstract(r.AbstractInvertedIndex),
			Provider:     o.Name(),
			Query:        query,
			ProviderRank: i + 1,
		})
	}
	return items, nil
}

// reconstructAbstract rebuilds the plain-text abstract from OpenAlex's
// inverted-index representation: word -> [positions].
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := 0
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p < len(words) {
				words[p] = word
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// CourtListener is gated to queries classified as legal (see isLegalQuery)
// and uses token authentication.
type CourtListener struct {
	http *http.Client
}

func NewCourtListener() *CourtListener {
	return &CourtListener{http: &http.Client{Timeout: 15 * time.Second}}
}

func (c *CourtListener) Name() string { return "courtlistener" }

func (c *CourtListener) Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error) {
	if !isLegalQuery(query) {
		return nil, nil
	}
	if creds.CourtListenerToken == "" {
		return nil, fatalProviderErr{provider: c.Name(), reason: "missing api token"}
	}
	v := url.Values{}
	v.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.courtlistener.com/api/rest/v4/search/?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+creds.CourtListenerToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("courtlistener: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("courtlistener: http %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			AbsoluteURL string `json:"absolute_url"`
			CaseName    string `json:"caseName"`
			Snippet     string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("courtlistener: decode: %w", err)
	}

	items := make([]ResultItem, 0, len(payload.Results))
	for i, r := range payload.Results {
		if i >= limit {
			break
		}
		items = append(items, ResultItem{
			URL:          "https://www.courtlistener.com" + r.AbsoluteURL,
			Title:        r.CaseName,
			Snippet:      r.Snippet,
			Provider:     c.Name(),
			Query:        query,
			ProviderRank: i + 1,
		})
	}
	return items, nil
}
