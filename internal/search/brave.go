package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Brave calls the Brave Search JSON API. Its response parser recognizes
// five outcomes per spec.md §4.3.1: success, generic error, rate-limit,
// auth error, unexpected shape. URL extraction falls back through
// url -> meta_url(scheme+netloc+path) -> data_providers[].url ->
// profile.url; url fields nested elsewhere in a result are not searched.
type Brave struct {
	http *http.Client
}

func NewBrave() *Brave {
	return &Brave{http: &http.Client{Timeout: 12 * time.Second}}
}

func (b *Brave) Name() string { return "brave" }

type braveErrorKind int

const (
	braveSuccess braveErrorKind = iota
	braveGenericError
	braveRateLimited
	braveAuthError
	braveUnexpected
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

func (b *Brave) Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error) {
	return b.search(ctx, braveSearchEndpoint, query, limit, creds)
}

// search is Search with an injectable endpoint, letting tests point it at
// an httptest server.
func (b *Brave) search(ctx context.Context, endpoint, query string, limit int, creds Credentials) ([]ResultItem, error) {
	if creds.BraveAPIKey == "" {
		return nil, fmt.Errorf("brave: no api key configured")
	}
	v := url.Values{}
	v.Set("q", query)
	v.Set("count", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", creds.BraveAPIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()

	kind := classifyBraveResponse(resp.StatusCode)
	switch kind {
	case braveRateLimited:
		return nil, rateLimitedErr{provider: b.Name()}
	case braveAuthError:
		return nil, fatalProviderErr{provider: b.Name(), reason: "authentication failed"}
	case braveGenericError, braveUnexpected:
		return nil, fmt.Errorf("brave: http %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []braveResult `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	items := make([]ResultItem, 0, len(payload.Web.Results))
	for i, r := range payload.Web.Results {
		if i >= limit {
			break
		}
		u := extractBraveURL(r)
		if u == "" {
			continue
		}
		items = append(items, ResultItem{
			URL:          u,
			Title:        r.Title,
			Snippet:      r.Description,
			Provider:     b.Name(),
			Query:        query,
			ProviderRank: i + 1,
		})
	}
	return items, nil
}

func classifyBraveResponse(status int) braveErrorKind {
	switch {
	case status >= 200 && status < 300:
		return braveSuccess
	case status == 429:
		return braveRateLimited
	case status == 401 || status == 403:
		return braveAuthError
	case status >= 500:
		return braveGenericError
	default:
		return braveUnexpected
	}
}

type braveResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MetaURL     *struct {
		Scheme   string `json:"scheme"`
		Netloc   string `json:"netloc"`
		Path     string `json:"path"`
		Hostname string `json:"hostname"`
	} `json:"meta_url"`
	DataProviders []struct {
		URL string `json:"url"`
	} `json:"data_providers"`
	Profile *struct {
		URL string `json:"url"`
	} `json:"profile"`
}

func extractBraveURL(r braveResult) string {
	if r.URL != "" {
		return r.URL
	}
	if r.MetaURL != nil && r.MetaURL.Scheme != "" && r.MetaURL.Netloc != "" {
		return r.MetaURL.Scheme + "://" + r.MetaURL.Netloc + r.MetaURL.Path
	}
	for _, dp := range r.DataProviders {
		if dp.URL != "" {
			return dp.URL
		}
	}
	if r.Profile != nil && r.Profile.URL != "" {
		return r.Profile.URL
	}
	return ""
}

// rateLimitedErr and fatalProviderErr let pass.go classify provider errors
// without string matching.
type rateLimitedErr struct{ provider string }

func (e rateLimitedErr) Error() string { return e.provider + ": rate limited" }

type fatalProviderErr struct {
	provider string
	reason   string
}

func (e fatalProviderErr) Error() string { return e.provider + ": fatal: " + e.reason }
