package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DuckDuckGo scrapes the HTML-only result page (no official free JSON API),
// rotating user agents as the teacher's tools/web/search.go does for its
// SearXNG HTML fallback path.
type DuckDuckGo struct {
	http *http.Client
}

func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{http: &http.Client{Timeout: 12 * time.Second}}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int, _ Credentials) ([]ResultItem, error) {
	v := url.Values{}
	v.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://html.duckduckgo.com/html/?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rotatingUserAgent(time.Now().UnixNano()))

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo: http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse html: %w", err)
	}

	var items []ResultItem
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "class" && strings.Contains(attr.Val, "result__a") {
					href := anchorHref(n)
					title := textContent(n)
					if href != "" {
						items = append(items, ResultItem{
							URL:          decodeDDGRedirect(href),
							Title:        strings.TrimSpace(title),
							Provider:     d.Name(),
							Query:        query,
							ProviderRank: len(items) + 1,
						})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func anchorHref(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// decodeDDGRedirect unwraps DuckDuckGo's "/l/?uddg=<encoded>" redirect links
// to the real destination URL.
func decodeDDGRedirect(href string) string {
	if strings.HasPrefix(href, "//duckduckgo.com/l/") || strings.HasPrefix(href, "/l/") {
		if u, err := url.Parse(href); err == nil {
			if target := u.Query().Get("uddg"); target != "" {
				if decoded, err := url.QueryUnescape(target); err == nil {
					return decoded
				}
			}
		}
	}
	return href
}
