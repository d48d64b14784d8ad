package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// userAgents mirrors the rotation used by the search providers; a scraper
// that "identifies itself politely" per spec.md §4.3.2 still rotates UAs
// rather than hammering a single fixed string.
var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

func rotatingUserAgent() string {
	return userAgents[int(time.Now().UnixNano())%len(userAgents)]
}

const defaultMaxBytes = 10 * 1000 * 1000

// rawFetch is the result of the HTTP half, before content-type dispatch.
type rawFetch struct {
	body        []byte
	finalURL    string
	contentType string
}

func fetchRaw(ctx context.Context, rawURL string) (*rawFetch, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 7 * time.Second}).DialContext,
			TLSHandshakeTimeout:   7 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rotatingUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	ct, cs := parseContentType(resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > defaultMaxBytes {
		return nil, fmt.Errorf("response exceeds max bytes (%d)", defaultMaxBytes)
	}

	if isHTML(ct) {
		utf8Body, err := toUTF8(body, cs)
		if err != nil {
			return nil, fmt.Errorf("charset decode: %w", err)
		}
		body = utf8Body
	}

	return &rawFetch{body: body, finalURL: finalURL, contentType: ct}, nil
}

// FetchAndExtract performs the page fetch + content-type-driven extraction
// described in spec.md §4.3.2. It is the logic shared by the in-process
// fallback path and the isolated subprocess worker (cmd/scrapeworker).
func FetchAndExtract(ctx context.Context, rawURL string) (*Result, error) {
	raw, err := fetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	switch {
	case raw.contentType == "application/pdf":
		return &Result{
			Content:    extractPDFText(raw.body),
			SourceInfo: map[string]any{"final_url": raw.finalURL, "content_type": raw.contentType},
		}, nil

	case isHTML(raw.contentType):
		return extractHTML(string(raw.body), raw.finalURL)

	default:
		return &Result{
			Content:    "",
			SourceInfo: map[string]any{"final_url": raw.finalURL, "content_type": raw.contentType, "skipped": "unsupported content type"},
		}, nil
	}
}

// extractHTML runs a readability pass to isolate the main article, converts
// the surviving HTML to Markdown (preserving headings/lists/links for the
// downstream chunker and citation step), falls back to converting the raw
// document when readability yields nothing, and collects
// {url, anchor_text, context_around_link} for every <a href>.
func extractHTML(rawHTML, finalURL string) (*Result, error) {
	base, _ := url.Parse(finalURL)

	articleHTML := ""
	title := ""
	if art, err := readability.FromReader(strings.NewReader(rawHTML), base); err == nil {
		articleHTML = strings.TrimSpace(art.Content)
		title = strings.TrimSpace(art.Title)
	}
	if articleHTML == "" {
		articleHTML = rawHTML
	}

	content, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(base)))
	if err != nil {
		root, perr := html.Parse(strings.NewReader(articleHTML))
		if perr == nil {
			content = nodeText(root)
		}
	}
	content = strings.TrimSpace(content)
	if title != "" && !strings.HasPrefix(content, "# ") {
		content = "# " + title + "\n\n" + content
	}

	links := extractLinks(rawHTML, base)

	return &Result{
		Content:    content,
		Links:      links,
		Title:      title,
		SourceInfo: map[string]any{"final_url": finalURL, "content_type": "text/html"},
	}, nil
}

// baseOrigin returns scheme://host for resolving relative links during
// markdown conversion, or "" if base is nil.
func baseOrigin(base *url.URL) string {
	if base == nil {
		return ""
	}
	return base.Scheme + "://" + base.Host
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseWhitespace(sb.String())
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// extractLinks collects every <a href> with its anchor text and the
// surrounding paragraph text for context, resolving relative URLs against
// base.
func extractLinks(rawHTML string, base *url.URL) []Link {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrVal(n, "href")
			if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
				resolved := href
				if base != nil {
					if u, err := base.Parse(href); err == nil {
						resolved = u.String()
					}
				}
				links = append(links, Link{
					URL:               resolved,
					AnchorText:        collapseWhitespace(nodeText(n)),
					ContextAroundLink: collapseWhitespace(nodeText(nearestBlockAncestor(n))),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

var blockTags = map[string]bool{
	"p": true, "li": true, "div": true, "td": true, "blockquote": true, "section": true,
}

func nearestBlockAncestor(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && blockTags[p.Data] {
			return p
		}
	}
	if n.Parent != nil {
		return n.Parent
	}
	return n
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func parseContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return strings.ToLower(h), ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html") || ct == ""
}

func toUTF8(b []byte, label string) ([]byte, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// extractPDFText is a best-effort, dependency-free PDF text extractor: it
// scans for literal-string tokens inside PDF content streams (text shown
// with Tj/TJ operators). No third-party PDF parser exists anywhere in the
// corpus (gofpdf in the pack is a PDF *writer*, not a reader), so this is
// the one ambient concern implemented on the standard library alone.
func extractPDFText(data []byte) string {
	re := regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	matches := re.FindAllSubmatch(data, -1)
	var sb strings.Builder
	for _, m := range matches {
		unescaped := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`).Replace(string(m[1]))
		sb.WriteString(unescaped)
		sb.WriteString(" ")
	}
	return collapseWhitespace(sb.String())
}
