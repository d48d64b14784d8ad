package scrape

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a\n\nb   c\t d  ")
	if got != "a b c d" {
		t.Errorf("collapseWhitespace() = %q", got)
	}
}

func TestExtractLinksResolvesRelativeURLs(t *testing.T) {
	html := `<html><body><p>See <a href="/about">our story</a> for details.</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer srv.Close()

	res, err := extractHTML(html, srv.URL+"/page")
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if len(res.Links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(res.Links))
	}
	if !strings.HasPrefix(res.Links[0].URL, srv.URL) {
		t.Errorf("expected resolved absolute URL, got %q", res.Links[0].URL)
	}
	if res.Links[0].AnchorText != "our story" {
		t.Errorf("anchor text = %q", res.Links[0].AnchorText)
	}
	if !strings.Contains(res.Links[0].ContextAroundLink, "See") {
		t.Errorf("context should include surrounding text, got %q", res.Links[0].ContextAroundLink)
	}
}

func TestExtractHTMLConvertsContentToMarkdown(t *testing.T) {
	html := `<html><body><h1>Title</h1><p>Some <strong>bold</strong> text.</p></body></html>`
	res, err := extractHTML(html, "https://example.com/page")
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}
	if !strings.Contains(res.Content, "**bold**") {
		t.Errorf("expected markdown-formatted content, got %q", res.Content)
	}
}

func TestExtractPDFText(t *testing.T) {
	pdf := []byte(`1 0 obj << >> stream BT (Hello World) Tj ET endstream endobj`)
	got := extractPDFText(pdf)
	if got != "Hello World" {
		t.Errorf("extractPDFText() = %q, want %q", got, "Hello World")
	}
}

func TestIsHTML(t *testing.T) {
	if !isHTML("text/html") || !isHTML("application/xhtml+xml") {
		t.Error("expected html content types to be recognized")
	}
	if isHTML("application/pdf") {
		t.Error("did not expect pdf to classify as html")
	}
}
