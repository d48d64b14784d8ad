package graph

import (
	"strings"
	"testing"
)

func TestRewriteCitationsAssignsNumericMarkersInOrder(t *testing.T) {
	draft := "Quantum supremacy was claimed [ref: https://a.example/paper] and later disputed [ref: https://b.example/rebuttal]. See also [ref: https://a.example/paper] again."
	rewritten, order := rewriteCitations(draft)

	if len(order) != 2 {
		t.Fatalf("expected 2 unique urls, got %d: %v", len(order), order)
	}
	if order[0] != "https://a.example/paper" || order[1] != "https://b.example/rebuttal" {
		t.Fatalf("unexpected order: %v", order)
	}
	if !strings.Contains(rewritten, "[S1]") || !strings.Contains(rewritten, "[S2]") {
		t.Fatalf("expected [S1]/[S2] markers in %q", rewritten)
	}
	if strings.Contains(rewritten, "ref:") {
		t.Fatalf("expected all [ref: ...] markers replaced, got %q", rewritten)
	}
}

func TestRewriteCitationsNoMarkersReturnsTextUnchanged(t *testing.T) {
	draft := "No citations here."
	rewritten, order := rewriteCitations(draft)
	if rewritten != draft || order != nil {
		t.Fatalf("expected passthrough, got %q %v", rewritten, order)
	}
}

func TestBuildSourcesSectionFormatsMarkerOrder(t *testing.T) {
	sources := []ReportSource{
		{URL: "https://a.example", Title: "A", Marker: "S1"},
		{URL: "https://b.example", Title: "", Marker: "S2"},
	}
	section := buildSourcesSection(sources)
	if !strings.Contains(section, "- [S1] [A](https://a.example)") {
		t.Fatalf("missing S1 line in %q", section)
	}
	if !strings.Contains(section, "- [S2] [https://b.example](https://b.example)") {
		t.Fatalf("expected url fallback title for S2, got %q", section)
	}
}

func TestDateContextFooterEmptyWhenUnset(t *testing.T) {
	if got := dateContextFooter(""); got != "" {
		t.Fatalf("expected empty footer, got %q", got)
	}
	if got := dateContextFooter("Monday, January 1, 2026"); got == "" {
		t.Fatalf("expected non-empty footer")
	}
}
