package search

import "testing"

func TestStrategyForURL(t *testing.T) {
	cases := []struct {
		host string
		want AccessStrategy
	}{
		{"arxiv.org", AccessFullText},
		{"www.nature.com", AccessAbstractOnly},
		{"ieeexplore.ieee.org", AccessSnippetOnly},
		{"doi.org", AccessResolveThenScrape},
		{"example.com", AccessFullText},
	}
	for _, c := range cases {
		if got := StrategyForURL(c.host); got != c.want {
			t.Errorf("StrategyForURL(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestIsAcademicDomain(t *testing.T) {
	if !IsAcademicDomain("www.sciencedirect.com") {
		t.Error("expected sciencedirect.com to be recognized as academic")
	}
	if IsAcademicDomain("example.com") {
		t.Error("did not expect example.com to be recognized as academic")
	}
}
