package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifyBraveResponse(t *testing.T) {
	cases := map[int]braveErrorKind{
		200: braveSuccess,
		429: braveRateLimited,
		401: braveAuthError,
		403: braveAuthError,
		500: braveGenericError,
		418: braveUnexpected,
	}
	for status, want := range cases {
		if got := classifyBraveResponse(status); got != want {
			t.Errorf("classifyBraveResponse(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestExtractBraveURL(t *testing.T) {
	r := braveResult{}
	if got := extractBraveURL(r); got != "" {
		t.Errorf("expected empty string for result with no URL fields, got %q", got)
	}

	r.MetaURL = &struct {
		Scheme   string `json:"scheme"`
		Netloc   string `json:"netloc"`
		Path     string `json:"path"`
		Hostname string `json:"hostname"`
	}{Scheme: "https", Netloc: "example.com", Path: "/page"}
	if got, want := extractBraveURL(r), "https://example.com/page"; got != want {
		t.Errorf("extractBraveURL() = %q, want %q", got, want)
	}

	r.URL = "https://direct.example.com/"
	if got, want := extractBraveURL(r), "https://direct.example.com/"; got != want {
		t.Errorf("direct url should take priority, got %q want %q", got, want)
	}
}

func TestBraveSearchMissingKey(t *testing.T) {
	b := NewBrave()
	_, err := b.Search(context.Background(), "test", 5, Credentials{})
	if err == nil {
		t.Fatal("expected error when no api key configured")
	}
}

func TestBraveSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := &Brave{http: srv.Client()}
	_, err := b.search(context.Background(), srv.URL, "test", 5, Credentials{BraveAPIKey: "x"})
	if _, ok := err.(rateLimitedErr); !ok {
		t.Fatalf("expected rateLimitedErr, got %T: %v", err, err)
	}
}
