package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livesearch/orchestrator/internal/ratelimit"
	"github.com/livesearch/orchestrator/internal/trust"
)

type fakeProvider struct {
	name  string
	items []ResultItem
	err   error
	delay time.Duration
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Search(ctx context.Context, query string, limit int, creds Credentials) ([]ResultItem, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

func newTestRegistry(t *testing.T, providers []Provider) (*Registry, *ratelimit.Registry, *trust.Store) {
	t.Helper()
	rl := ratelimit.New(filepath.Join(t.TempDir(), "ignored.json"), 0)
	ts, err := trust.Open(filepath.Join(t.TempDir(), "trust.db"), nil, nil, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })
	return NewRegistry(providers, rl, ts), rl, ts
}

func TestPassAggregatesResultsAndAttachesTrust(t *testing.T) {
	providers := []Provider{
		fakeProvider{name: "a", items: []ResultItem{{URL: "https://example.com/1", Title: "one"}}},
		fakeProvider{name: "b", items: []ResultItem{{URL: "https://example.org/2", Title: "two"}}},
	}
	reg, _, _ := newTestRegistry(t, providers)

	result := reg.Pass(context.Background(), "test query", 5, Credentials{})
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		require.Greater(t, item.TrustScore, 0.0)
	}
	require.Empty(t, result.ProviderErrs)
}

func TestPassSkipsIgnoredProviders(t *testing.T) {
	providers := []Provider{
		fakeProvider{name: "a", items: []ResultItem{{URL: "https://example.com/1"}}},
		fakeProvider{name: "ignored-one", items: []ResultItem{{URL: "https://example.com/2"}}},
	}
	reg, rl, _ := newTestRegistry(t, providers)
	rl.Mark("ignored-one", time.Hour)

	result := reg.Pass(context.Background(), "test query", 5, Credentials{})
	require.Len(t, result.Items, 1)
	require.Contains(t, result.SkippedByRate, "ignored-one")
}

func TestPassMarksRateLimitedProvider(t *testing.T) {
	providers := []Provider{
		fakeProvider{name: "flaky", err: rateLimitedErr{provider: "flaky"}},
	}
	reg, rl, _ := newTestRegistry(t, providers)

	result := reg.Pass(context.Background(), "test query", 5, Credentials{})
	require.Empty(t, result.Items)
	require.Error(t, result.ProviderErrs["flaky"])
	require.True(t, rl.IsIgnored("flaky"))
}

func TestPassMarksFatalProviderLonger(t *testing.T) {
	providers := []Provider{
		fakeProvider{name: "broken", err: fatalProviderErr{provider: "broken", reason: "bad credentials"}},
	}
	reg, rl, _ := newTestRegistry(t, providers)

	reg.Pass(context.Background(), "test query", 5, Credentials{})
	require.True(t, rl.IsIgnored("broken"))
}

func TestPassFallsBackWhenAllIgnored(t *testing.T) {
	providers := []Provider{
		fakeProvider{name: "only", items: []ResultItem{{URL: "https://example.com/1"}}},
	}
	reg, rl, _ := newTestRegistry(t, providers)
	rl.Mark("only", time.Hour)

	result := reg.Pass(context.Background(), "test query", 5, Credentials{})
	require.Len(t, result.Items, 1, "expected fallback to use the otherwise-ignored provider when none remain")
}
