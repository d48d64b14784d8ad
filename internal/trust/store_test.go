package trust

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trust.db")
	s, err := Open(path, []string{"gov", "edu"}, nil, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateProvisionalScoreClamped(t *testing.T) {
	s := newTestStore(t)
	p := s.GetOrCreate(context.Background(), "example.com", "https://example.com/page")
	require.GreaterOrEqual(t, p.TrustScore, 0.05)
	require.LessOrEqual(t, p.TrustScore, 0.95)
	require.Equal(t, 1, p.ReferenceCount)
	require.True(t, p.IsHTTPS)
}

func TestGetOrCreateIncrementsReferenceCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := s.GetOrCreate(ctx, "example.org", "http://example.org")
	require.Equal(t, 1, first.ReferenceCount)

	second := s.GetOrCreate(ctx, "example.org", "http://example.org")
	require.Equal(t, 2, second.ReferenceCount)
	require.Equal(t, first.TrustScore, second.TrustScore)
}

func TestPrivilegedTLDBonus(t *testing.T) {
	s := newTestStore(t)
	p := s.GetOrCreate(context.Background(), "nih.gov", "https://nih.gov")
	// base 0.4 + https 0.05 + privileged-tld 0.10 = 0.55
	require.InDelta(t, 0.55, p.TrustScore, 0.001)
}

func TestWildcardFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	// Seed a wildcard row directly.
	s.persist(ctx, Profile{Domain: "*.gov", TrustScore: 0.8, TLDTypeBonus: 0.1, ReferenceCount: 1})

	p, ok := s.lookupWildcard(ctx, "nsa.gov")
	require.True(t, ok)
	require.Equal(t, 0.8, p.TrustScore)
}

func TestProvisionalScoreFormula(t *testing.T) {
	require.InDelta(t, 0.45, provisionalScore(true, 0, false, 0), 0.001)
	require.InDelta(t, 0.55, provisionalScore(true, 3*365, true, 0), 0.001)
	require.InDelta(t, 0.40, provisionalScore(true, 30, true, 0), 0.001)
	require.InDelta(t, 0.35, provisionalScore(false, 30, true, 0), 0.001)
}

func TestDomainFromURL(t *testing.T) {
	d, err := DomainFromURL("https://Sub.Example.COM/path?q=1")
	require.NoError(t, err)
	require.Equal(t, "sub.example.com", d)
}
