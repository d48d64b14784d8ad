package search

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/livesearch/orchestrator/internal/ratelimit"
	"github.com/livesearch/orchestrator/internal/trust"
)

// perProviderTimeout bounds a single provider's call within a pass so one
// slow backend cannot stall the whole hop.
const perProviderTimeout = 20 * time.Second

// PassResult aggregates one search_pass invocation's output: every result
// collected across providers (with trust scores attached) plus any
// per-provider errors encountered, none of which abort the pass.
type PassResult struct {
	Items         []ResultItem
	ProviderErrs  map[string]error
	SkippedByRate []string
}

// Registry dispatches a query across the configured providers, consulting
// the rate-limit ignore list and attaching domain trust scores to every
// result with a resolvable host. Grounded on the teacher's
// tools/web/search.go retry/fallback shape, generalized from one backend
// to many.
type Registry struct {
	providers []Provider
	rateLimit *ratelimit.Registry
	trust     *trust.Store
}

// NewRegistry builds a provider fan-out registry. providers order is the
// registry's default priority order; a pass shuffles it per spec.md
// §4.3.1's "shuffle remaining providers" behavior.
func NewRegistry(providers []Provider, rl *ratelimit.Registry, ts *trust.Store) *Registry {
	return &Registry{providers: providers, rateLimit: rl, trust: ts}
}

// Pass runs one search_pass: for each provider not currently ignored, calls
// Search under perProviderTimeout, classifies errors (rate-limited providers
// get marked in the ignore list; fatal providers get a long ignore mark),
// and attaches a trust score to every surviving result.
func (reg *Registry) Pass(ctx context.Context, query string, limitPerProvider int, creds Credentials) PassResult {
	result := PassResult{ProviderErrs: make(map[string]error)}

	candidates := make([]Provider, 0, len(reg.providers))
	for _, p := range reg.providers {
		if reg.rateLimit != nil && reg.rateLimit.IsIgnored(p.Name()) {
			result.SkippedByRate = append(result.SkippedByRate, p.Name())
			continue
		}
		candidates = append(candidates, p)
	}

	// Fall back to the full provider list when every provider is
	// currently ignored, rather than returning nothing for the hop.
	if len(candidates) == 0 && len(reg.providers) > 0 {
		log.Warn().Str("query", query).Msg("search: all providers ignored, falling back to full list")
		candidates = append(candidates, reg.providers...)
	}

	shuffled := make([]Provider, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	// Every provider runs to completion regardless of its siblings' outcome
	// (a slow or failing backend never aborts the pass), so this fans out
	// with a plain errgroup.Group rather than errgroup.WithContext — each
	// goroutine's error is captured into ProviderErrs, never returned to
	// the group, so one provider's failure can't cancel the others.
	var mu sync.Mutex
	var g errgroup.Group
	for _, p := range shuffled {
		p := p
		g.Go(func() error {
			items, err := reg.callWithTimeout(ctx, p, query, limitPerProvider, creds)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ProviderErrs[p.Name()] = err
				reg.classifyAndMark(p.Name(), err)
				return nil
			}
			result.Items = append(result.Items, items...)
			return nil
		})
	}
	_ = g.Wait()

	if reg.trust != nil {
		for i := range result.Items {
			reg.attachTrust(ctx, &result.Items[i])
		}
	}
	return result
}

func (reg *Registry) callWithTimeout(ctx context.Context, p Provider, query string, limit int, creds Credentials) ([]ResultItem, error) {
	cctx, cancel := context.WithTimeout(ctx, perProviderTimeout)
	defer cancel()

	type out struct {
		items []ResultItem
		err   error
	}
	ch := make(chan out, 1)
	go func() {
		items, err := p.Search(cctx, query, limit, creds)
		ch <- out{items, err}
	}()

	select {
	case <-cctx.Done():
		return nil, cctx.Err()
	case o := <-ch:
		return o.items, o.err
	}
}

func (reg *Registry) classifyAndMark(provider string, err error) {
	if reg.rateLimit == nil || err == nil {
		return
	}
	switch e := err.(type) {
	case rateLimitedErr:
		reg.rateLimit.Mark(e.provider, ratelimit.DefaultDuration)
	case fatalProviderErr:
		reg.rateLimit.Mark(e.provider, 24*time.Hour)
	default:
		log.Debug().Err(err).Str("provider", provider).Msg("search: provider error (transient, not marked)")
	}
}

func (reg *Registry) attachTrust(ctx context.Context, item *ResultItem) {
	if item.URL == "" {
		return
	}
	domain, err := trust.DomainFromURL(item.URL)
	if err != nil || domain == "" {
		return
	}
	profile := reg.trust.GetOrCreate(ctx, domain, item.URL)
	item.TrustScore = profile.TrustScore
}
