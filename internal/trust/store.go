// Package trust implements the domain trust store (C2): a SQLite-backed
// table of per-domain trust profiles with a provisional scoring formula for
// domains seen for the first time. Query shape follows the teacher's
// postgres_vector.go/postgres_search.go CRUD pattern, adapted from pgx to
// modernc.org/sqlite since the spec mandates a SQLite-backed table.
package trust

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog/log"
)

// Profile is the persisted per-domain trust record (spec.md §3/§6).
type Profile struct {
	Domain          string
	TrustScore      float64
	IsHTTPS         bool
	AgeDays         int
	ReferenceCount  int
	TLDTypeBonus    float64
	LastScannedDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AgeLookup resolves a registered domain's age in days, normally backed by
// a WHOIS client. It is injected so tests and offline deployments can stub
// it out.
type AgeLookup func(ctx context.Context, domain string) (ageDays int, ok bool)

// Store is the SQLite-backed domain trust store.
type Store struct {
	db             *sql.DB
	privilegedTLDs map[string]bool
	ageLookup      AgeLookup

	mu       sync.Mutex
	ageCache map[string]ageCacheEntry
	ageTTL   time.Duration
}

type ageCacheEntry struct {
	ageDays   int
	ok        bool
	fetchedAt time.Time
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the domain_trust_profiles table exists. Per spec.md §5, "SQLite
// connections are opened per call and closed on exit" for the trust store;
// here a single *sql.DB is kept (Go's sql.DB already pools and lazily opens
// connections per operation, which satisfies the same intent without
// reopening the file handle on every call).
func Open(path string, privilegedTLDs []string, lookup AgeLookup, whoisCacheTTL time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trust: open sqlite: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("trust: create schema: %w", err)
	}
	tldSet := make(map[string]bool, len(privilegedTLDs))
	for _, t := range privilegedTLDs {
		tldSet[strings.ToLower(strings.TrimPrefix(t, "."))] = true
	}
	if whoisCacheTTL <= 0 {
		whoisCacheTTL = 24 * time.Hour
	}
	return &Store{
		db:             db,
		privilegedTLDs: tldSet,
		ageLookup:      lookup,
		ageCache:       make(map[string]ageCacheEntry),
		ageTTL:         whoisCacheTTL,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS domain_trust_profiles (
	domain TEXT PRIMARY KEY,
	trust_score REAL NOT NULL,
	is_https BOOLEAN NOT NULL,
	domain_age_days INTEGER,
	tld_type_bonus REAL NOT NULL DEFAULT 0,
	reference_count INTEGER NOT NULL DEFAULT 0,
	last_scanned_date TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// GetOrCreate returns the trust profile for domain, deriving it from
// sampleURL's scheme/age for a first-time row. Lookup order is exact domain
// row, then a wildcard TLD row. On DB unavailability the provisional score
// is computed and returned but not persisted; GetOrCreate never errors.
func (s *Store) GetOrCreate(ctx context.Context, domain, sampleURL string) Profile {
	domain = strings.ToLower(strings.TrimSpace(domain))

	if p, ok := s.lookupExact(ctx, domain); ok {
		s.bumpReferenceCount(ctx, domain)
		p.ReferenceCount++
		return p
	}
	if p, ok := s.lookupWildcard(ctx, domain); ok {
		return p
	}

	isHTTPS := strings.HasPrefix(strings.ToLower(sampleURL), "https://")
	ageDays, ageKnown := s.lookupAge(ctx, domain)
	bonus := s.tldBonus(domain)
	score := provisionalScore(isHTTPS, ageDays, ageKnown, bonus)

	p := Profile{
		Domain:          domain,
		TrustScore:      score,
		IsHTTPS:         isHTTPS,
		AgeDays:         ageDays,
		TLDTypeBonus:    bonus,
		ReferenceCount:  1,
		LastScannedDate: time.Now().UTC(),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	s.persist(ctx, p)
	return p
}

// provisionalScore implements spec.md §4.2's formula exactly:
// 0.4 + (0.05 if https) + (+0.10 if age>2y else -0.05 if age<6m else 0)
// + (+0.10 if privileged TLD), clamped to [0.05, 0.95], rounded to 3 decimals.
func provisionalScore(isHTTPS bool, ageDays int, ageKnown bool, tldBonus float64) float64 {
	score := 0.4
	if isHTTPS {
		score += 0.05
	}
	if ageKnown {
		switch {
		case ageDays > 2*365:
			score += 0.10
		case ageDays < 182:
			score -= 0.05
		}
	}
	if tldBonus > 0 {
		score += 0.10
	}
	if score < 0.05 {
		score = 0.05
	}
	if score > 0.95 {
		score = 0.95
	}
	return math.Round(score*1000) / 1000
}

func (s *Store) tldBonus(domain string) float64 {
	i := strings.LastIndex(domain, ".")
	if i < 0 {
		return 0
	}
	tld := domain[i+1:]
	if s.privilegedTLDs[tld] {
		return 0.1
	}
	return 0
}

func (s *Store) lookupExact(ctx context.Context, domain string) (Profile, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT domain, trust_score, is_https, domain_age_days, tld_type_bonus,
		       reference_count, last_scanned_date, created_at, updated_at
		FROM domain_trust_profiles WHERE domain = ?`, domain)
	return scanProfile(row)
}

func (s *Store) lookupWildcard(ctx context.Context, domain string) (Profile, bool) {
	i := strings.LastIndex(domain, ".")
	if i < 0 {
		return Profile{}, false
	}
	pattern := "*." + domain[i+1:]
	row := s.db.QueryRowContext(ctx, `
		SELECT domain, trust_score, is_https, domain_age_days, tld_type_bonus,
		       reference_count, last_scanned_date, created_at, updated_at
		FROM domain_trust_profiles WHERE domain = ? AND tld_type_bonus > 0`, pattern)
	return scanProfile(row)
}

func scanProfile(row *sql.Row) (Profile, bool) {
	var p Profile
	var lastScanned, created, updated sql.NullTime
	var ageDays sql.NullInt64
	err := row.Scan(&p.Domain, &p.TrustScore, &p.IsHTTPS, &ageDays, &p.TLDTypeBonus,
		&p.ReferenceCount, &lastScanned, &created, &updated)
	if err != nil {
		return Profile{}, false
	}
	p.AgeDays = int(ageDays.Int64)
	p.LastScannedDate = lastScanned.Time
	p.CreatedAt = created.Time
	p.UpdatedAt = updated.Time
	return p, true
}

func (s *Store) bumpReferenceCount(ctx context.Context, domain string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE domain_trust_profiles SET reference_count = reference_count + 1, updated_at = ?
		WHERE domain = ?`, time.Now().UTC(), domain)
	if err != nil {
		log.Warn().Err(err).Str("domain", domain).Msg("trust: failed to bump reference count")
	}
}

func (s *Store) persist(ctx context.Context, p Profile) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_trust_profiles
			(domain, trust_score, is_https, domain_age_days, tld_type_bonus,
			 reference_count, last_scanned_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			trust_score = excluded.trust_score,
			is_https = excluded.is_https,
			domain_age_days = excluded.domain_age_days,
			tld_type_bonus = excluded.tld_type_bonus,
			updated_at = excluded.updated_at`,
		p.Domain, p.TrustScore, p.IsHTTPS, p.AgeDays, p.TLDTypeBonus,
		p.ReferenceCount, p.LastScannedDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		// On unavailability the provisional score still returns to the
		// caller; only the persistence step is best-effort.
		log.Warn().Err(err).Str("domain", p.Domain).Msg("trust: failed to persist provisional profile")
	}
}

// lookupAge consults the 24h in-process cache before calling the injected
// AgeLookup (normally WHOIS-backed).
func (s *Store) lookupAge(ctx context.Context, domain string) (int, bool) {
	s.mu.Lock()
	if entry, ok := s.ageCache[domain]; ok && time.Since(entry.fetchedAt) < s.ageTTL {
		s.mu.Unlock()
		return entry.ageDays, entry.ok
	}
	s.mu.Unlock()

	if s.ageLookup == nil {
		return 0, false
	}
	ageDays, ok := s.ageLookup(ctx, domain)

	s.mu.Lock()
	s.ageCache[domain] = ageCacheEntry{ageDays: ageDays, ok: ok, fetchedAt: time.Now()}
	s.mu.Unlock()
	return ageDays, ok
}

// DomainFromURL extracts the registrable host from a URL for trust lookups.
func DomainFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("trust: no host in url %q", rawURL)
	}
	return host, nil
}
