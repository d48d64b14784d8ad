// Package ratelimit implements the process-wide provider ignore list: a
// small JSON file mapping provider name to an expiry timestamp, guarded by
// an in-process mutex. Providers present and unexpired are skipped by the
// search fan-out.
package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDuration is used by Mark when the caller does not specify one.
const DefaultDuration = 30 * time.Minute

// Registry is a JSON-file-backed, mutex-guarded provider ignore list.
type Registry struct {
	mu              sync.Mutex
	path            string
	defaultDuration time.Duration
}

// New constructs a Registry backed by path, creating its parent directory
// on first use. defaultDuration falls back to DefaultDuration when zero.
func New(path string, defaultDuration time.Duration) *Registry {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	r := &Registry{path: path, defaultDuration: defaultDuration}
	r.ensureDir()
	return r
}

func (r *Registry) ensureDir() {
	dir := filepath.Dir(r.path)
	if dir == "" || dir == "." {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("ratelimit: failed to create ignore-list directory")
		}
	}
}

// Mark adds or updates provider in the ignore list with an expiry of
// now+duration. duration <= 0 uses the registry's default.
func (r *Registry) Mark(provider string, duration time.Duration) {
	if provider == "" {
		log.Warn().Msg("ratelimit: attempted to mark provider with no name")
		return
	}
	if duration <= 0 {
		duration = r.defaultDuration
	}
	expiry := time.Now().UTC().Add(duration)

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.loadLocked()
	list[provider] = expiry.Format(time.RFC3339Nano)
	r.saveLocked(list)
	log.Info().Str("provider", provider).Time("expires_at", expiry).Msg("ratelimit: provider ignored")
}

// IsIgnored reports whether provider is currently within its ignore window.
func (r *Registry) IsIgnored(provider string) bool {
	active := r.ActiveIgnored()
	_, ok := active[provider]
	return ok
}

// ActiveIgnored returns the currently ignored providers and their expiry
// times, pruning (and rewriting the file for) any expired or malformed
// entries.
func (r *Registry) ActiveIgnored() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw := r.loadLocked()
	now := time.Now().UTC()
	active := make(map[string]time.Time, len(raw))
	dirty := false

	for provider, iso := range raw {
		expiry, err := time.Parse(time.RFC3339Nano, iso)
		if err != nil {
			expiry, err = time.Parse(time.RFC3339, iso)
		}
		if err != nil {
			dirty = true
			continue
		}
		if expiry.After(now) {
			active[provider] = expiry
		} else {
			dirty = true
		}
	}
	if dirty {
		pruned := make(map[string]string, len(active))
		for provider, expiry := range active {
			pruned[provider] = expiry.Format(time.RFC3339Nano)
		}
		r.saveLocked(pruned)
	}
	return active
}

// Remove deletes provider from the ignore list, if present.
func (r *Registry) Remove(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.loadLocked()
	if _, ok := list[provider]; !ok {
		return
	}
	delete(list, provider)
	r.saveLocked(list)
}

// Clear empties the ignore list.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked(map[string]string{})
}

func (r *Registry) loadLocked() map[string]string {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return map[string]string{}
	}
	var list map[string]string
	if err := json.Unmarshal(data, &list); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("ratelimit: malformed ignore list, resetting")
		return map[string]string{}
	}
	if list == nil {
		list = map[string]string{}
	}
	return list
}

func (r *Registry) saveLocked(list map[string]string) {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("ratelimit: failed to marshal ignore list")
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("ratelimit: failed to write ignore list")
	}
}
