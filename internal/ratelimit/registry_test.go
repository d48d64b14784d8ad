package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMarkAndIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ignore.json")
	r := New(path, 0)

	require.False(t, r.IsIgnored("duckduckgo"))
	r.Mark("duckduckgo", 50*time.Millisecond)
	require.True(t, r.IsIgnored("duckduckgo"))

	time.Sleep(80 * time.Millisecond)
	require.False(t, r.IsIgnored("duckduckgo"))

	active := r.ActiveIgnored()
	_, present := active["duckduckgo"]
	require.False(t, present)
}

func TestMarkDefaultDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.json")
	r := New(path, 10*time.Millisecond)
	r.Mark("brave", 0)
	require.True(t, r.IsIgnored("brave"))
}

func TestRemoveAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.json")
	r := New(path, time.Minute)
	r.Mark("bing", 0)
	r.Mark("google", 0)

	r.Remove("bing")
	require.False(t, r.IsIgnored("bing"))
	require.True(t, r.IsIgnored("google"))

	r.Clear()
	require.Empty(t, r.ActiveIgnored())
}

func TestMalformedFileIsPruned(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignore.json")
	r := New(path, time.Minute)
	r.Mark("wikipedia", 0)

	// Corrupt the file directly, then verify ActiveIgnored resets cleanly.
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	require.Empty(t, r.ActiveIgnored())
}
