package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// harmlessStderrPatterns filters benign noise emitted by underlying HTML
// parsers/TLS stacks that would otherwise look like scrape failures.
// Grounded on spec.md §4.3.2's "many benign 'harmless blog stderr'
// patterns are filtered".
var harmlessStderrPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)deprecat`),
	regexp.MustCompile(`(?i)x509: certificate`),
	regexp.MustCompile(`(?i)tls: failed to verify certificate`),
	regexp.MustCompile(`(?i)use of closed network connection`),
	regexp.MustCompile(`(?i)^\s*$`),
}

func isHarmlessStderrLine(line string) bool {
	for _, pat := range harmlessStderrPatterns {
		if pat.MatchString(line) {
			return true
		}
	}
	return false
}

// filterStderr splits stderr into lines, drops blank/harmless ones, and
// returns the remainder as a single structured warning string (empty if
// nothing of note remains).
func filterStderr(stderr []byte) string {
	lines := strings.Split(string(stderr), "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" || isHarmlessStderrLine(l) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "; ")
}

// Subprocess invokes an external scrape worker command (per spec.md
// §4.3.2, "scraping runs in an isolated subprocess to insulate the service
// from crashes, hangs, and memory growth"). command is typically the path
// to the cmd/scrapeworker binary shipped alongside the server.
type Subprocess struct {
	Command string
	Timeout time.Duration
}

// NewSubprocess builds a Subprocess runner. timeout <= 0 uses a 45s default.
func NewSubprocess(command string, timeout time.Duration) *Subprocess {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Subprocess{Command: command, Timeout: timeout}
}

// ScrapeURL runs the configured worker command against url under
// sp.Timeout, terminating it early if ctx is cancelled. A subprocess
// crash, timeout, or non-JSON stdout produces a content-less Result with
// an "error" key in SourceInfo rather than a Go error, per spec.md
// §4.3.4 ("per-URL, non-fatal").
func (sp *Subprocess) ScrapeURL(ctx context.Context, rawURL string, sourceInfo map[string]any) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, sp.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, sp.Command, rawURL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if warning := filterStderr(stderr.Bytes()); warning != "" {
		log.Warn().Str("url", rawURL).Str("stderr", warning).Msg("scrape: subprocess emitted warnings")
	}

	merged := mergeSourceInfo(sourceInfo)

	if cctx.Err() != nil {
		merged["error"] = "scrape subprocess timeout"
		return &Result{SourceInfo: merged}, nil
	}
	if runErr != nil {
		merged["error"] = fmt.Sprintf("scrape subprocess failed: %v", runErr)
		return &Result{SourceInfo: merged}, nil
	}

	var payload workerPayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		merged["error"] = "scrape subprocess produced non-JSON output"
		return &Result{SourceInfo: merged}, nil
	}
	if payload.Error != "" {
		merged["error"] = payload.Error
	}
	for k, v := range payload.Metadata {
		merged[k] = v
	}

	return &Result{
		Content:    payload.Content,
		Links:      payload.Links,
		Title:      payload.Title,
		SourceInfo: merged,
	}, nil
}

func mergeSourceInfo(src map[string]any) map[string]any {
	merged := make(map[string]any, len(src)+1)
	for k, v := range src {
		merged[k] = v
	}
	return merged
}
