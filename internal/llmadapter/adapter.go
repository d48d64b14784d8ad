package llmadapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Adapter is the C5 LLM Reasoning Adapter: a single execute() primitive
// that every graph stage calls instead of talking to a provider
// directly. It owns prompt trimming, provider routing, JSON-mode repair,
// retry/backoff, per-call caching and token accounting, per spec.md
// §4.5. Grounded on internal/llm/provider.go's Provider interface shape
// (one execution surface hiding provider-specific transports).
type Adapter struct {
	cfg   Config
	cache *resultCache
}

// New builds an Adapter with the given Config; a zero Config uses
// spec.md §4.5's documented defaults (2 retries, 200-token safety
// buffer, 1024-token minimum completion reservation, 1s initial
// backoff).
func New(cfg Config) *Adapter {
	if cfg == (Config{}) {
		cfg = defaultConfig()
	}
	return &Adapter{cfg: cfg, cache: newResultCache(defaultCacheSize, defaultCacheTTL)}
}

// Execute runs req end to end: cache lookup, prompt trimming, provider
// call with retry/backoff, JSON repair when ExpectedFormat is json, and
// token-count fallback, returning a Result that is never nil and whose
// Error field (not a Go error) carries a terminal failure for the calling
// stage to inspect; both LLM stages in internal/graph treat a set Error
// as fatal for the task.
func (a *Adapter) Execute(ctx context.Context, req Request) Result {
	if cached, ok := a.cache.get(req); ok {
		return cached
	}

	prompt := trimPrompt(req.Prompt, req.ModelInfo.ContextWindow, a.cfg.SafetyBufferTokens, a.cfg.MinCompletionTokens)
	caller := callerForProvider(req.ModelInfo.Provider)
	jsonMode := req.ExpectedFormat == FormatJSON

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Error: "cancelled: " + err.Error()}
		}

		comp, err := caller.complete(ctx, req.ModelInfo.Name, prompt, req.ModelInfo.Temperature, jsonMode, req.Credentials)
		if err != nil {
			lastErr = err
			pe, ok := err.(*providerError)
			if !ok {
				pe = newRetryableErr(err.Error())
			}
			if pe.kind == errAbort {
				break
			}
			if attempt == a.cfg.MaxRetries {
				break
			}
			delay := a.cfg.InitialBackoff
			if pe.kind == errRateLimited && pe.retryAfter > 0 {
				delay = pe.retryAfter
			} else {
				delay = backoffDelay(attempt, a.cfg.InitialBackoff)
			}
			log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Str("provider", req.ModelInfo.Provider).Msg("llmadapter: retrying after provider error")
			if !sleepOrCancelled(ctx, delay) {
				return Result{Error: "cancelled during backoff"}
			}
			continue
		}

		// finish_reason == "length" with no content is an abort condition
		// per spec.md §4.5 point 4: the model ran out of room and retrying
		// the same prompt would just repeat the truncation.
		if comp.finishReason == "length" && comp.content == "" {
			lastErr = newAbortErr("provider truncated response with empty content")
			break
		}

		result := a.finalize(comp, jsonMode)
		if result.Error == "" {
			a.cache.set(req, result)
			return result
		}
		// JSON repair failed to produce valid JSON; retry the call itself
		// (the model may produce well-formed JSON on a fresh attempt)
		// unless we're out of attempts.
		lastErr = newRetryableErr(result.Error)
		if attempt == a.cfg.MaxRetries {
			return result
		}
		delay := backoffDelay(attempt, a.cfg.InitialBackoff)
		if !sleepOrCancelled(ctx, delay) {
			return Result{Error: "cancelled during backoff"}
		}
	}

	msg := "llm call failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return Result{Error: msg}
}

// finalize applies JSON repair (when requested) and the token-count
// fallback to a raw provider completion.
func (a *Adapter) finalize(comp completion, jsonMode bool) Result {
	usage := comp.usage
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = approxCompletionTokens(comp.content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	output := comp.content
	if jsonMode {
		repaired := repairJSON(output)
		var js json.RawMessage
		if err := json.Unmarshal([]byte(repaired), &js); err != nil {
			return Result{Error: "json repair failed: " + err.Error(), Usage: usage}
		}
		if !isJSONObjectOrArray(js) {
			return Result{Error: "json repair produced a bare scalar, not an object or array", Usage: usage}
		}
		output = repaired
	}
	return Result{Output: output, Usage: usage}
}

// sleepOrCancelled blocks for d or until ctx is cancelled, returning
// false in the latter case.
func sleepOrCancelled(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
