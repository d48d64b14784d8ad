package llmadapter

import "strings"

// fallbackContextWindow is used when model_info.context_window is unset,
// per spec.md §4.5 point 2 ("falling back to 8192").
const fallbackContextWindow = 8192

// approxCharsPerToken approximates token count from character count when
// no tokenizer is wired in (character truncation is explicitly sanctioned
// by spec.md §4.5 as the "last resort" trimming strategy; we use the same
// ~4 chars/token heuristic for the character-budget calculation itself).
const approxCharsPerToken = 4

// trimPrompt reduces prompt to fit within the model's context window minus
// a safety buffer and a minimum reserved completion, per spec.md §4.5
// point 2. Trimming keeps the tail of the prompt (the most recent
// instructions/content), consistent with how the teacher's context
// budgeting favors recency.
func trimPrompt(prompt string, contextWindow, safetyBuffer, minCompletion int) string {
	if contextWindow <= 0 {
		contextWindow = fallbackContextWindow
	}
	budgetTokens := contextWindow - safetyBuffer - minCompletion
	if budgetTokens <= 0 {
		budgetTokens = contextWindow / 2
	}
	budgetChars := budgetTokens * approxCharsPerToken

	if len(prompt) <= budgetChars {
		return prompt
	}
	// Character truncation as a last resort: keep the tail.
	runes := []rune(prompt)
	if len(runes) <= budgetChars {
		return prompt
	}
	start := len(runes) - budgetChars
	return "…(truncated)…\n" + string(runes[start:])
}

// approxCompletionTokens estimates completion token count by word count,
// per spec.md §4.5 point 7's fallback when usage is missing from the
// provider response.
func approxCompletionTokens(output string) int {
	fields := strings.Fields(output)
	return len(fields)
}
