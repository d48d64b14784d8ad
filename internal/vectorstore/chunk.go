// Package vectorstore implements the Content/Vector Subsystem (C4): a
// SQLite-backed hybrid vector + full-text table, a recursive character
// chunker, and an L2-normalized embedding client. Query-building and CRUD
// shape are grounded on the teacher's postgres_vector.go/postgres_search.go
// hybrid-search pattern (read before deletion), adapted from pgvector to a
// BLOB-encoded vector column plus SQLite FTS5.
package vectorstore

import "strings"

// recursiveSeparators are tried in priority order: paragraph breaks first,
// then line breaks, then sentence-ish breaks, then plain whitespace,
// falling back to hard character windows when no separator helps the
// chunk fit. This is "recursive character splitting ... word-targeted but
// expressed in characters" per spec.md §4.4.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunk splits text into pieces of at most size runes, overlapping
// consecutive chunks by overlap runes, preferring to break at the
// separator boundaries above rather than mid-word. Grounded on
// internal/textsplitters/fixed.go's rune-boundary-safe fixed-window
// splitter, which is used here as the final fallback when no separator
// keeps a candidate chunk under size.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := splitRecursive(text, size, recursiveSeparators)
	return mergeWithOverlap(pieces, size, overlap)
}

// splitRecursive breaks text on the first separator that yields pieces all
// under size runes; pieces still too long are split again using the
// remaining separators, and ultimately by fixed rune windows.
func splitRecursive(text string, size int, separators []string) []string {
	if runeLen(text) <= size {
		return []string{text}
	}
	if len(separators) == 0 {
		return fixedRuneWindows(text, size, 0)
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, size, separators[1:])
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if runeLen(p) > size {
			out = append(out, splitRecursive(p, size, separators[1:])...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// mergeWithOverlap packs adjacent small pieces together up to size runes
// (so a chunker that split on ". " doesn't emit one chunk per sentence),
// carrying `overlap` runes of trailing context from chunk N into chunk N+1.
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	if len(pieces) == 0 {
		return nil
	}
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
		}
	}

	for _, p := range pieces {
		candidate := current.String()
		if candidate != "" {
			candidate += " "
		}
		candidate += p
		if runeLen(candidate) > size && current.Len() > 0 {
			flush()
			tail := trailingRunes(current.String(), overlap)
			current.Reset()
			current.WriteString(tail)
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(p)
		} else {
			current.Reset()
			current.WriteString(candidate)
		}
	}
	flush()

	// Enforce the hard cap: a single oversized piece with no separators
	// left still needs a fixed-window split.
	var final []string
	for _, c := range chunks {
		if runeLen(c) > size {
			final = append(final, fixedRuneWindows(c, size, overlap)...)
		} else {
			final = append(final, c)
		}
	}
	return final
}

func runeLen(s string) int { return len([]rune(s)) }

func trailingRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) == 0 {
		return ""
	}
	if n >= len(r) {
		return s
	}
	return string(r[len(r)-n:])
}

// fixedRuneWindows is the last-resort splitter for a span with no useful
// separator, matching internal/textsplitters/fixed.go's rune-safe windowing.
func fixedRuneWindows(text string, size, overlap int) []string {
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}
	var out []string
	for start := 0; start < len(r); start += step {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[start:end]))
		if end == len(r) {
			break
		}
	}
	return out
}
