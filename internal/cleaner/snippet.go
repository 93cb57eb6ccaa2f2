package cleaner

import (
	"strings"
	"unicode/utf8"
)

// DefaultContextChars is the context window used for search snippets.
const DefaultContextChars = 100

// Snippet extracts a bounded window of text around the first occurrence of
// query (case-insensitive). When the full query is absent it falls back to
// the first matching query word; when nothing matches it returns the head of
// the text. Ellipses mark windows that do not reach a text boundary.
func Snippet(text, query string, contextChars int) string {
	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	pos := strings.Index(textLower, queryLower)
	if pos == -1 {
		for _, word := range strings.Fields(queryLower) {
			if p := strings.Index(textLower, word); p != -1 {
				pos = p
				break
			}
		}
	}

	if pos == -1 {
		head := 2 * contextChars
		if head > len(text) {
			head = len(text)
		}
		return text[:snapToRune(text, head)] + "..."
	}

	start := pos - contextChars
	if start < 0 {
		start = 0
	}
	start = snapToRune(text, start)
	end := pos + len(query) + contextChars
	if end > len(text) {
		end = len(text)
	}
	end = snapToRune(text, end)

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}

// snapToRune moves a byte index left to the nearest rune start so a window
// edge never splits a UTF-8 sequence.
func snapToRune(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
