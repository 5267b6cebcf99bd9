package story

import (
	"errors"
	"strings"
)

// ErrInvalidLength is returned for a chunk length below one.
var ErrInvalidLength = errors.New("story: maxLength must be at least 1")

// SplitText cuts text into chunks of at most maxLength characters. Each window
// is cut after the latest sentence end (". ", "! ", "? ") or newline that keeps
// the chunk within bounds; a window without one is cut hard at maxLength.
// Chunks are trimmed and empty chunks are dropped.
func SplitText(text string, maxLength int) ([]string, error) {
	if maxLength < 1 {
		return nil, ErrInvalidLength
	}
	runes := []rune(text)
	var chunks []string
	emit := func(s []rune) {
		if c := strings.TrimSpace(string(s)); c != "" {
			chunks = append(chunks, c)
		}
	}

	start := 0
	for start < len(runes) {
		end := start + maxLength
		if end >= len(runes) {
			emit(runes[start:])
			break
		}
		if bp := lastBreakpoint(runes, start, end-1); bp >= 0 {
			emit(runes[start : bp+1])
			start = bp + 1
			continue
		}
		emit(runes[start:end])
		start = end
	}
	return chunks, nil
}

// lastBreakpoint returns the highest index in (start, limit] holding a newline
// or sentence punctuation followed by a space, or -1.
func lastBreakpoint(runes []rune, start, limit int) int {
	for i := limit; i > start; i-- {
		switch runes[i] {
		case '\n':
			return i
		case '.', '!', '?':
			if i+1 < len(runes) && runes[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}

// truncateText keeps the first chunk of text that fits in n characters.
func truncateText(text string, n int) string {
	if n < 1 {
		return ""
	}
	if runeLen(text) <= n {
		return text
	}
	chunks, err := SplitText(text, n)
	if err != nil || len(chunks) == 0 {
		return ""
	}
	return chunks[0]
}

func runeLen(s string) int {
	return len([]rune(s))
}
