package channel

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the segment size used when a channel does not
// configure its own.
const DefaultChunkLimit = 4000

// breakThreshold is the fraction of the limit below which a newline or
// space break point is rejected in favor of a harder cut.
const breakThreshold = 2 // limit / breakThreshold == 50%

// Segment splits text into an ordered sequence of chunks, each at most limit
// bytes, preserving reading order. It prefers to break on the last newline
// before the limit, then the last space, and only hard-cuts when neither
// falls in the second half of the window. Hard cuts never split a UTF-8
// sequence. Leading whitespace is trimmed from each remainder.
//
// Segment is a pure function: the same text and limit always yield the same
// chunks. A limit <= 0 falls back to DefaultChunkLimit.
func Segment(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if len(text) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cut := breakPoint(remaining, limit)
		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], " \t\n\r")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// breakPoint finds the byte offset to cut at, searching backward from limit.
func breakPoint(s string, limit int) int {
	window := s[:limit]
	min := limit / breakThreshold

	if i := strings.LastIndexByte(window, '\n'); i >= min {
		return i
	}
	if i := strings.LastIndexByte(window, ' '); i >= min {
		return i
	}

	// Hard cut: walk back to a rune boundary so multi-byte sequences
	// are never split.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	return cut
}
