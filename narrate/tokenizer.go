// Package narrate implements synchronized speech narration with per-word
// highlighting. It aligns timing signals from heterogeneous speech backends
// against a tokenized text stream and drives highlight callbacks with
// monotonically non-decreasing word indices.
package narrate

import (
	"sort"
	"strings"
	"unicode"
)

// Token is one unit of narratable text.
type Token struct {
	Index         int    // Zero-based position in the token sequence
	Text          string // The literal word or punctuation fragment
	IsPunctuation bool   // Pure punctuation, affects spacing only
}

// Sanitize replaces characters outside the safe set with a single space,
// collapses whitespace runs, and trims. The safe set is letters, digits,
// the punctuation .,!?;:'"()- and whitespace.
//
// The same sanitized text must be fed to both the speech backend and
// Tokenize so that token index i corresponds, by word order, to the i-th
// word the backend actually speaks. Sanitizing before splitting is what
// keeps the two aligned; splitting first and sanitizing per token can merge
// or destroy tokens.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isSafeRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', ';', ':', '\'', '"', '(', ')', '-':
		return true
	}
	return false
}

// Tokenize sanitizes the text and splits it into an ordered token sequence.
// Empty fragments are dropped. The function is pure: the same input always
// yields the same token sequence.
func Tokenize(text string) []Token {
	fields := strings.Fields(Sanitize(text))
	tokens := make([]Token, len(fields))
	for i, f := range fields {
		tokens[i] = Token{
			Index:         i,
			Text:          f,
			IsPunctuation: isPunctuationToken(f),
		}
	}
	return tokens
}

// isPunctuationToken reports whether a token consists solely of
// punctuation. Classification controls rendering spacing only; it has no
// effect on synchronization.
func isPunctuationToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// tokenOffsets returns the starting character offset of each token within
// the canonical sanitized string (tokens joined by single spaces). Offsets
// are counted in runes because streaming backends report positions in the
// text they were sent, not in encoded bytes.
func tokenOffsets(tokens []Token) []int {
	offsets := make([]int, len(tokens))
	off := 0
	for i, t := range tokens {
		offsets[i] = off
		off += len([]rune(t.Text)) + 1
	}
	return offsets
}

// tokenAtOffset maps a raw character offset to the token whose range
// contains it, via binary search over the offset prefix sums. Offsets past
// the last token map to the last token; negative offsets map to the first.
func tokenAtOffset(offsets []int, off int) int {
	if len(offsets) == 0 {
		return -1
	}
	if off <= 0 {
		return 0
	}
	i := sort.Search(len(offsets), func(i int) bool { return offsets[i] > off })
	return i - 1
}
