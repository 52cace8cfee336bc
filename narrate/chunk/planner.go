// Package chunk splits long texts into backend-sized pieces along sentence
// boundaries and plays them as a sequence of highlighting sessions.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/francktshibala/bookbridge-narrator/narrate"
)

// Chunk is one playable piece of a longer text.
type Chunk struct {
	Index int

	// Original is the verbatim slice of the source text, with
	// surrounding whitespace trimmed. Inner whitespace is untouched, so
	// joining the chunks with the whitespace that separated them
	// reconstructs the source.
	Original string

	// Sanitized is the exact string to hand to the speech backend. It
	// matches what the session manager tokenizes for this chunk.
	Sanitized string

	// Oversized marks a single sentence that exceeds the size limit on
	// its own. It is sent to the backend uncut rather than broken
	// mid-sentence.
	Oversized bool
}

// WordCount returns the number of tokens the chunk narrates.
func (c Chunk) WordCount() int {
	return len(strings.Fields(c.Sanitized))
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

// Plan splits text into chunks whose sanitized form stays within limit
// characters, cutting only at sentence boundaries. Sentences longer than
// the limit become their own oversized chunk. A non-positive limit yields
// a single chunk. Chunks that sanitize to nothing are dropped.
func Plan(text string, limit int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit <= 0 {
		return appendChunk(nil, strings.TrimSpace(text))
	}

	var chunks []Chunk
	pending := span{-1, -1} // accumulated sentences for the current chunk

	for _, s := range sentences(text) {
		if sanitizedLen(text[s.start:s.end]) > limit {
			// Flush whatever was accumulating, then emit the long
			// sentence on its own.
			if pending.start >= 0 {
				chunks = appendChunk(chunks, text[pending.start:pending.end])
				pending = span{-1, -1}
			}
			chunks = appendOversized(chunks, text[s.start:s.end])
			continue
		}

		if pending.start < 0 {
			pending = s
			continue
		}
		if sanitizedLen(text[pending.start:s.end]) > limit {
			chunks = appendChunk(chunks, text[pending.start:pending.end])
			pending = s
			continue
		}
		pending.end = s.end
	}
	if pending.start >= 0 {
		chunks = appendChunk(chunks, text[pending.start:pending.end])
	}
	return chunks
}

func sanitizedLen(text string) int {
	return utf8.RuneCountInString(narrate.Sanitize(text))
}

func appendChunk(chunks []Chunk, text string) []Chunk {
	sanitized := narrate.Sanitize(text)
	if sanitized == "" {
		return chunks
	}
	return append(chunks, Chunk{
		Index:     len(chunks),
		Original:  text,
		Sanitized: sanitized,
	})
}

func appendOversized(chunks []Chunk, text string) []Chunk {
	before := len(chunks)
	chunks = appendChunk(chunks, text)
	if len(chunks) > before {
		chunks[len(chunks)-1].Oversized = true
	}
	return chunks
}

// sentences splits text into whitespace-trimmed sentence spans. A sentence
// ends at a run of '.', '!' or '?' followed by whitespace or end of input.
// Text with no terminator at all comes back as a single span.
func sentences(text string) []span {
	var spans []span
	start := 0

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isTerminator(r) {
			i += size
			continue
		}
		// Consume the full terminator run ("...", "?!").
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !isTerminator(r) {
				break
			}
			i += size
		}
		atBoundary := i >= len(text)
		if !atBoundary {
			next, _ := utf8.DecodeRuneInString(text[i:])
			atBoundary = unicode.IsSpace(next)
		}
		if atBoundary {
			if s, ok := trimSpan(text, start, i); ok {
				spans = append(spans, s)
			}
			start = i
		}
	}
	if s, ok := trimSpan(text, start, len(text)); ok {
		spans = append(spans, s)
	}
	return spans
}

// trimSpan narrows [start,end) past surrounding whitespace, reporting
// whether anything is left.
func trimSpan(text string, start, end int) (span, bool) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if start >= end {
		return span{}, false
	}
	return span{start, end}, true
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
