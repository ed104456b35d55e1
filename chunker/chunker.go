// Package chunker splits oversized text into bounded, overlapping segments.
//
// Sizes and offsets are measured in code points (runes), never bytes, so a
// chunk boundary can never land inside a multi-byte sequence. Chunks are
// computed eagerly: Split returns the full sequence or an error.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one bounded segment of a larger text.
// Start and End are rune offsets into the original text (End exclusive).
// OverlapPrev code points at the head of Text repeat the tail of the
// previous chunk; OverlapNext code points at the tail are repeated by the
// next chunk. Both are always strictly less than the chunk's own length.
type Chunk struct {
	Text        string
	Index       int
	Total       int
	Start       int
	End         int
	OverlapPrev int
	OverlapNext int
}

// ConfigError reports an invalid chunking configuration. It indicates
// misconfiguration, not a runtime condition, and is fatal to the request.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chunker: invalid configuration: %s", e.Reason)
}

// boundaryTolerance is the fraction of targetSize the splitter will walk
// back from an exact break looking for a sentence or paragraph boundary.
const boundaryTolerance = 5

// Split divides text into chunks of at most targetSize code points, with
// each chunk after the first repeating the final overlap code points of its
// predecessor. Breaks prefer the nearest preceding sentence or paragraph
// boundary within a tolerance window; absent a boundary the break lands at
// targetSize exactly.
//
// Joining the chunks while trimming each chunk's leading OverlapPrev code
// points reconstructs the original text byte for byte.
func Split(text string, targetSize, overlap int) ([]Chunk, error) {
	if targetSize <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("target size must be positive, got %d", targetSize)}
	}
	if overlap < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap must not be negative, got %d", overlap)}
	}
	if overlap >= targetSize {
		return nil, &ConfigError{Reason: fmt.Sprintf("overlap %d must be smaller than target size %d", overlap, targetSize)}
	}

	runes := []rune(text)
	if len(runes) <= targetSize {
		return []Chunk{{
			Text:  text,
			Index: 0,
			Total: 1,
			Start: 0,
			End:   len(runes),
		}}, nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + targetSize
		last := false
		if end >= len(runes) {
			end = len(runes)
			last = true
		} else {
			end = preferBoundary(runes, start, end, overlap)
		}

		prev := 0
		if start > 0 {
			prev = overlap
		}
		chunks = append(chunks, Chunk{
			Text:        string(runes[start:end]),
			Index:       len(chunks),
			Start:       start,
			End:         end,
			OverlapPrev: prev,
		})
		if last {
			break
		}
		start = end - overlap
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
		if i < len(chunks)-1 {
			chunks[i].OverlapNext = overlap
		}
	}
	return chunks, nil
}

// Join reverses Split: it concatenates chunks, dropping each chunk's
// declared leading overlap.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		runes := []rune(c.Text)
		b.WriteString(string(runes[c.OverlapPrev:]))
	}
	return b.String()
}

// preferBoundary walks back from the exact break position looking for the
// nearest sentence or paragraph boundary. The walk is bounded by a tolerance
// window derived from the chunk size, and never shrinks the chunk to the
// point where the overlap would no longer fit strictly inside it.
func preferBoundary(runes []rune, start, end, overlap int) int {
	window := (end - start) / boundaryTolerance
	floor := end - window
	if min := start + overlap + 1; floor < min {
		floor = min
	}
	for pos := end; pos > floor; pos-- {
		if isBoundary(runes, pos) {
			return pos
		}
	}
	return end
}

// isBoundary reports whether pos is just after a sentence terminator
// followed by whitespace, or just after a paragraph break.
func isBoundary(runes []rune, pos int) bool {
	if pos < 2 || pos >= len(runes) {
		return false
	}
	prev, cur := runes[pos-1], runes[pos]
	if prev == '\n' {
		return true
	}
	if cur == ' ' || cur == '\n' || cur == '\t' {
		switch prev {
		case '.', '!', '?':
			return true
		}
	}
	return false
}
