package knowledge

import "strings"

// Chunker default geometry.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Chunker splits text into overlapping windows for embedding. Window ends
// back off to the nearest sentence boundary when one sits past the midpoint
// of the window.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a chunker, falling back to the default geometry for
// non-positive values.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split chunks text into windows of at most Size characters with Overlap
// characters shared between neighbours. Empty chunks are dropped.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.Size
		sliceEnd := end
		if sliceEnd > len(text) {
			sliceEnd = len(text)
		}
		chunk := text[start:sliceEnd]

		if end < len(text) {
			boundary := strings.LastIndexByte(chunk, '.')
			if nl := strings.LastIndexByte(chunk, '\n'); nl > boundary {
				boundary = nl
			}
			if boundary > c.Size/2 {
				chunk = chunk[:boundary+1]
				end = start + boundary + 1
			}
		}

		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}

		if next := end - c.Overlap; next > start {
			start = next
		} else {
			start = end
		}
	}
	return chunks
}
