// Package ingest turns raw document bytes into the persisted two-tier chunk
// hierarchy: extraction, whitespace normalization, summary generation,
// paragraph-level parents, overlapping embedded child windows, and one
// transactional write.
package ingest

// Default child window geometry.
const (
	DefaultChildWindow  = 500
	DefaultChildOverlap = 100
)

// Chunker splits text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

var _ Chunker = (*SlidingChunker)(nil)

// SlidingChunker produces deterministic overlapping fixed-size windows:
// start at 0, take window bytes, advance by window-overlap, repeat while
// start < len(text). It has no semantic boundary awareness and may split
// mid-sentence or mid-word; the fixed step keeps consecutive windows exactly
// window-overlap apart, which downstream ordering relies on.
type SlidingChunker struct {
	window  int
	overlap int
}

// NewSlidingChunker creates a chunker with the given window size and overlap.
// Overlap is clamped to [0, window) so the step is always positive.
func NewSlidingChunker(window, overlap int) *SlidingChunker {
	if window <= 0 {
		window = DefaultChildWindow
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window - 1
	}
	return &SlidingChunker{window: window, overlap: overlap}
}

// Chunk splits text into overlapping windows. Any non-empty text produces at
// least one chunk; the final chunk may be shorter than the window.
func (c *SlidingChunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	step := c.window - c.overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + c.window
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
