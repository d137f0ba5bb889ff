// Package indexer builds the vector index from library documents: chunking,
// embedding, and a cancellable background run with progress tracking.
package indexer

// Chunker splits extracted document text into fixed-size overlapping windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Invalid values fall back to size 512 and
// overlap 0; overlap is clamped below size so the window always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into windows of size runes advancing by size-overlap.
// The final window is truncated at the end of the text, and no window starts
// at or past a previous window's end of text. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	step := c.size - c.overlap
	if step < 1 {
		step = 1
	}
	var chunks []string
	for start := 0; start < n; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}
