package processor

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// Rulebook chunk defaults
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 150
)

// chunkSeparators are tried in order, from paragraph breaks down to single characters
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// supplementSeparators split glossary and guidance text on lines and words only
var supplementSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping chunks, preferring paragraph and sentence boundaries
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker producing chunks of at most size characters.
// With no separators the rulebook separators are used.
func NewChunker(size, overlap int, separators ...string) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}

	if len(separators) == 0 {
		separators = chunkSeparators
	}

	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(separators),
		),
	}, nil
}

// Split returns the chunks of text. Empty or blank text yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	out := chunks[:0]
	for _, chunk := range chunks {
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}
