// Package model assembles the character-level language model: embedding
// lookup, sinusoidal positional encoding, a stack of post-norm transformer
// blocks, and the output projection to vocabulary logits, plus top-k
// autoregressive sampling.
package model

import "fmt"

// Config holds the architecture hyperparameters.
//
// The head count is not configured directly: it is derived as
// EmbeddingDim / HeadDim, and EmbeddingDim must divide evenly.
type Config struct {
	// VocabSize is the number of distinct token indices.
	VocabSize int

	// ContextLength is the maximum sequence length the positional
	// encoding supports. Longer inputs are rejected.
	ContextLength int

	// EmbeddingDim is the width of token embeddings.
	EmbeddingDim int

	// HeadDim is the per-head width of the attention subspaces.
	HeadDim int

	// HiddenDim is the feed-forward hidden width.
	HiddenDim int

	// NumLayers is the number of stacked transformer blocks.
	NumLayers int
}

// DefaultConfig returns a small configuration suitable for character-level
// experiments: 64-wide embeddings split into four 16-wide heads.
func DefaultConfig() Config {
	embDim := 64
	return Config{
		VocabSize:     128,
		ContextLength: 128,
		EmbeddingDim:  embDim,
		HeadDim:       16,
		HiddenDim:     4 * embDim,
		NumLayers:     4,
	}
}

// NumHeads returns the derived attention head count.
func (c Config) NumHeads() int {
	return c.EmbeddingDim / c.HeadDim
}

// Validate rejects inconsistent configurations before any tensor is
// allocated or computed.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab size must be positive, got %d", c.VocabSize)
	}
	if c.ContextLength <= 0 {
		return fmt.Errorf("context length must be positive, got %d", c.ContextLength)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding width must be positive, got %d", c.EmbeddingDim)
	}
	if c.HeadDim <= 0 {
		return fmt.Errorf("head width must be positive, got %d", c.HeadDim)
	}
	if c.EmbeddingDim%c.HeadDim != 0 {
		return fmt.Errorf("embedding width %d is not divisible by head width %d",
			c.EmbeddingDim, c.HeadDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("feed-forward hidden width must be positive, got %d", c.HiddenDim)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("layer count must be positive, got %d", c.NumLayers)
	}
	return nil
}
