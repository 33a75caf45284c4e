package attention

import (
	"fmt"

	"deepgen/pkg/tensor"
)

// FeedForward is the position-wise two-layer network a block applies after
// attention. Implemented by the model package.
type FeedForward interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Normalizer is a normalization layer applied after each residual add.
// Implemented by the model package's LayerNorm.
type Normalizer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Block is a single post-norm transformer block.
//
// The order is fixed: attend, residual add, normalize, feed-forward,
// residual add, normalize. There is no dropout and no alternative
// (pre-norm) ordering.
type Block struct {
	Attn  *MultiHeadAttention
	FF    FeedForward
	Norm1 Normalizer // after the attention residual
	Norm2 Normalizer // after the feed-forward residual
}

// NewBlock wires the four sublayers into a block. Each block owns its
// sublayers; nothing is shared between blocks.
func NewBlock(attn *MultiHeadAttention, ff FeedForward, norm1, norm2 Normalizer) *Block {
	return &Block{
		Attn:  attn,
		FF:    ff,
		Norm1: norm1,
		Norm2: norm2,
	}
}

// Forward applies the block to a (batch, seq, embed) tensor, preserving
// its shape.
func (b *Block) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	attnOut, err := b.Attn.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("attention sublayer: %w", err)
	}
	x, err = tensor.Add(x, attnOut)
	if err != nil {
		return nil, fmt.Errorf("attention residual: %w", err)
	}
	x, err = b.Norm1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("post-attention norm: %w", err)
	}

	ffOut, err := b.FF.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("feed-forward sublayer: %w", err)
	}
	x, err = tensor.Add(x, ffOut)
	if err != nil {
		return nil, fmt.Errorf("feed-forward residual: %w", err)
	}
	x, err = b.Norm2.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("post-feed-forward norm: %w", err)
	}
	return x, nil
}
