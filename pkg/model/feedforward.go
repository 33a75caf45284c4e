package model

import (
	"fmt"

	"deepgen/pkg/tensor"
)

// FeedForward is the position-wise two-layer network inside each block:
// an up-projection to the hidden width, GELU, and a down-projection back
// to the embedding width.
type FeedForward struct {
	FC1 *tensor.Tensor // (embed, hidden)
	FC2 *tensor.Tensor // (hidden, embed)
}

// NewFeedForward allocates the two projection matrices.
func NewFeedForward(embedDim, hiddenDim int) *FeedForward {
	return &FeedForward{
		FC1: tensor.New(embedDim, hiddenDim),
		FC2: tensor.New(hiddenDim, embedDim),
	}
}

// Forward maps (batch, seq, embed) through the hidden width and back,
// preserving the input shape.
func (ff *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, fmt.Errorf("expected at least 2D input, got shape %v", x.Shape)
	}
	if x.Shape[len(x.Shape)-1] != ff.FC1.Shape[0] {
		return nil, fmt.Errorf("input width %d does not match feed-forward width %d",
			x.Shape[len(x.Shape)-1], ff.FC1.Shape[0])
	}

	hidden, err := tensor.Matmul(x, ff.FC1)
	if err != nil {
		return nil, fmt.Errorf("up-projection: %w", err)
	}
	out, err := tensor.Matmul(hidden.GELU(), ff.FC2)
	if err != nil {
		return nil, fmt.Errorf("down-projection: %w", err)
	}
	return out, nil
}
