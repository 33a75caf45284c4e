// Package attention implements causal multi-head self-attention and the
// post-norm transformer block built from it.
//
// Every forward pass is a pure function of the input and the owned weight
// tensors: no state survives between calls, and the causal mask is rebuilt
// from the current sequence length on each invocation.
package attention

import (
	"fmt"
	"math"

	"deepgen/pkg/tensor"
)

// MultiHeadAttention is causal scaled dot-product attention with the
// embedding width split across independent head subspaces.
//
// All four projection matrices are (embed, embed) and are owned by this
// component for its lifetime; training mutates them externally.
type MultiHeadAttention struct {
	EmbedDim int
	NumHeads int
	HeadDim  int

	WQuery  *tensor.Tensor
	WKey    *tensor.Tensor
	WValue  *tensor.Tensor
	OutProj *tensor.Tensor
}

// NewMultiHeadAttention creates an attention layer with zeroed weights.
// The embedding width must divide evenly into numHeads subspaces.
func NewMultiHeadAttention(embedDim, numHeads int) (*MultiHeadAttention, error) {
	if numHeads <= 0 {
		return nil, fmt.Errorf("head count must be positive, got %d", numHeads)
	}
	if embedDim%numHeads != 0 {
		return nil, fmt.Errorf("embedding width %d is not divisible by head count %d",
			embedDim, numHeads)
	}

	return &MultiHeadAttention{
		EmbedDim: embedDim,
		NumHeads: numHeads,
		HeadDim:  embedDim / numHeads,
		WQuery:   tensor.New(embedDim, embedDim),
		WKey:     tensor.New(embedDim, embedDim),
		WValue:   tensor.New(embedDim, embedDim),
		OutProj:  tensor.New(embedDim, embedDim),
	}, nil
}

// Forward computes causal multi-head self-attention.
//
// Input shape: (batch, seq, embed). Output shape: (batch, seq, embed).
//
// Steps:
//  1. Project into Q, K, V and split into (batch, heads, seq, head_dim).
//  2. Scores per head: Q @ K^T -> (batch, heads, seq, seq).
//  3. Add the causal mask (-Inf strictly above the diagonal).
//  4. Scale by 1/sqrt(embed). The scale uses the full embedding width, not
//     the per-head width.
//  5. Softmax along the key axis; masked entries become exactly zero.
//  6. Weighted sum of values, heads merged back to (batch, seq, embed).
//  7. Output projection.
func (m *MultiHeadAttention) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, embed), got shape %v", x.Shape)
	}
	batchSize, seqLen, embedDim := x.Shape[0], x.Shape[1], x.Shape[2]
	if embedDim != m.EmbedDim {
		return nil, fmt.Errorf("input width %d does not match attention width %d", embedDim, m.EmbedDim)
	}

	Q, err := m.project(x, m.WQuery, batchSize, seqLen)
	if err != nil {
		return nil, fmt.Errorf("query projection: %w", err)
	}
	K, err := m.project(x, m.WKey, batchSize, seqLen)
	if err != nil {
		return nil, fmt.Errorf("key projection: %w", err)
	}
	V, err := m.project(x, m.WValue, batchSize, seqLen)
	if err != nil {
		return nil, fmt.Errorf("value projection: %w", err)
	}

	// Scores: (batch, heads, seq, head_dim) @ (batch, heads, head_dim, seq)
	KT, err := K.Transpose(2, 3)
	if err != nil {
		return nil, fmt.Errorf("transposing keys: %w", err)
	}
	scores, err := tensor.Matmul(Q, KT)
	if err != nil {
		return nil, fmt.Errorf("computing scores: %w", err)
	}

	masked, err := tensor.Add(scores, tensor.CausalMask(seqLen))
	if err != nil {
		return nil, fmt.Errorf("applying causal mask: %w", err)
	}
	masked = masked.Scale(float32(1.0 / math.Sqrt(float64(m.EmbedDim))))

	weights, err := tensor.SoftmaxLast(masked)
	if err != nil {
		return nil, fmt.Errorf("normalizing scores: %w", err)
	}

	// Context: (batch, heads, seq, seq) @ (batch, heads, seq, head_dim)
	context, err := tensor.Matmul(weights, V)
	if err != nil {
		return nil, fmt.Errorf("weighting values: %w", err)
	}

	// Merge heads back next to the sequence axis and flatten.
	context, err = context.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("merging heads: %w", err)
	}
	context, err = context.Reshape(batchSize, seqLen, m.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("merging heads: %w", err)
	}

	out, err := tensor.Matmul(context, m.OutProj)
	if err != nil {
		return nil, fmt.Errorf("output projection: %w", err)
	}
	return out, nil
}

// project applies a (embed, embed) weight matrix and splits the result
// into per-head subspaces: (batch, heads, seq, head_dim).
func (m *MultiHeadAttention) project(x, w *tensor.Tensor, batchSize, seqLen int) (*tensor.Tensor, error) {
	p, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, err
	}
	p, err = p.Reshape(batchSize, seqLen, m.NumHeads, m.HeadDim)
	if err != nil {
		return nil, err
	}
	return p.Transpose(1, 2)
}
