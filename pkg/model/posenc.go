package model

import (
	"fmt"
	"math"

	"deepgen/pkg/tensor"
)

// PositionalEncoding is the fixed sinusoidal position signal added to
// token embeddings. The table is computed once for the maximum supported
// length; it is not a learned parameter.
type PositionalEncoding struct {
	Table *tensor.Tensor // (maxLen, dim)
}

// NewPositionalEncoding precomputes the encoding table. Even dimensions
// carry sin(pos / 10000^(2i/dim)), odd dimensions the matching cosine, so
// frequencies are geometrically spaced pairwise.
func NewPositionalEncoding(maxLen, dim int) *PositionalEncoding {
	table := tensor.New(maxLen, dim)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i++ {
			denom := math.Pow(10000, float64(2*(i/2))/float64(dim))
			angle := float64(pos) / denom
			if i%2 == 0 {
				table.Data[pos*dim+i] = float32(math.Sin(angle))
			} else {
				table.Data[pos*dim+i] = float32(math.Cos(angle))
			}
		}
	}
	return &PositionalEncoding{Table: table}
}

// MaxLen returns the longest sequence the table covers.
func (pe *PositionalEncoding) MaxLen() int {
	return pe.Table.Shape[0]
}

// AddTo adds the position signal to a (batch, seq, dim) tensor. Sequences
// longer than the precomputed table are rejected.
func (pe *PositionalEncoding) AddTo(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D input (batch, seq, dim), got shape %v", x.Shape)
	}
	batchSize, seqLen, dim := x.Shape[0], x.Shape[1], x.Shape[2]
	if dim != pe.Table.Shape[1] {
		return nil, fmt.Errorf("embedding width %d does not match encoding width %d",
			dim, pe.Table.Shape[1])
	}
	if seqLen > pe.MaxLen() {
		return nil, fmt.Errorf("sequence length %d exceeds maximum encoded length %d",
			seqLen, pe.MaxLen())
	}

	out := x.Clone()
	for b := 0; b < batchSize; b++ {
		for s := 0; s < seqLen; s++ {
			off := (b*seqLen + s) * dim
			for i := 0; i < dim; i++ {
				out.Data[off+i] += pe.Table.Data[s*dim+i]
			}
		}
	}
	return out, nil
}
