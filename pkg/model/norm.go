package model

import (
	"fmt"
	"math"

	"deepgen/pkg/tensor"
)

// LayerNorm normalizes each position's vector across the feature
// dimension and applies a learned scale (gamma) and shift (beta):
//
//	y = (x - mean) / sqrt(var + eps) * gamma + beta
type LayerNorm struct {
	Gamma *tensor.Tensor // (dim,), initialized to ones
	Beta  *tensor.Tensor // (dim,), initialized to zeros
	Eps   float32
}

// NewLayerNorm creates a LayerNorm over the given feature width.
func NewLayerNorm(dim int, eps float32) *LayerNorm {
	gamma := tensor.New(dim)
	for i := range gamma.Data {
		gamma.Data[i] = 1
	}
	return &LayerNorm{
		Gamma: gamma,
		Beta:  tensor.New(dim),
		Eps:   eps,
	}
}

// Forward normalizes along the last dimension, which must match the
// configured feature width. Any leading shape is accepted.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot normalize a scalar tensor")
	}
	dim := x.Shape[len(x.Shape)-1]
	if dim != len(ln.Gamma.Data) {
		return nil, fmt.Errorf("feature width %d does not match layer norm width %d",
			dim, len(ln.Gamma.Data))
	}

	out := tensor.New(x.Shape...)
	rows := len(x.Data) / dim
	for r := 0; r < rows; r++ {
		row := x.Data[r*dim : (r+1)*dim]

		var mean float32
		for _, v := range row {
			mean += v
		}
		mean /= float32(dim)

		var variance float32
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float32(dim)

		invStd := float32(1.0 / math.Sqrt(float64(variance+ln.Eps)))
		for i, v := range row {
			out.Data[r*dim+i] = (v-mean)*invStd*ln.Gamma.Data[i] + ln.Beta.Data[i]
		}
	}
	return out, nil
}
