package tensor

import "math"

// GELU applies the tanh approximation of the Gaussian Error Linear Unit
// element-wise:
//
//	GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
//
// Reference: https://arxiv.org/abs/1606.08415
func (t *Tensor) GELU() *Tensor {
	const (
		sqrt2OverPi = 0.7978845608 // sqrt(2/pi)
		coeff       = 0.044715
	)

	out := New(t.Shape...)
	for i, x := range t.Data {
		inner := float64(x + coeff*x*x*x)
		out.Data[i] = 0.5 * x * (1 + float32(math.Tanh(sqrt2OverPi*inner)))
	}
	return out
}
