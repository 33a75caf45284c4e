// Package tensor implements the small dense float32 tensor kernel shared
// by the model and energy packages. Data is stored flat in row-major order
// with precomputed strides; every operation returns a fresh tensor unless
// documented as a view.
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a multi-dimensional array of float32 values.
type Tensor struct {
	Data    []float32
	Shape   []int
	Strides []int
}

// rowMajorStrides computes the stride table for a row-major layout.
func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func shapeSize(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

func cloneShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

// New creates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:    make([]float32, shapeSize(shape)),
		Shape:   cloneShape(shape),
		Strides: rowMajorStrides(shape),
	}
}

// FromSlice creates a tensor that owns a copy of data, laid out in the
// given shape. The data length must match the shape exactly.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
	}
	if len(data) != shapeSize(shape) {
		return nil, fmt.Errorf("data length %d does not fit shape %v (%d elements)",
			len(data), shape, shapeSize(shape))
	}
	t := New(shape...)
	copy(t.Data, data)
	return t, nil
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return shapeSize(t.Shape)
}

// NumDims returns the rank of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// offset converts multi-dimensional indices to a flat offset. Out-of-range
// indices are programmer errors and panic.
func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("got %d indices for a rank-%d tensor", len(indices), len(t.Shape)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of range for dimension %d (size %d)", idx, i, t.Shape[i]))
		}
		off += idx * t.Strides[i]
	}
	return off
}

// At returns the value at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.offset(indices)]
}

// Set stores v at the given indices.
func (t *Tensor) Set(v float32, indices ...int) {
	t.Data[t.offset(indices)] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// Reshape returns a view over the same data with a new shape. The element
// count must be unchanged.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if shapeSize(shape) != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v",
			t.Shape, len(t.Data), shape)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   cloneShape(shape),
		Strides: rowMajorStrides(shape),
	}, nil
}

// Transpose returns a copy with dimensions a and b exchanged.
func (t *Tensor) Transpose(a, b int) (*Tensor, error) {
	if a < 0 || a >= len(t.Shape) || b < 0 || b >= len(t.Shape) {
		return nil, fmt.Errorf("cannot transpose dimensions %d and %d of a rank-%d tensor",
			a, b, len(t.Shape))
	}
	if a == b {
		return t.Clone(), nil
	}

	outShape := cloneShape(t.Shape)
	outShape[a], outShape[b] = outShape[b], outShape[a]
	out := New(outShape...)

	coords := make([]int, len(t.Shape))
	for src := 0; src < len(t.Data); src++ {
		rem := src
		for d := range t.Shape {
			coords[d] = rem / t.Strides[d]
			rem %= t.Strides[d]
		}
		coords[a], coords[b] = coords[b], coords[a]
		dst := 0
		for d := range coords {
			dst += coords[d] * out.Strides[d]
		}
		out.Data[dst] = t.Data[src]
	}
	return out, nil
}

// Scale returns the tensor with every element multiplied by s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := New(t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = v * s
	}
	return out
}

// Equals reports whether two tensors have identical shapes and element-wise
// values within the given tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// Matmul multiplies over the last two dimensions.
//
// Two forms are supported:
//   - (..., m, n) @ (n, p): the 2D right operand is applied to every
//     leading batch of the left operand (weight application).
//   - (batch..., m, n) @ (batch..., n, p): element-wise over identical
//     leading batch dimensions (attention scores and context).
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul needs rank >= 2 operands, got %v and %v", a.Shape, b.Shape)
	}

	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]
	if b.Shape[len(b.Shape)-2] != n {
		return nil, fmt.Errorf("matmul inner dimensions disagree: %v @ %v", a.Shape, b.Shape)
	}

	broadcastB := len(b.Shape) == 2 && len(a.Shape) > 2
	if !broadcastB {
		if len(a.Shape) != len(b.Shape) {
			return nil, fmt.Errorf("matmul rank mismatch: %v @ %v", a.Shape, b.Shape)
		}
		for i := 0; i < len(a.Shape)-2; i++ {
			if a.Shape[i] != b.Shape[i] {
				return nil, fmt.Errorf("matmul batch dimensions disagree: %v @ %v", a.Shape, b.Shape)
			}
		}
	}

	batch := shapeSize(a.Shape[:len(a.Shape)-2])
	outShape := append(cloneShape(a.Shape[:len(a.Shape)-2]), m, p)
	out := New(outShape...)

	for bi := 0; bi < batch; bi++ {
		aOff := bi * m * n
		bOff := 0
		if !broadcastB {
			bOff = bi * n * p
		}
		oOff := bi * m * p
		for i := 0; i < m; i++ {
			for k := 0; k < p; k++ {
				var sum float32
				for j := 0; j < n; j++ {
					sum += a.Data[aOff+i*n+j] * b.Data[bOff+j*p+k]
				}
				out.Data[oOff+i*p+k] = sum
			}
		}
	}
	return out, nil
}

// Add performs element-wise addition. Shapes are broadcast right-aligned,
// so a (seq, seq) mask can be added to (batch, heads, seq, seq) scores.
func Add(a, b *Tensor) (*Tensor, error) {
	outShape, err := broadcastShape(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot add %v and %v: %w", a.Shape, b.Shape, err)
	}

	out := New(outShape...)
	coords := make([]int, len(outShape))
	for flat := range out.Data {
		rem := flat
		for d := range outShape {
			coords[d] = rem / out.Strides[d]
			rem %= out.Strides[d]
		}
		out.Data[flat] = a.Data[broadcastOffset(coords, a)] + b.Data[broadcastOffset(coords, b)]
	}
	return out, nil
}

// broadcastShape computes the right-aligned broadcast of two shapes.
func broadcastShape(a, b []int) ([]int, error) {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}
	out := make([]int, rank)
	for i := 0; i < rank; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		if da != db && da != 1 && db != 1 {
			return nil, fmt.Errorf("dimensions %d and %d are incompatible", da, db)
		}
		if da > db {
			out[rank-1-i] = da
		} else {
			out[rank-1-i] = db
		}
	}
	return out, nil
}

// broadcastOffset maps output coordinates back into t's flat storage,
// right-aligning t's shape and pinning broadcast dimensions to index 0.
func broadcastOffset(coords []int, t *Tensor) int {
	shift := len(coords) - len(t.Shape)
	off := 0
	for d := range t.Shape {
		c := coords[d+shift]
		if t.Shape[d] == 1 {
			c = 0
		}
		off += c * t.Strides[d]
	}
	return off
}

// Softmax normalizes along the given dimension. Entries of -Inf come out
// as exactly zero, which the causal mask relies on. Every row must hold at
// least one finite entry; a row of only -Inf values has no defined
// distribution and produces NaN.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid softmax dimension %d for shape %v", dim, t.Shape)
	}

	n := t.Shape[dim]
	inner := 1
	for d := dim + 1; d < len(t.Shape); d++ {
		inner *= t.Shape[d]
	}
	outer := len(t.Data) / (n * inner)

	out := New(t.Shape...)
	exps := make([]float64, n)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*n*inner + i

			maxVal := math.Inf(-1)
			for k := 0; k < n; k++ {
				if v := float64(t.Data[base+k*inner]); v > maxVal {
					maxVal = v
				}
			}

			var sum float64
			for k := 0; k < n; k++ {
				exps[k] = math.Exp(float64(t.Data[base+k*inner]) - maxVal)
				sum += exps[k]
			}

			for k := 0; k < n; k++ {
				out.Data[base+k*inner] = float32(exps[k] / sum)
			}
		}
	}
	return out, nil
}

// SoftmaxLast normalizes along the last dimension.
func SoftmaxLast(t *Tensor) (*Tensor, error) {
	return Softmax(t, len(t.Shape)-1)
}

// CausalMask returns the additive (n, n) mask for autoregressive
// attention: zero on and below the diagonal, -Inf strictly above. Added
// to a score matrix it removes all attention to future positions.
func CausalMask(n int) *Tensor {
	mask := New(n, n)
	negInf := float32(math.Inf(-1))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			mask.Data[i*n+j] = negInf
		}
	}
	return mask
}

// Outer computes the outer product of two vectors as a (len(a), len(b))
// matrix.
func Outer(a, b []float32) *Tensor {
	out := New(len(a), len(b))
	for i, av := range a {
		for j, bv := range b {
			out.Data[i*len(b)+j] = av * bv
		}
	}
	return out
}

// String renders the shape and a truncated view of the data.
func (t *Tensor) String() string {
	limit := len(t.Data)
	suffix := ""
	if limit > 8 {
		limit = 8
		suffix = " ..."
	}
	return fmt.Sprintf("Tensor%v%v%s", t.Shape, t.Data[:limit], suffix)
}
