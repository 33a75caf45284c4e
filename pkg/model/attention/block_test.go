package attention

import (
	"fmt"
	"testing"

	"deepgen/pkg/tensor"
)

// testNorm subtracts the row mean, a stand-in normalizer with easily
// checked behavior.
type testNorm struct{}

func (testNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	dim := x.Shape[len(x.Shape)-1]
	out := x.Clone()
	for r := 0; r < len(x.Data)/dim; r++ {
		var mean float32
		for i := 0; i < dim; i++ {
			mean += x.Data[r*dim+i]
		}
		mean /= float32(dim)
		for i := 0; i < dim; i++ {
			out.Data[r*dim+i] -= mean
		}
	}
	return out, nil
}

// testFF doubles its input, a stand-in feed-forward with easily checked
// behavior.
type testFF struct{}

func (testFF) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Scale(2), nil
}

// failingFF always errors, for propagation tests.
type failingFF struct{}

func (failingFF) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, fmt.Errorf("boom")
}

func newTestAttention(t *testing.T, embedDim, numHeads int) *MultiHeadAttention {
	t.Helper()
	attn, err := NewMultiHeadAttention(embedDim, numHeads)
	if err != nil {
		t.Fatalf("NewMultiHeadAttention failed: %v", err)
	}
	fillPattern(attn.WQuery, 0.05)
	fillPattern(attn.WKey, 0.06)
	fillPattern(attn.WValue, 0.07)
	fillPattern(attn.OutProj, 0.08)
	return attn
}

func TestBlockShapePreserved(t *testing.T) {
	const batchSize, seqLen, embedDim = 2, 4, 8
	block := NewBlock(newTestAttention(t, embedDim, 2), testFF{}, testNorm{}, testNorm{})

	input := tensor.New(batchSize, seqLen, embedDim)
	fillPattern(input, 0.3)

	out, err := block.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if len(out.Shape) != 3 || out.Shape[0] != batchSize || out.Shape[1] != seqLen || out.Shape[2] != embedDim {
		t.Errorf("output shape %v, want [%d %d %d]", out.Shape, batchSize, seqLen, embedDim)
	}
}

func TestBlockPostNormOrdering(t *testing.T) {
	// The block must compute norm2(y + ff(y)) where
	// y = norm1(x + attn(x)): attend, add, normalize, then feed-forward,
	// add, normalize.
	const batchSize, seqLen, embedDim = 1, 3, 8
	attn := newTestAttention(t, embedDim, 2)
	block := NewBlock(attn, testFF{}, testNorm{}, testNorm{})

	input := tensor.New(batchSize, seqLen, embedDim)
	fillPattern(input, 0.25)

	got, err := block.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	attnOut, err := attn.Forward(input)
	if err != nil {
		t.Fatalf("attention failed: %v", err)
	}
	y, err := tensor.Add(input, attnOut)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	y, err = testNorm{}.Forward(y)
	if err != nil {
		t.Fatalf("norm failed: %v", err)
	}
	ffOut, err := testFF{}.Forward(y)
	if err != nil {
		t.Fatalf("ff failed: %v", err)
	}
	want, err := tensor.Add(y, ffOut)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	want, err = testNorm{}.Forward(want)
	if err != nil {
		t.Fatalf("norm failed: %v", err)
	}

	if !got.Equals(want, 1e-6) {
		t.Errorf("block output deviates from the attend-add-norm-ff-add-norm pipeline")
	}
}

func TestBlockPropagatesSublayerErrors(t *testing.T) {
	const embedDim = 8
	block := NewBlock(newTestAttention(t, embedDim, 2), failingFF{}, testNorm{}, testNorm{})

	input := tensor.New(1, 3, embedDim)
	if _, err := block.Forward(input); err == nil {
		t.Errorf("expected feed-forward error to propagate")
	}
}
