package model

import (
	"fmt"
	"math"
	"math/rand"

	"deepgen/pkg/model/attention"
	"deepgen/pkg/tensor"
)

// Model maps sequences of token indices to per-position logits over the
// vocabulary.
//
// Architecture:
//  1. Token embedding lookup (vocab, embed)
//  2. Fixed sinusoidal positional encoding
//  3. NumLayers post-norm transformer blocks with independent weights
//  4. Output projection (embed, vocab)
//
// Forward passes are read-only with respect to the weights; training
// mutates them between passes from outside this package.
type Model struct {
	Config  Config
	TokEmb  *tensor.Tensor // (vocab, embed)
	PosEnc  *PositionalEncoding
	Blocks  []*attention.Block
	OutHead *tensor.Tensor // (embed, vocab)
}

// New builds a model from the configuration, drawing initial weights from
// rng. The configuration is validated before anything is allocated.
func New(config Config, rng *rand.Rand) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Model{
		Config:  config,
		TokEmb:  tensor.New(config.VocabSize, config.EmbeddingDim),
		PosEnc:  NewPositionalEncoding(config.ContextLength, config.EmbeddingDim),
		Blocks:  make([]*attention.Block, config.NumLayers),
		OutHead: tensor.New(config.EmbeddingDim, config.VocabSize),
	}

	for i := range m.Blocks {
		attn, err := attention.NewMultiHeadAttention(config.EmbeddingDim, config.NumHeads())
		if err != nil {
			return nil, fmt.Errorf("building block %d: %w", i, err)
		}
		ff := NewFeedForward(config.EmbeddingDim, config.HiddenDim)
		norm1 := NewLayerNorm(config.EmbeddingDim, 1e-5)
		norm2 := NewLayerNorm(config.EmbeddingDim, 1e-5)
		m.Blocks[i] = attention.NewBlock(attn, ff, norm1, norm2)
	}

	m.initWeights(rng)
	return m, nil
}

// Forward computes logits for a batch of equal-length token sequences.
//
// Input: batch of token index sequences, all of the same length L, every
// index in [0, VocabSize). Output shape: (batch, L, VocabSize).
func (m *Model) Forward(batch [][]int) (*tensor.Tensor, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	seqLen := len(batch[0])
	if seqLen == 0 {
		return nil, fmt.Errorf("empty sequence in batch")
	}
	for i, seq := range batch {
		if len(seq) != seqLen {
			return nil, fmt.Errorf("sequence %d has length %d, expected %d", i, len(seq), seqLen)
		}
	}
	if seqLen > m.Config.ContextLength {
		return nil, fmt.Errorf("sequence length %d exceeds context length %d",
			seqLen, m.Config.ContextLength)
	}

	x, err := m.embed(batch)
	if err != nil {
		return nil, fmt.Errorf("embedding lookup: %w", err)
	}

	x, err = m.PosEnc.AddTo(x)
	if err != nil {
		return nil, fmt.Errorf("positional encoding: %w", err)
	}

	for i, block := range m.Blocks {
		x, err = block.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}

	logits, err := tensor.Matmul(x, m.OutHead)
	if err != nil {
		return nil, fmt.Errorf("output projection: %w", err)
	}
	return logits, nil
}

// embed looks up token embeddings, rejecting any out-of-range index.
func (m *Model) embed(batch [][]int) (*tensor.Tensor, error) {
	batchSize, seqLen := len(batch), len(batch[0])
	dim := m.Config.EmbeddingDim

	out := tensor.New(batchSize, seqLen, dim)
	for b, seq := range batch {
		for s, id := range seq {
			if id < 0 || id >= m.Config.VocabSize {
				return nil, fmt.Errorf("token index %d at position (%d, %d) outside vocabulary of size %d",
					id, b, s, m.Config.VocabSize)
			}
			dst := (b*seqLen + s) * dim
			copy(out.Data[dst:dst+dim], m.TokEmb.Data[id*dim:(id+1)*dim])
		}
	}
	return out, nil
}

// initWeights draws all learned tensors: embeddings from a small normal,
// linear maps from Xavier uniform. Layer norms keep their ones/zeros.
func (m *Model) initWeights(rng *rand.Rand) {
	normalInit(m.TokEmb, 0.02, rng)
	xavierInit(m.OutHead, rng)
	for _, block := range m.Blocks {
		xavierInit(block.Attn.WQuery, rng)
		xavierInit(block.Attn.WKey, rng)
		xavierInit(block.Attn.WValue, rng)
		xavierInit(block.Attn.OutProj, rng)
		if ff, ok := block.FF.(*FeedForward); ok {
			xavierInit(ff.FC1, rng)
			xavierInit(ff.FC2, rng)
		}
	}
}

func normalInit(t *tensor.Tensor, std float32, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * std
	}
}

// xavierInit fills a matrix with U[-limit, limit], limit =
// sqrt(6 / (fan_in + fan_out)) over the last two dimensions.
func xavierInit(t *tensor.Tensor, rng *rand.Rand) {
	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range t.Data {
		t.Data[i] = float32(rng.Float64()*2*limit - limit)
	}
}
