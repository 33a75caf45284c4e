package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"deepgen/pkg/tensor"
)

// Generate extends prompt by exactly maxNewTokens tokens using top-k
// sampling.
//
// Each step runs the full stack over the current sequence (cropped to the
// context length), takes the logits at the last position, keeps the topK
// highest-scoring tokens, renormalizes them with a softmax, and samples
// from that restricted distribution using rng. There is no early stopping
// and no incremental caching; the recomputation per step is deliberate.
//
// With topK == 1 sampling reduces to greedy argmax decoding.
func (m *Model) Generate(prompt []int, maxNewTokens, topK int, rng *rand.Rand) ([]int, error) {
	if len(prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	if maxNewTokens < 0 {
		return nil, fmt.Errorf("token budget must be non-negative, got %d", maxNewTokens)
	}
	if topK < 1 {
		return nil, fmt.Errorf("top-k must be at least 1, got %d", topK)
	}
	if topK > m.Config.VocabSize {
		topK = m.Config.VocabSize
	}

	seq := append([]int(nil), prompt...)
	for step := 0; step < maxNewTokens; step++ {
		ctx := seq
		if len(ctx) > m.Config.ContextLength {
			ctx = ctx[len(ctx)-m.Config.ContextLength:]
		}

		logits, err := m.Forward([][]int{ctx})
		if err != nil {
			return nil, fmt.Errorf("forward pass at step %d: %w", step, err)
		}

		last := lastPositionLogits(logits)
		candidates := topKIndices(last, topK)
		probs := softmaxOver(last, candidates)
		seq = append(seq, candidates[sampleIndex(probs, rng)])
	}
	return seq, nil
}

// lastPositionLogits extracts the final position's logits from a
// (1, seq, vocab) tensor as a plain slice.
func lastPositionLogits(logits *tensor.Tensor) []float32 {
	seqLen, vocab := logits.Shape[1], logits.Shape[2]
	out := make([]float32, vocab)
	copy(out, logits.Data[(seqLen-1)*vocab:seqLen*vocab])
	return out
}

// topKIndices returns the indices of the k largest logits, ordered by
// descending logit with ties broken by ascending index.
func topKIndices(logits []float32, k int) []int {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if logits[idx[a]] != logits[idx[b]] {
			return logits[idx[a]] > logits[idx[b]]
		}
		return idx[a] < idx[b]
	})
	return idx[:k]
}

// softmaxOver normalizes the logits at the selected indices into a
// probability distribution.
func softmaxOver(logits []float32, indices []int) []float32 {
	maxVal := math.Inf(-1)
	for _, i := range indices {
		if v := float64(logits[i]); v > maxVal {
			maxVal = v
		}
	}
	probs := make([]float32, len(indices))
	var sum float64
	for j, i := range indices {
		e := math.Exp(float64(logits[i]) - maxVal)
		probs[j] = float32(e)
		sum += e
	}
	for j := range probs {
		probs[j] = float32(float64(probs[j]) / sum)
	}
	return probs
}

// sampleIndex draws one index from a probability distribution.
func sampleIndex(probs []float32, rng *rand.Rand) int {
	r := rng.Float32()
	var cum float32
	for i, p := range probs {
		cum += p
		if r <= cum {
			return i
		}
	}
	return len(probs) - 1
}
