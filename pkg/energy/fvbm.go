// Package energy implements two small energy-based generative models: a
// fully-visible Boltzmann machine trained with contrastive divergence, and
// a neural energy network sampled with Langevin dynamics.
package energy

import (
	"fmt"
	"math"
	"math/rand"

	"deepgen/pkg/tensor"
)

// BoltzmannMachine is a fully-visible Boltzmann machine over binary units
// v in {0,1}^n with energy
//
//	E(v) = -0.5 * v^T W v - b^T v
//
// W is symmetric with a zero diagonal; both invariants are maintained by
// every update.
type BoltzmannMachine struct {
	Units   int
	Weights *tensor.Tensor // (n, n)
	Bias    *tensor.Tensor // (n,)
}

// NewBoltzmannMachine creates a machine with zero weights and biases.
func NewBoltzmannMachine(units int) (*BoltzmannMachine, error) {
	if units <= 0 {
		return nil, fmt.Errorf("unit count must be positive, got %d", units)
	}
	return &BoltzmannMachine{
		Units:   units,
		Weights: tensor.New(units, units),
		Bias:    tensor.New(units),
	}, nil
}

// Energy evaluates E(v) for one visible configuration.
func (m *BoltzmannMachine) Energy(v []float32) (float32, error) {
	if len(v) != m.Units {
		return 0, fmt.Errorf("configuration has %d units, machine has %d", len(v), m.Units)
	}
	var quad, linear float32
	for i := 0; i < m.Units; i++ {
		for j := 0; j < m.Units; j++ {
			quad += v[i] * m.Weights.Data[i*m.Units+j] * v[j]
		}
		linear += m.Bias.Data[i] * v[i]
	}
	return -0.5*quad - linear, nil
}

// GibbsStep resamples every unit once, in place and in order, each from
// its conditional p(v_i = 1 | v_rest) = sigmoid(sum_j W_ij v_j + b_i).
func (m *BoltzmannMachine) GibbsStep(v []float32, rng *rand.Rand) error {
	if len(v) != m.Units {
		return fmt.Errorf("configuration has %d units, machine has %d", len(v), m.Units)
	}
	for i := 0; i < m.Units; i++ {
		var field float32
		for j := 0; j < m.Units; j++ {
			field += m.Weights.Data[i*m.Units+j] * v[j]
		}
		field += m.Bias.Data[i]
		if rng.Float32() < sigmoid(field) {
			v[i] = 1
		} else {
			v[i] = 0
		}
	}
	return nil
}

// GibbsChain runs steps full sweeps starting from v0 and returns the final
// configuration. v0 is not modified.
func (m *BoltzmannMachine) GibbsChain(v0 []float32, steps int, rng *rand.Rand) ([]float32, error) {
	if steps < 0 {
		return nil, fmt.Errorf("step count must be non-negative, got %d", steps)
	}
	v := append([]float32(nil), v0...)
	for s := 0; s < steps; s++ {
		if err := m.GibbsStep(v, rng); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// CDStep performs one contrastive-divergence-k update on a batch of
// visible configurations: positive statistics come from the data,
// negative statistics from k Gibbs sweeps started at each data vector.
// The learning rate lr scales the difference of the two.
func (m *BoltzmannMachine) CDStep(batch [][]float32, k int, lr float32, rng *rand.Rand) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty batch")
	}
	if k < 1 {
		return fmt.Errorf("gibbs step count must be at least 1, got %d", k)
	}

	posW := tensor.New(m.Units, m.Units)
	negW := tensor.New(m.Units, m.Units)
	posB := make([]float32, m.Units)
	negB := make([]float32, m.Units)

	for _, v := range batch {
		if len(v) != m.Units {
			return fmt.Errorf("configuration has %d units, machine has %d", len(v), m.Units)
		}
		dataStats := tensor.Outer(v, v)
		for i := range posW.Data {
			posW.Data[i] += dataStats.Data[i]
		}
		for i, vi := range v {
			posB[i] += vi
		}

		sample, err := m.GibbsChain(v, k, rng)
		if err != nil {
			return err
		}
		modelStats := tensor.Outer(sample, sample)
		for i := range negW.Data {
			negW.Data[i] += modelStats.Data[i]
		}
		for i, si := range sample {
			negB[i] += si
		}
	}

	scale := lr / float32(len(batch))
	for i := 0; i < m.Units; i++ {
		for j := 0; j < m.Units; j++ {
			if i == j {
				continue // diagonal stays zero
			}
			m.Weights.Data[i*m.Units+j] += scale * (posW.Data[i*m.Units+j] - negW.Data[i*m.Units+j])
		}
		m.Bias.Data[i] += scale * (posB[i] - negB[i])
	}
	return nil
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}
