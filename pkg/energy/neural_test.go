package energy

import (
	"math"
	"math/rand"
	"testing"
)

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func TestNewNeuralEnergy(t *testing.T) {
	if _, err := NewNeuralEnergy(0, 8, 0.01); err == nil {
		t.Errorf("expected error for zero dim")
	}
	if _, err := NewNeuralEnergy(2, 0, 0.01); err == nil {
		t.Errorf("expected error for zero hidden width")
	}
	if _, err := NewNeuralEnergy(2, 8, 0); err == nil {
		t.Errorf("expected error for zero learning rate")
	}

	n, err := NewNeuralEnergy(3, 16, 0.01)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	if n.Dim != 3 || n.Hidden != 16 {
		t.Errorf("got dim=%d hidden=%d, want 3, 16", n.Dim, n.Hidden)
	}
	if got := len(n.Params()); got != 5 {
		t.Errorf("Params() returned %d nodes, want 5", got)
	}
}

func TestEnergyEvaluation(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.01)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	for _, x := range [][]float32{{0, 0}, {1, -1}, {0.3, 0.7}} {
		e, err := n.Energy(x)
		if err != nil {
			t.Fatalf("Energy(%v) failed: %v", x, err)
		}
		if !isFinite(e) {
			t.Errorf("Energy(%v) = %v, want finite", x, e)
		}
	}

	// Repeated evaluation at the same point must agree.
	a, err := n.Energy([]float32{0.5, -0.5})
	if err != nil {
		t.Fatalf("Energy failed: %v", err)
	}
	b, err := n.Energy([]float32{0.5, -0.5})
	if err != nil {
		t.Fatalf("Energy failed: %v", err)
	}
	if a != b {
		t.Errorf("repeated evaluation disagrees: %v vs %v", a, b)
	}

	if _, err := n.Energy([]float32{1, 2, 3}); err == nil {
		t.Errorf("expected error for wrong-size input")
	}
}

func TestEnergyGradMatchesFiniteDifference(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.01)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	x := []float32{0.2, -0.4}
	grad, err := n.EnergyGrad(x)
	if err != nil {
		t.Fatalf("EnergyGrad failed: %v", err)
	}
	if len(grad) != n.Dim {
		t.Fatalf("gradient has %d components, want %d", len(grad), n.Dim)
	}

	const h = 1e-2
	for i := range x {
		plus := append([]float32(nil), x...)
		minus := append([]float32(nil), x...)
		plus[i] += h
		minus[i] -= h

		ep, err := n.Energy(plus)
		if err != nil {
			t.Fatalf("Energy failed: %v", err)
		}
		em, err := n.Energy(minus)
		if err != nil {
			t.Fatalf("Energy failed: %v", err)
		}
		numeric := (ep - em) / (2 * h)
		if diff := float64(numeric - grad[i]); math.Abs(diff) > 1e-2 {
			t.Errorf("component %d: analytic %v, finite-difference %v", i, grad[i], numeric)
		}
	}
}

func TestLangevinTrajectory(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.01)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	x0 := []float32{0.1, 0.1}
	const steps = 12
	traj, err := n.Langevin(x0, steps, 0.01, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("Langevin failed: %v", err)
	}

	if len(traj) != steps+1 {
		t.Fatalf("trajectory has %d states, want %d", len(traj), steps+1)
	}
	for i, v := range traj[0] {
		if v != x0[i] {
			t.Errorf("trajectory does not start at x0: %v", traj[0])
			break
		}
	}
	for s, state := range traj {
		if len(state) != n.Dim {
			t.Fatalf("state %d has %d components, want %d", s, len(state), n.Dim)
		}
		for _, v := range state {
			if !isFinite(v) {
				t.Fatalf("state %d contains non-finite value %v", s, v)
			}
		}
	}
}

func TestLangevinArgumentErrors(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.01)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	rng := rand.New(rand.NewSource(1))
	if _, err := n.Langevin([]float32{1}, 5, 0.01, rng); err == nil {
		t.Errorf("expected error for wrong-size start point")
	}
	if _, err := n.Langevin([]float32{0, 0}, -1, 0.01, rng); err == nil {
		t.Errorf("expected error for negative step count")
	}
	if _, err := n.Langevin([]float32{0, 0}, 5, 0, rng); err == nil {
		t.Errorf("expected error for zero step size")
	}
}

func paramSnapshot(n *NeuralEnergy) [][]float32 {
	snapshot := make([][]float32, 0, len(n.Params()))
	for _, p := range n.Params() {
		data := p.Value().Data().([]float32)
		snapshot = append(snapshot, append([]float32(nil), data...))
	}
	return snapshot
}

func TestTrainStepMutatesParameters(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.05)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	snapshot := paramSnapshot(n)

	data := [][]float32{{0.5, 0.5}, {0.6, 0.4}}
	samples := [][]float32{{-1.2, 0.9}, {1.5, -1.5}}
	if err := n.TrainStep(data, samples); err != nil {
		t.Fatalf("TrainStep failed: %v", err)
	}

	changed := false
	for pi, p := range n.Params() {
		values := p.Value().Data().([]float32)
		for i, v := range values {
			if !isFinite(v) {
				t.Fatalf("parameter %d contains non-finite value after update", pi)
			}
			if v != snapshot[pi][i] {
				changed = true
			}
		}
	}
	if !changed {
		t.Errorf("TrainStep left every parameter unchanged")
	}

	if err := n.TrainStep(nil, samples); err == nil {
		t.Errorf("expected error for empty data batch")
	}
	if err := n.TrainStep(data, nil); err == nil {
		t.Errorf("expected error for empty sample batch")
	}
}

// TestTrainStepRepeatedUpdates runs several solver steps in a row: the
// optimizer state must carry over, every step must keep moving the
// parameters, and all values must stay finite.
func TestTrainStepRepeatedUpdates(t *testing.T) {
	n, err := NewNeuralEnergy(2, 8, 0.05)
	if err != nil {
		t.Fatalf("NewNeuralEnergy failed: %v", err)
	}
	defer n.Close()

	data := [][]float32{{0.2, 0.2}, {-0.2, 0.2}}
	samples := [][]float32{{1.4, -1.1}}

	for step := 0; step < 5; step++ {
		before := paramSnapshot(n)
		if err := n.TrainStep(data, samples); err != nil {
			t.Fatalf("TrainStep %d failed: %v", step, err)
		}

		changed := false
		for pi, p := range n.Params() {
			values := p.Value().Data().([]float32)
			for i, v := range values {
				if !isFinite(v) {
					t.Fatalf("step %d: parameter %d contains non-finite value", step, pi)
				}
				if v != before[pi][i] {
					changed = true
				}
			}
		}
		if !changed {
			t.Fatalf("step %d left every parameter unchanged", step)
		}
	}

	// Energy evaluation must still work against the updated weights.
	e, err := n.Energy([]float32{0.2, 0.2})
	if err != nil {
		t.Fatalf("Energy after training failed: %v", err)
	}
	if !isFinite(e) {
		t.Errorf("energy after training = %v, want finite", e)
	}
}
