package energy

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	gtensor "gorgonia.org/tensor"
)

// NeuralEnergy is a scalar-output MLP energy function over R^dim, built as
// a gorgonia expression graph:
//
//	E(x) = w3 . tanh(W2 tanh(W1 x + b1) + b2)
//
// The graph is compiled once; Energy, EnergyGrad and TrainStep all run the
// same tape machine with different input bindings. Parameters are updated
// by an Adam solver that lives with the network, so its moment estimates
// persist across training steps. An output bias is omitted: energies are
// only ever compared or differentiated, so an additive constant would be
// invisible to both Langevin sampling and contrastive training.
type NeuralEnergy struct {
	Dim    int
	Hidden int

	g      *gorgonia.ExprGraph
	x      *gorgonia.Node
	energy *gorgonia.Node

	w1, b1, w2, b2, w3 *gorgonia.Node

	xGrad *gorgonia.Node

	vm     gorgonia.VM
	solver gorgonia.Solver
}

// NewNeuralEnergy builds the energy network, its gradient graph, and the
// Adam solver used by TrainStep. Weights are Glorot-initialized; biases
// start at zero.
func NewNeuralEnergy(dim, hidden int, learnRate float64) (*NeuralEnergy, error) {
	if dim <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got dim=%d hidden=%d", dim, hidden)
	}
	if learnRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", learnRate)
	}

	g := gorgonia.NewGraph()
	x := gorgonia.NewVector(g, gtensor.Float32,
		gorgonia.WithShape(dim),
		gorgonia.WithName("x"))

	w1 := gorgonia.NewMatrix(g, gtensor.Float32,
		gorgonia.WithShape(dim, hidden),
		gorgonia.WithName("w1"),
		gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	b1 := gorgonia.NewVector(g, gtensor.Float32,
		gorgonia.WithShape(hidden),
		gorgonia.WithName("b1"),
		gorgonia.WithInit(gorgonia.Zeroes()))
	w2 := gorgonia.NewMatrix(g, gtensor.Float32,
		gorgonia.WithShape(hidden, hidden),
		gorgonia.WithName("w2"),
		gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	b2 := gorgonia.NewVector(g, gtensor.Float32,
		gorgonia.WithShape(hidden),
		gorgonia.WithName("b2"),
		gorgonia.WithInit(gorgonia.Zeroes()))
	w3 := gorgonia.NewVector(g, gtensor.Float32,
		gorgonia.WithShape(hidden),
		gorgonia.WithName("w3"),
		gorgonia.WithInit(gorgonia.GlorotU(1.0)))

	h1, err := fullyConnected(x, w1, b1)
	if err != nil {
		return nil, fmt.Errorf("first hidden layer: %w", err)
	}
	h2, err := fullyConnected(h1, w2, b2)
	if err != nil {
		return nil, fmt.Errorf("second hidden layer: %w", err)
	}
	energy, err := gorgonia.Mul(h2, w3)
	if err != nil {
		return nil, fmt.Errorf("energy head: %w", err)
	}

	params := []*gorgonia.Node{w1, b1, w2, b2, w3}
	grads, err := gorgonia.Grad(energy, append([]*gorgonia.Node{x}, params...)...)
	if err != nil {
		return nil, fmt.Errorf("building gradient graph: %w", err)
	}

	return &NeuralEnergy{
		Dim:    dim,
		Hidden: hidden,
		g:      g,
		x:      x,
		energy: energy,
		w1:     w1,
		b1:     b1,
		w2:     w2,
		b2:     b2,
		w3:     w3,
		xGrad:  grads[0],
		vm:     gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(params...)),
		solver: gorgonia.NewAdamSolver(gorgonia.WithLearnRate(learnRate)),
	}, nil
}

// fullyConnected computes tanh(x W + b).
func fullyConnected(x, w, b *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, err
	}
	pre, err := gorgonia.Add(xw, b)
	if err != nil {
		return nil, err
	}
	return gorgonia.Tanh(pre)
}

// Params returns the trainable nodes.
func (n *NeuralEnergy) Params() []*gorgonia.Node {
	return []*gorgonia.Node{n.w1, n.b1, n.w2, n.b2, n.w3}
}

// Close releases the tape machine.
func (n *NeuralEnergy) Close() error {
	return n.vm.Close()
}

// eval binds x and runs the graph, leaving energy and gradient values
// readable on their nodes.
func (n *NeuralEnergy) eval(x []float32) error {
	if len(x) != n.Dim {
		return fmt.Errorf("input has %d components, network expects %d", len(x), n.Dim)
	}
	backing := append([]float32(nil), x...)
	if err := gorgonia.Let(n.x, gtensor.New(gtensor.WithShape(n.Dim), gtensor.WithBacking(backing))); err != nil {
		return fmt.Errorf("binding input: %w", err)
	}
	n.vm.Reset()
	if err := n.vm.RunAll(); err != nil {
		return fmt.Errorf("running graph: %w", err)
	}
	return nil
}

// Energy evaluates E(x).
func (n *NeuralEnergy) Energy(x []float32) (float32, error) {
	if err := n.eval(x); err != nil {
		return 0, err
	}
	return scalarValue(n.energy.Value())
}

// EnergyGrad evaluates dE/dx at x.
func (n *NeuralEnergy) EnergyGrad(x []float32) ([]float32, error) {
	if err := n.eval(x); err != nil {
		return nil, err
	}
	data, ok := n.xGrad.Value().Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected gradient value type %T", n.xGrad.Value().Data())
	}
	return append([]float32(nil), data...), nil
}

// Langevin runs unadjusted Langevin dynamics from x0:
//
//	x' = x - (step/2) * dE/dx + sqrt(step) * noise, noise ~ N(0, I)
//
// and returns the trajectory of steps+1 states including the start. The
// step count is fixed; there is no acceptance test and no adaptivity.
func (n *NeuralEnergy) Langevin(x0 []float32, steps int, stepSize float32, rng *rand.Rand) ([][]float32, error) {
	if len(x0) != n.Dim {
		return nil, fmt.Errorf("start point has %d components, network expects %d", len(x0), n.Dim)
	}
	if steps < 0 {
		return nil, fmt.Errorf("step count must be non-negative, got %d", steps)
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %g", stepSize)
	}

	noiseScale := float32(math.Sqrt(float64(stepSize)))
	trajectory := make([][]float32, 0, steps+1)
	x := append([]float32(nil), x0...)
	trajectory = append(trajectory, append([]float32(nil), x...))

	for s := 0; s < steps; s++ {
		grad, err := n.EnergyGrad(x)
		if err != nil {
			return nil, fmt.Errorf("gradient at step %d: %w", s, err)
		}
		for i := range x {
			x[i] += -0.5*stepSize*grad[i] + noiseScale*float32(rng.NormFloat64())
		}
		trajectory = append(trajectory, append([]float32(nil), x...))
	}
	return trajectory, nil
}

// TrainStep performs one contrastive update: the gradient of
//
//	mean E(data) - mean E(samples)
//
// with respect to each parameter is bound as that parameter's gradient,
// and the Adam solver steps all parameters at once. Parameters move to
// lower the energy of data points and raise the energy of model samples.
// Samples typically come from Langevin chains started at noise.
func (n *NeuralEnergy) TrainStep(data, samples [][]float32) error {
	if len(data) == 0 || len(samples) == 0 {
		return fmt.Errorf("need at least one data point and one sample")
	}

	pos, err := n.accumulateParamGrads(data)
	if err != nil {
		return fmt.Errorf("data statistics: %w", err)
	}
	neg, err := n.accumulateParamGrads(samples)
	if err != nil {
		return fmt.Errorf("sample statistics: %w", err)
	}

	posMean := 1 / float32(len(data))
	negMean := 1 / float32(len(samples))
	for pi, p := range n.Params() {
		grad, err := paramGrad(p)
		if err != nil {
			return err
		}
		for i := range grad {
			grad[i] = pos[pi][i]*posMean - neg[pi][i]*negMean
		}
	}

	if err := n.solver.Step(gorgonia.NodesToValueGrads(n.Params())); err != nil {
		return fmt.Errorf("solver step: %w", err)
	}
	return nil
}

// accumulateParamGrads sums dE/dtheta over a set of inputs.
func (n *NeuralEnergy) accumulateParamGrads(inputs [][]float32) ([][]float32, error) {
	params := n.Params()
	sums := make([][]float32, len(params))
	for _, x := range inputs {
		if err := n.eval(x); err != nil {
			return nil, err
		}
		for pi, p := range params {
			grad, err := paramGrad(p)
			if err != nil {
				return nil, err
			}
			if sums[pi] == nil {
				sums[pi] = make([]float32, len(grad))
			}
			for i, v := range grad {
				sums[pi][i] += v
			}
		}
	}
	return sums, nil
}

// paramGrad returns the mutable backing slice of a parameter's bound
// gradient value.
func paramGrad(p *gorgonia.Node) ([]float32, error) {
	v, err := p.Grad()
	if err != nil {
		return nil, fmt.Errorf("reading gradient of %s: %w", p.Name(), err)
	}
	data, ok := v.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected gradient value type %T", v.Data())
	}
	return data, nil
}

// scalarValue extracts a float32 from a scalar gorgonia value.
func scalarValue(v gorgonia.Value) (float32, error) {
	switch data := v.Data().(type) {
	case float32:
		return data, nil
	case []float32:
		if len(data) == 1 {
			return data[0], nil
		}
	}
	return 0, fmt.Errorf("value %v is not a scalar", v)
}
