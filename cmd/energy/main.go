package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"deepgen/pkg/energy"
)

func main() {
	seed := flag.Int64("seed", 7, "random seed")
	epochs := flag.Int("epochs", 200, "contrastive-divergence epochs for the Boltzmann machine")
	cdSteps := flag.Int("cd-steps", 1, "Gibbs sweeps per contrastive-divergence update")
	langevinSteps := flag.Int("langevin-steps", 100, "Langevin steps on the neural energy model")
	stepSize := flag.Float64("step-size", 0.01, "Langevin step size")
	learnRate := flag.Float64("learn-rate", 0.01, "Adam learning rate for the contrastive update")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("     Fully-Visible Boltzmann Machine (CD-k)")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	// Two complementary stripe patterns over six units. After training,
	// both should sit at noticeably lower energy than a mixed pattern.
	patterns := [][]float32{
		{1, 1, 1, 0, 0, 0},
		{0, 0, 0, 1, 1, 1},
	}
	probe := []float32{1, 0, 1, 0, 1, 0}

	bm, err := energy.NewBoltzmannMachine(len(patterns[0]))
	if err != nil {
		fail(err)
	}

	printEnergies := func(label string) {
		fmt.Printf("%s:\n", label)
		for i, p := range patterns {
			e, err := bm.Energy(p)
			if err != nil {
				fail(err)
			}
			fmt.Printf("  pattern %d %v -> E = %.4f\n", i, p, e)
		}
		e, err := bm.Energy(probe)
		if err != nil {
			fail(err)
		}
		fmt.Printf("  probe     %v -> E = %.4f\n", probe, e)
	}

	printEnergies("Energies before training")
	fmt.Printf("\nTraining with CD-%d for %d epochs...\n\n", *cdSteps, *epochs)
	for epoch := 0; epoch < *epochs; epoch++ {
		if err := bm.CDStep(patterns, *cdSteps, 0.05, rng); err != nil {
			fail(err)
		}
	}
	printEnergies("Energies after training")

	sample, err := bm.GibbsChain(probe, 20, rng)
	if err != nil {
		fail(err)
	}
	fmt.Printf("\nGibbs sample after 20 sweeps from the probe: %v\n", sample)

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("     Neural Energy Model (Langevin dynamics)")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	net, err := energy.NewNeuralEnergy(2, 32, *learnRate)
	if err != nil {
		fail(err)
	}
	defer net.Close()

	start := []float32{float32(rng.NormFloat64()), float32(rng.NormFloat64())}
	fmt.Printf("Running %d Langevin steps from %v (step size %g)...\n\n",
		*langevinSteps, start, *stepSize)

	trajectory, err := net.Langevin(start, *langevinSteps, float32(*stepSize), rng)
	if err != nil {
		fail(err)
	}

	stride := *langevinSteps / 10
	if stride < 1 {
		stride = 1
	}
	for s := 0; s < len(trajectory); s += stride {
		e, err := net.Energy(trajectory[s])
		if err != nil {
			fail(err)
		}
		fmt.Printf("  step %4d: x = [%+.3f %+.3f]  E = %.4f\n",
			s, trajectory[s][0], trajectory[s][1], e)
	}

	// One contrastive update: data near the origin, negatives from the
	// end of the chain.
	data := [][]float32{{0.1, 0.1}, {-0.1, 0.1}, {0.1, -0.1}, {-0.1, -0.1}}
	negatives := [][]float32{trajectory[len(trajectory)-1]}
	if err := net.TrainStep(data, negatives); err != nil {
		fail(err)
	}
	e, err := net.Energy(data[0])
	if err != nil {
		fail(err)
	}
	fmt.Printf("\nAfter one contrastive update, E(%v) = %.4f\n", data[0], e)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
