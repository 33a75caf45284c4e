package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"deepgen/pkg/model"
	"deepgen/pkg/tokenizer"
)

const corpus = `the quick brown fox jumps over the lazy dog. ` +
	`pack my box with five dozen liquor jugs. ` +
	`how vexingly quick daft zebras jump! ` +
	`sphinx of black quartz, judge my vow.`

func main() {
	prompt := flag.String("prompt", "the quick", "input prompt text")
	maxTokens := flag.Int("max-tokens", 64, "number of tokens to generate")
	topK := flag.Int("top-k", 5, "sample from the k highest-scoring tokens")
	seed := flag.Int64("seed", 42, "random seed for weights and sampling")
	layers := flag.Int("layers", 4, "number of transformer blocks")
	flag.Parse()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("      Character-Level Transformer Sampling")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	tok := tokenizer.New(corpus + *prompt)

	config := model.DefaultConfig()
	config.VocabSize = tok.VocabSize()
	config.NumLayers = *layers

	fmt.Println("Model configuration:")
	fmt.Printf("  Vocab size:     %d\n", config.VocabSize)
	fmt.Printf("  Context length: %d\n", config.ContextLength)
	fmt.Printf("  Embedding dim:  %d\n", config.EmbeddingDim)
	fmt.Printf("  Heads:          %d (width %d each)\n", config.NumHeads(), config.HeadDim)
	fmt.Printf("  Layers:         %d\n", config.NumLayers)
	fmt.Println()

	rng := rand.New(rand.NewSource(*seed))
	lm, err := model.New(config, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building model: %v\n", err)
		os.Exit(1)
	}

	encoded, err := tok.Encode(*prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error encoding prompt: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Prompt: %q (%d tokens)\n", *prompt, len(encoded))
	fmt.Printf("Sampling %d tokens with top-k=%d, seed=%d...\n", *maxTokens, *topK, *seed)
	fmt.Println("Note: the model is untrained, so the output is noise with")
	fmt.Println("the right shape, not language.")
	fmt.Println()

	generated, err := lm.Generate(encoded, *maxTokens, *topK, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error generating: %v\n", err)
		os.Exit(1)
	}

	text, err := tok.Decode(generated)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error decoding output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                    Output")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Generated text:\n%s\n\n", text)
	fmt.Printf("  Prompt tokens: %d\n", len(encoded))
	fmt.Printf("  New tokens:    %d\n", len(generated)-len(encoded))
}
