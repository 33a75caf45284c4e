package model

import (
	"math/rand"
	"testing"
)

// smallConfig is a tiny but fully valid configuration for tests.
func smallConfig() Config {
	return Config{
		VocabSize:     17,
		ContextLength: 12,
		EmbeddingDim:  8,
		HeadDim:       4,
		HiddenDim:     16,
		NumLayers:     2,
	}
}

func newSmallModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(smallConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"indivisible_width", func(c *Config) { c.HeadDim = 3 }},
		{"zero_vocab", func(c *Config) { c.VocabSize = 0 }},
		{"zero_context", func(c *Config) { c.ContextLength = 0 }},
		{"zero_embedding", func(c *Config) { c.EmbeddingDim = 0 }},
		{"negative_head_width", func(c *Config) { c.HeadDim = -4 }},
		{"zero_hidden", func(c *Config) { c.HiddenDim = 0 }},
		{"zero_layers", func(c *Config) { c.NumLayers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := smallConfig()
			tc.mutate(&config)
			if err := config.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
			if _, err := New(config, rand.New(rand.NewSource(1))); err == nil {
				t.Errorf("expected New to reject the config")
			}
		})
	}

	if err := smallConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestConfigNumHeads(t *testing.T) {
	config := smallConfig()
	if got := config.NumHeads(); got != 2 {
		t.Errorf("NumHeads() = %d, want 2", got)
	}
}

func TestForwardLogitsShape(t *testing.T) {
	m := newSmallModel(t)

	batch := [][]int{
		{0, 1, 2, 3},
		{4, 5, 6, 7},
		{8, 9, 10, 11},
	}
	logits, err := m.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	want := []int{3, 4, m.Config.VocabSize}
	if len(logits.Shape) != 3 {
		t.Fatalf("logits rank %d, want 3", len(logits.Shape))
	}
	for i, w := range want {
		if logits.Shape[i] != w {
			t.Errorf("logits shape %v, want %v", logits.Shape, want)
			break
		}
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	m := newSmallModel(t)
	batch := [][]int{{3, 1, 4, 1, 5}}

	a, err := m.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	b, err := m.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !a.Equals(b, 0) {
		t.Errorf("two forward passes over the same input disagree")
	}
}

func TestForwardInputErrors(t *testing.T) {
	m := newSmallModel(t)

	cases := []struct {
		name  string
		batch [][]int
	}{
		{"empty_batch", [][]int{}},
		{"empty_sequence", [][]int{{}}},
		{"ragged_batch", [][]int{{1, 2, 3}, {1, 2}}},
		{"token_below_range", [][]int{{-1, 2}}},
		{"token_above_range", [][]int{{1, 17}}},
		{"sequence_too_long", [][]int{{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Forward(tc.batch); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestSeededModelsAgree(t *testing.T) {
	config := smallConfig()
	a, err := New(config, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := New(config, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	batch := [][]int{{2, 7, 1}}
	la, err := a.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	lb, err := b.Forward(batch)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !la.Equals(lb, 0) {
		t.Errorf("same seed produced different models")
	}
}
