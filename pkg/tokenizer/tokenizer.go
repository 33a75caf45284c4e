// Package tokenizer provides the character-level vocabulary mapping the
// demos use. The model packages never import it: they consume and produce
// plain integer index sequences.
package tokenizer

import (
	"fmt"
	"sort"
)

// Tokenizer is a bidirectional mapping between runes and integer indices
// in [0, VocabSize). Indices are assigned in sorted rune order, so the
// same corpus always yields the same vocabulary.
type Tokenizer struct {
	toID   map[rune]int
	toRune []rune
}

// New builds a vocabulary from the distinct runes of corpus.
func New(corpus string) *Tokenizer {
	seen := make(map[rune]bool)
	for _, r := range corpus {
		seen[r] = true
	}

	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	toID := make(map[rune]int, len(runes))
	for i, r := range runes {
		toID[r] = i
	}
	return &Tokenizer{toID: toID, toRune: runes}
}

// VocabSize returns the number of distinct tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.toRune)
}

// Encode maps text to token indices. Runes outside the vocabulary are an
// error.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := t.toID[r]
		if !ok {
			return nil, fmt.Errorf("rune %q is not in the vocabulary", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode maps token indices back to text. Indices outside
// [0, VocabSize) are an error.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	runes := make([]rune, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(t.toRune) {
			return "", fmt.Errorf("token index %d outside vocabulary of size %d", id, len(t.toRune))
		}
		runes[i] = t.toRune[id]
	}
	return string(runes), nil
}
