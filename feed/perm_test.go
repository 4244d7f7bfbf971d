package feed

import (
	"math/rand"
	"testing"
)

func TestNewPermutationIdentity(t *testing.T) {
	p := newPermutation(5)
	for i, v := range p {
		if v != i {
			t.Fatalf("perm[%d] = %d, want identity", i, v)
		}
	}
}

// isBijection reports whether p visits every index in [0, len(p)) exactly once.
func isBijection(p permutation) bool {
	seen := make([]bool, len(p))
	for _, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func TestReshuffleIsBijection(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := newPermutation(64)
	for round := 0; round < 10; round++ {
		p.reshuffle(rng)
		if !isBijection(p) {
			t.Fatalf("reshuffle round %d broke the permutation: %v", round, p)
		}
	}
}

func TestReshuffleEmptyAndSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := newPermutation(1)
	p.reshuffle(rng)
	if len(p) != 1 || p[0] != 0 {
		t.Fatalf("single-element perm changed: %v", p)
	}
	empty := newPermutation(0)
	empty.reshuffle(rng) // must not panic
}
