package feed

import "math/rand"

// permutation is a visiting order over [0, n): perm[cursor] gives the source
// index to visit. Two instances are kept per dataset, one across shards and
// one across the rows of the resident shard.
type permutation []int

// newPermutation returns the identity permutation over [0, n).
func newPermutation(n int) permutation {
	p := make(permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// reshuffle permutes p in place, uniformly over all orderings.
func (p permutation) reshuffle(rng *rand.Rand) {
	rng.Shuffle(len(p), func(i, j int) {
		p[i], p[j] = p[j], p[i]
	})
}
