package repository

import (
	"math/rand/v2"
	"time"
)

const (
	defaultSeed         = 42
	defaultQueryTimeout = 5 * time.Second
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed seeds the priority generator, making tree shape reproducible.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.rng = rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // priorities only balance the tree
	}
}
