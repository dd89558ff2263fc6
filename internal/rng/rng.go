package rng

import (
	"hash/fnv"
	"math/rand"
	"time"

	"privalytics/ports"
)

// SeededRNG implements ports.RNGPort with deterministic per-operation
// streams. The stream name is folded into the seed so two operations sharing
// a base seed still draw independent sequences.
type SeededRNG struct {
	baseSeed int64
}

// New creates a SeededRNG. A zero baseSeed derives one from the clock, which
// is the production mode; tests pass an explicit seed.
func New(baseSeed int64) *SeededRNG {
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}
	return &SeededRNG{baseSeed: baseSeed}
}

// Stream creates a deterministic random number generator for a named
// operation.
func (s *SeededRNG) Stream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	combined := s.baseSeed ^ seed ^ int64(h.Sum64())
	return rand.New(rand.NewSource(combined))
}

var _ ports.RNGPort = (*SeededRNG)(nil)
