package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for the statistically
// relevant randomness in the platform: differential-privacy noise draws and
// k-means centroid initialization. Neither is security-critical, so a
// seedable PRNG is correct here; encryption IVs deliberately bypass this
// port and always come from crypto/rand.
type RNGPort interface {
	// Stream creates a deterministic random number generator for a named
	// operation. The same (name, seed) pair always produces the same
	// stream, which is what lets tests assert exact noise and clustering
	// outcomes.
	Stream(name string, seed int64) *rand.Rand
}
