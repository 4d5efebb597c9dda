// Package entropy provides the simulation's random streams. Every stochastic
// concern draws from its own stream derived from one run seed, so adding draws
// in one place never shifts another and a seed reproduces a run exactly.
// Falls back to crypto/rand only to pick a seed when none is given.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Stream names a consumer of randomness.
type Stream uint8

const (
	StreamPairing Stream = iota
	StreamDefection
	StreamDemand
)

// streamOffsets keep the per-purpose sources apart.
var streamOffsets = [...]int64{
	StreamPairing:   100,
	StreamDefection: 200,
	StreamDemand:    300,
}

// Source derives independent seeded generators from a run seed.
type Source struct {
	seed int64
}

// NewSource returns a Source for seed. A zero seed is replaced by a
// cryptographically random one; Seed reports the value in use.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = CryptoSeed()
	}
	return &Source{seed: seed}
}

// Seed returns the run seed.
func (s *Source) Seed() int64 {
	return s.seed
}

// Rand returns a fresh generator for the stream. Each call restarts the
// stream, so callers keep the generator they are given.
func (s *Source) Rand(stream Stream) *mrand.Rand {
	var offset int64
	if int(stream) < len(streamOffsets) {
		offset = streamOffsets[stream]
	}
	return mrand.New(mrand.NewSource(s.seed + offset))
}

// Chance reports whether an event with probability p happens on rng.
// p ≤ 0 never happens and p ≥ 1 always does, without consuming a draw.
func Chance(rng *mrand.Rand, p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	return rng.Float64() < p
}

// CryptoSeed returns a non-zero seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen but return a fixed seed as a safe default.
		return 1
	}
	// Keep 62 bits so the seed plus any stream offset stays positive.
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 2)
	if n == 0 {
		return 1
	}
	return n
}
