// Package entropy provides the simulation's single seedable random source.
// Every stochastic decision inside a tick draws from one Source owned by the
// simulation state, so identical seeds replay identically.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
)

// Source is a deterministic PCG generator whose state can be snapshotted.
type Source struct {
	seed uint64
	pcg  *mrand.PCG
	rng  *mrand.Rand
}

// New creates a source from a seed.
func New(seed uint64) *Source {
	pcg := mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Source{seed: seed, pcg: pcg, rng: mrand.New(pcg)}
}

// RandomSeed draws a seed from crypto/rand for runs started without one.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() uint64 { return s.seed }

// Float returns a value in [0, 1).
func (s *Source) Float() float64 { return s.rng.Float64() }

// Chance reports true with probability p.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return s.rng.Float64() < p
}

// IntN returns a value in [0, n). n must be positive.
func (s *Source) IntN(n int) int { return s.rng.IntN(n) }

// Between returns a value in [lo, hi).
func (s *Source) Between(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Pick returns a random element of items.
func Pick[T any](s *Source, items []T) T {
	return items[s.rng.IntN(len(items))]
}

// MarshalBinary encodes the seed and current generator state.
func (s *Source) MarshalBinary() ([]byte, error) {
	state, err := s.pcg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := binary.LittleEndian.AppendUint64(nil, s.seed)
	return append(out, state...), nil
}

// UnmarshalBinary restores a source encoded by MarshalBinary.
func (s *Source) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("entropy: state too short (%d bytes)", len(data))
	}
	pcg := &mrand.PCG{}
	if err := pcg.UnmarshalBinary(data[8:]); err != nil {
		return fmt.Errorf("entropy: %w", err)
	}
	s.seed = binary.LittleEndian.Uint64(data[:8])
	s.pcg = pcg
	s.rng = mrand.New(pcg)
	return nil
}
