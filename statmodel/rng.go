package statmodel

import (
	"hash/fnv"

	"golang.org/x/exp/rand"
)

// Streams hands out independent, reproducible random sources derived
// from a single master seed.  Each named stream is seeded with the
// master seed XORed with the FNV-1a hash of its name, so adding a new
// stream never perturbs the values produced by existing ones.
//
// Streams is not safe for concurrent use.  Sources it returns must
// not be shared between goroutines.
type Streams struct {
	seed    uint64
	sources map[string]rand.Source
}

// NewStreams returns a Streams value rooted at the given seed.
func NewStreams(seed uint64) *Streams {
	return &Streams{
		seed:    seed,
		sources: make(map[string]rand.Source),
	}
}

// Seed returns the master seed.
func (s *Streams) Seed() uint64 {
	return s.seed
}

// For returns the source for the named stream, creating it on first
// use.  Repeated calls with the same name return the same source.
func (s *Streams) For(name string) rand.Source {
	if src, ok := s.sources[name]; ok {
		return src
	}
	src := rand.NewSource(s.seed ^ fnv1a64(name))
	s.sources[name] = src
	return src
}

func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
