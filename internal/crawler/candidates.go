package crawler

import (
	"math/rand"
	"sync"
	"time"
)

// Source yields candidate document identifiers for the download phase.
// Implementations must be safe for concurrent use.
type Source interface {
	Next() int
}

// RandomSource draws identifiers uniformly at random from [1, max]. The
// remote repository's identifier space is sparse, so random sampling with
// ledger-based dedup is an acceptable crawl strategy.
type RandomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	max int
}

// NewRandomSource creates a RandomSource over [1, max].
func NewRandomSource(max int) *RandomSource {
	if max < 1 {
		max = 1
	}
	return &RandomSource{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		max: max,
	}
}

func (s *RandomSource) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(s.max) + 1
}

// SequenceSource yields a fixed list of identifiers in order, wrapping around
// when exhausted. Used for deterministic runs and tests.
type SequenceSource struct {
	mu  sync.Mutex
	ids []int
	pos int
}

// NewSequenceSource creates a SequenceSource over ids.
func NewSequenceSource(ids ...int) *SequenceSource {
	return &SequenceSource{ids: ids}
}

func (s *SequenceSource) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return 0
	}
	id := s.ids[s.pos%len(s.ids)]
	s.pos++
	return id
}
