package mtrand

import (
	"math"
	"sync"

	"github.com/zhangyunhao116/fastrand"
)

// SafeGenerator wraps a Generator behind a mutex so every goroutine
// servicing a create call can share one position generator without
// racing on its internal state.
type SafeGenerator struct {
	mu  sync.Mutex
	gen *Generator
}

// NewSafe returns a SafeGenerator seeded from the process-wide fast PRNG,
// so two nodes started in the same millisecond still draw independent
// streams.
func NewSafe() *SafeGenerator {
	return &SafeGenerator{gen: New(uint64(fastrand.Uint32())<<32 | uint64(fastrand.Uint32()))}
}

// NextAbsInt64 draws the next value and returns its absolute value,
// mirroring Math.abs(positionGenerator.nextLong()). Like Math.abs on a
// signed 64-bit integer, the single value math.MinInt64 has no positive
// counterpart and is returned unchanged.
func (s *SafeGenerator) NextAbsInt64() int64 {
	s.mu.Lock()
	v := s.gen.NextInt64()
	s.mu.Unlock()
	if v == math.MinInt64 {
		return v
	}
	if v < 0 {
		return -v
	}
	return v
}
