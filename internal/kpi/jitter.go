package kpi

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Jitter supplies the bounded random variation applied to derived metrics.
type Jitter interface {
	// IntN returns a uniform integer in [lo, hi].
	IntN(lo, hi int) int
	// Float returns a uniform float in [lo, hi).
	Float(lo, hi float64) float64
}

type lockedJitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitter returns a Jitter seeded from the clock, safe for concurrent use.
func NewJitter() Jitter {
	now := uint64(time.Now().UnixNano())
	return NewSeededJitter(now, now>>17)
}

// NewSeededJitter returns a reproducible Jitter.
func NewSeededJitter(seed1, seed2 uint64) Jitter {
	return &lockedJitter{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

func (j *lockedJitter) IntN(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return lo + j.rnd.IntN(hi-lo+1)
}

func (j *lockedJitter) Float(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return lo + j.rnd.Float64()*(hi-lo)
}
