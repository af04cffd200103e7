package initiation

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a fixed one.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// Rand is a mutex-guarded source shared by the sweeps.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand seeds a source. Equal seeds give equal sequences.
func NewRand(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

// IntRange returns a uniform int in [lo, hi].
func (r *Rand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.r.IntN(hi-lo+1)
}

// Weighted picks an index with probability proportional to weights. ok is
// false when no weight is positive.
func (r *Rand) Weighted(weights []float64) (int, bool) {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0, false
	}
	x := r.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if x < w {
			return i, true
		}
		x -= w
	}
	return last, true
}
