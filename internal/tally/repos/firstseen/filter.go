// Package firstseen tracks which client addresses have already been observed
// using a Bloom filter. It backs the interceptor's "first request from client"
// debug line, so false positives only ever suppress a log message.
package firstseen

import (
	"math"
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/pingtally/internal/tally/domain"
)

// Filter answers "has this address been seen before?" and records it.
type Filter interface {
	// Observe records addr and reports whether it was probably seen already.
	Observe(addr domain.ClientAddress) bool
}

// filter wraps a bits-and-blooms BloomFilter with a mutex. Once capacity
// distinct additions have been made the filter is reset, keeping the false
// positive rate near its target at the cost of re-announcing old clients.
type filter struct {
	mu       sync.Mutex
	bf       *bitsbloom.BloomFilter
	capacity uint64
	added    uint64
}

// New sizes a Filter for capacity addresses at the target false positive rate.
func New(capacity uint64, fpRate float64) Filter {
	if capacity == 0 {
		capacity = 1
	}
	m, k := size(capacity, fpRate)
	return &filter{
		bf:       bitsbloom.New(uint(m), uint(k)),
		capacity: capacity,
	}
}

func (f *filter) Observe(addr domain.ClientAddress) bool {
	key := addr.As16()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bf.TestOrAdd(key[:]) {
		return true
	}
	f.added++
	if f.added >= f.capacity {
		f.bf.ClearAll()
		f.added = 0
	}
	return false
}

// size computes bit count m and hash count k from capacity n and target
// false positive rate p:
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// Results are clamped to at least 1; an out-of-range p falls back to 1%.
func size(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}

// nopFilter never remembers anything.
type nopFilter struct{}

// NewNop returns a Filter that reports every address as seen, which keeps
// first-seen logging silent.
func NewNop() Filter { return nopFilter{} }

func (nopFilter) Observe(domain.ClientAddress) bool { return true }
