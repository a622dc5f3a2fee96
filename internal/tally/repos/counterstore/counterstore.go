// Package counterstore provides the concurrent per-client request counter.
//
// Counts live in a fixed set of shards, each guarded by its own RWMutex, so
// increments for addresses in different shards never contend. Snapshot takes
// the read lock of every shard (always in index order) before copying, which
// makes the returned copy a single consistent cut across all shards.
package counterstore

import (
	"errors"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/haukened/pingtally/internal/tally/domain"
)

// DefaultShards is the shard count used by New.
const DefaultShards = 16

var ErrInvalidShards = errors.New("shard count must be a positive power of two")

type shard struct {
	mu     sync.RWMutex
	counts map[domain.ClientAddress]uint64
}

// Store is a sharded, concurrency-safe map from client address to count.
type Store struct {
	shards []shard
	mask   uint64
}

// New returns an empty Store with DefaultShards shards.
func New() *Store {
	s, _ := NewWithShards(DefaultShards)
	return s
}

// NewWithShards returns an empty Store with n shards. n must be a power of two.
func NewWithShards(n int) (*Store, error) {
	if n <= 0 || bits.OnesCount(uint(n)) != 1 {
		return nil, ErrInvalidShards
	}
	s := &Store{
		shards: make([]shard, n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i].counts = make(map[domain.ClientAddress]uint64)
	}
	return s, nil
}

func (s *Store) shardFor(addr domain.ClientAddress) *shard {
	key := addr.As16()
	return &s.shards[xxhash.Sum64(key[:])&s.mask]
}

// Increment adds one to the count for addr, creating it at 1 if absent.
// Invalid addresses are ignored.
func (s *Store) Increment(addr domain.ClientAddress) {
	if !addr.IsValid() {
		return
	}
	addr = domain.NormalizeAddress(addr)
	sh := s.shardFor(addr)
	sh.mu.Lock()
	sh.counts[addr]++
	sh.mu.Unlock()
}

// Snapshot returns an independent point-in-time copy of every count.
func (s *Store) Snapshot() domain.Snapshot {
	for i := range s.shards {
		s.shards[i].mu.RLock()
	}
	n := 0
	for i := range s.shards {
		n += len(s.shards[i].counts)
	}
	out := make(domain.Snapshot, n)
	for i := range s.shards {
		for addr, c := range s.shards[i].counts {
			out[addr] = c
		}
	}
	for i := range s.shards {
		s.shards[i].mu.RUnlock()
	}
	return out
}

// Len returns the number of distinct addresses seen.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.counts)
		sh.mu.RUnlock()
	}
	return n
}
