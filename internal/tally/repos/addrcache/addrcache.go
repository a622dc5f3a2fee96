package addrcache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/pingtally/internal/tally/domain"
)

// Resolver turns a transport peer string into a client address.
type Resolver interface {
	Resolve(remote string) (domain.ClientAddress, error)
}

// Stats reports lightweight cache metrics.
type Stats struct {
	Capacity int    // configured capacity (0 for disabled cache)
	Size     int    // current number of entries
	Hits     uint64 // total cache hits since construction
	Misses   uint64 // total cache misses since construction
}

// Cache memoizes domain.ParseRemoteAddr in an LRU keyed by the raw peer
// string. Keep-alive connections present the same string on every request.
// Parse failures are not cached. A Cache without an LRU parses every call.
type Cache struct {
	lru      *lru.Cache[string, domain.ClientAddress]
	capacity int
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// New returns a Cache of the given size. If size <= 0 the cache is disabled.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return &Cache{}, nil
	}
	c, err := lru.New[string, domain.ClientAddress](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, capacity: size}, nil
}

// Resolve returns the client address for remote.
func (c *Cache) Resolve(remote string) (domain.ClientAddress, error) {
	if c.lru == nil {
		return domain.ParseRemoteAddr(remote)
	}
	if addr, ok := c.lru.Get(remote); ok {
		c.hits.Add(1)
		return addr, nil
	}
	c.misses.Add(1)
	addr, err := domain.ParseRemoteAddr(remote)
	if err != nil {
		return domain.ClientAddress{}, err
	}
	c.lru.Add(remote, addr)
	return addr, nil
}

// Stats returns a best-effort snapshot of cache metrics.
func (c *Cache) Stats() Stats {
	if c.lru == nil {
		return Stats{}
	}
	return Stats{
		Capacity: c.capacity,
		Size:     c.lru.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

var _ Resolver = (*Cache)(nil)
