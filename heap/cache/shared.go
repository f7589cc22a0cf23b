package cache

import (
	"sort"
	"sync"
)

// SharedCache is the physical-page sharing cache: a free list of
// committed, reusable ranges keyed by address. Every caged config that
// opts into sharing feeds it on release and drains it on acquire, which
// keeps committed pages circulating instead of bouncing through the OS.
//
// Ranges are kept address-sorted, pairwise disjoint, and coalesced.
// Acquire prefers the lowest-address fitting range; because the scan
// runs in address order, the first fit is also the lowest-address fit.
// Keeping grants low keeps the resident set compact, which helps the
// collector's chunk scan locality.
//
// Safe for concurrent use. The lock is held only for O(n) slice
// bookkeeping, never across a syscall.
type SharedCache struct {
	mu     sync.Mutex
	ranges []Range // address-sorted, disjoint, coalesced
	free   uintptr // total free bytes across ranges
	stats  SharedStats
}

// SharedStats holds counters for instrumentation and tests.
type SharedStats struct {
	Acquires       int   // Acquire calls
	AcquireHits    int   // Acquire calls that found a fit
	AcquireMisses  int   // Acquire calls that found nothing
	Releases       int   // Release calls
	Splits         int   // Ranges split on acquire
	CoalesceLower  int   // Merges with the lower-address neighbor
	CoalesceHigher int   // Merges with the higher-address neighbor
	BytesAcquired  int64 // Total bytes handed out
	BytesReleased  int64 // Total bytes taken back
}

// NewShared returns an empty sharing cache.
func NewShared() *SharedCache {
	return &SharedCache{
		ranges: make([]Range, 0, 16),
	}
}

// Acquire removes and returns the lowest-address free range of at least
// size bytes, splitting off and reinserting any remainder. The second
// return is false when no tracked range is large enough; the caller then
// has to commit fresh memory.
func (c *SharedCache) Acquire(size uintptr) (Range, bool) {
	if size == 0 {
		panic("cache: zero-size acquire")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Acquires++

	for i, r := range c.ranges {
		if r.Size < size {
			continue
		}
		grant := Range{Base: r.Base, Size: size}
		if r.Size == size {
			c.ranges = append(c.ranges[:i], c.ranges[i+1:]...)
		} else {
			// Split: grant the head, keep the tail in place. The tail
			// stays sorted because only its base moved.
			c.stats.Splits++
			c.ranges[i] = Range{Base: r.Base + size, Size: r.Size - size}
		}
		c.free -= size
		c.stats.AcquireHits++
		c.stats.BytesAcquired += int64(size)
		return grant, true
	}

	c.stats.AcquireMisses++
	return Range{}, false
}

// Release inserts a range back into the cache, coalescing with
// address-adjacent neighbors. The range must not overlap any tracked
// range; an overlap means two owners believed they held the same memory,
// which is a broken caller contract, so Release panics rather than
// corrupting the free list.
func (c *SharedCache) Release(r Range) {
	if r.Size == 0 {
		panic("cache: zero-size release")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Releases++
	c.stats.BytesReleased += int64(r.Size)
	c.insert(r)
	c.free += r.Size
}

// insert places r at its sorted position and merges adjacent neighbors.
// Caller holds c.mu.
func (c *SharedCache) insert(r Range) {
	i := sort.Search(len(c.ranges), func(j int) bool {
		return c.ranges[j].Base >= r.Base
	})

	if i > 0 && c.ranges[i-1].End() > r.Base {
		panic("cache: release overlaps tracked range " + c.ranges[i-1].String())
	}
	if i < len(c.ranges) && r.End() > c.ranges[i].Base {
		panic("cache: release overlaps tracked range " + c.ranges[i].String())
	}

	// Merge with the lower neighbor if it ends exactly at r.Base.
	if i > 0 && c.ranges[i-1].End() == r.Base {
		c.stats.CoalesceLower++
		c.ranges[i-1].Size += r.Size
		// The merged range may now touch the higher neighbor too.
		if i < len(c.ranges) && c.ranges[i-1].End() == c.ranges[i].Base {
			c.stats.CoalesceHigher++
			c.ranges[i-1].Size += c.ranges[i].Size
			c.ranges = append(c.ranges[:i], c.ranges[i+1:]...)
		}
		return
	}

	// Merge with the higher neighbor if r ends exactly at its base.
	if i < len(c.ranges) && r.End() == c.ranges[i].Base {
		c.stats.CoalesceHigher++
		c.ranges[i].Base = r.Base
		c.ranges[i].Size += r.Size
		return
	}

	c.ranges = append(c.ranges, Range{})
	copy(c.ranges[i+1:], c.ranges[i:])
	c.ranges[i] = r
}

// Harvest removes and returns whole ranges totaling at most budget
// bytes, lowest addresses first. It is the feeding side of a background
// decommitter: harvested ranges leave the cache entirely so the
// decommit syscall can run without the cache lock.
func (c *SharedCache) Harvest(budget uintptr) []Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Range
	var taken uintptr
	i := 0
	for i < len(c.ranges) && taken+c.ranges[i].Size <= budget {
		taken += c.ranges[i].Size
		out = append(out, c.ranges[i])
		i++
	}
	if i > 0 {
		c.ranges = append(c.ranges[:0], c.ranges[i:]...)
		c.free -= taken
	}
	return out
}

// TotalFree returns the number of free bytes currently tracked.
func (c *SharedCache) TotalFree() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.free
}

// Ranges returns a snapshot of the tracked ranges in address order.
// Intended for tests and diagnostics.
func (c *SharedCache) Ranges() []Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Range, len(c.ranges))
	copy(out, c.ranges)
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *SharedCache) Stats() SharedStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
