package cache

import (
	"sort"
	"sync"
)

// CommitDisposition tells the reserve-commit cache what to do with a
// range's physical backing when the range is returned.
type CommitDisposition int

const (
	// ReservedOnly records the range as address-space-only: its backing
	// has been (or will be) released to the OS. Favors low RSS under
	// memory pressure.
	ReservedOnly CommitDisposition = iota

	// KeepCommitted records the range as still physically backed,
	// favoring commit-free reuse on the next acquire.
	KeepCommitted
)

func (d CommitDisposition) String() string {
	switch d {
	case ReservedOnly:
		return "reserved-only"
	case KeepCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// taggedRange is a free range plus its commit state.
type taggedRange struct {
	Range
	committed bool
}

// ReserveCache is the reserve-commit cache: free virtual ranges whose
// address space is claimed but whose physical backing may or may not be
// present. Tracking the two states separately lets reservation cost and
// commit cost amortize independently: a reserved-only hit still saves
// the address-space bookkeeping even though a commit must follow.
//
// Ranges are address-sorted and disjoint. Adjacent ranges merge only
// when their commit tags match; a committed range never silently
// absorbs an unbacked neighbor.
//
// Safe for concurrent use.
type ReserveCache struct {
	mu     sync.Mutex
	ranges []taggedRange
	stats  ReserveStats
}

// ReserveStats holds counters for instrumentation and tests.
type ReserveStats struct {
	Acquires      int // Acquire calls
	CommittedHits int // Acquires satisfied by a committed range
	ReservedHits  int // Acquires satisfied by a reserved-only range
	Misses        int // Acquires that found nothing
	Releases      int // Release calls
	Splits        int // Ranges split on acquire
}

// NewReserve returns an empty reserve-commit cache.
func NewReserve() *ReserveCache {
	return &ReserveCache{
		ranges: make([]taggedRange, 0, 16),
	}
}

// Acquire removes and returns a free range of at least size bytes,
// preferring committed ranges (commit-free reuse) over reserved-only
// ones, and lower addresses within each preference tier. The committed
// return tells the caller whether the range's backing is present; a
// false value means a commit step must run before the memory is usable.
func (c *ReserveCache) Acquire(size uintptr) (r Range, committed bool, ok bool) {
	if size == 0 {
		panic("cache: zero-size acquire")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Acquires++

	fit := -1
	for i, t := range c.ranges {
		if t.Size < size {
			continue
		}
		if t.committed {
			// Lowest-address committed fit wins outright.
			fit = i
			break
		}
		if fit < 0 {
			fit = i
		}
	}
	if fit < 0 {
		c.stats.Misses++
		return Range{}, false, false
	}

	t := c.ranges[fit]
	grant := Range{Base: t.Base, Size: size}
	if t.Size == size {
		c.ranges = append(c.ranges[:fit], c.ranges[fit+1:]...)
	} else {
		// The remainder keeps the tag: splitting a committed range
		// leaves a committed tail.
		c.stats.Splits++
		c.ranges[fit] = taggedRange{
			Range:     Range{Base: t.Base + size, Size: t.Size - size},
			committed: t.committed,
		}
	}

	if t.committed {
		c.stats.CommittedHits++
	} else {
		c.stats.ReservedHits++
	}
	return grant, t.committed, true
}

// Release inserts a range back, tagged per disp. Overlap with a tracked
// range is a broken ownership contract and panics.
func (c *ReserveCache) Release(r Range, disp CommitDisposition) {
	if r.Size == 0 {
		panic("cache: zero-size release")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Releases++
	c.insert(taggedRange{Range: r, committed: disp == KeepCommitted})
}

// insert places t at its sorted position, merging same-tag neighbors.
// Caller holds c.mu.
func (c *ReserveCache) insert(t taggedRange) {
	i := sort.Search(len(c.ranges), func(j int) bool {
		return c.ranges[j].Base >= t.Base
	})

	if i > 0 && c.ranges[i-1].End() > t.Base {
		panic("cache: release overlaps tracked range " + c.ranges[i-1].String())
	}
	if i < len(c.ranges) && t.End() > c.ranges[i].Base {
		panic("cache: release overlaps tracked range " + c.ranges[i].String())
	}

	if i > 0 && c.ranges[i-1].End() == t.Base && c.ranges[i-1].committed == t.committed {
		c.ranges[i-1].Size += t.Size
		if i < len(c.ranges) &&
			c.ranges[i-1].End() == c.ranges[i].Base &&
			c.ranges[i-1].committed == c.ranges[i].committed {
			c.ranges[i-1].Size += c.ranges[i].Size
			c.ranges = append(c.ranges[:i], c.ranges[i+1:]...)
		}
		return
	}

	if i < len(c.ranges) && t.End() == c.ranges[i].Base && c.ranges[i].committed == t.committed {
		c.ranges[i].Base = t.Base
		c.ranges[i].Size += t.Size
		return
	}

	c.ranges = append(c.ranges, taggedRange{})
	copy(c.ranges[i+1:], c.ranges[i:])
	c.ranges[i] = t
}

// HarvestCommitted removes and returns committed ranges totaling at
// most budget bytes, lowest addresses first. Used by a decommitter to
// strip backing from idle reservations; callers re-release the ranges
// as ReservedOnly once the decommit syscall has run.
func (c *ReserveCache) HarvestCommitted(budget uintptr) []Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Range
	var taken uintptr
	kept := c.ranges[:0]
	for _, t := range c.ranges {
		if t.committed && taken+t.Size <= budget {
			taken += t.Size
			out = append(out, t.Range)
			continue
		}
		kept = append(kept, t)
	}
	c.ranges = kept
	return out
}

// Tagged returns a snapshot of (range, committed) pairs in address
// order. Intended for tests and diagnostics.
func (c *ReserveCache) Tagged() (ranges []Range, committed []bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.ranges {
		ranges = append(ranges, t.Range)
		committed = append(committed, t.committed)
	}
	return ranges, committed
}

// Stats returns a snapshot of the cache counters.
func (c *ReserveCache) Stats() ReserveStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
