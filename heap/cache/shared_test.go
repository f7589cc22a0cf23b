package cache

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = 4096

func TestSharedAcquireEmpty(t *testing.T) {
	c := NewShared()
	_, ok := c.Acquire(page)
	assert.False(t, ok, "empty cache should miss")
	assert.Equal(t, 1, c.Stats().AcquireMisses)
}

func TestSharedReleaseAcquireRoundTrip(t *testing.T) {
	c := NewShared()
	r := Range{Base: 0x10000, Size: 4 * page}
	c.Release(r)

	got, ok := c.Acquire(4 * page)
	require.True(t, ok)
	assert.Equal(t, r, got)
	assert.Equal(t, uintptr(0), c.TotalFree())
}

func TestSharedSplitAndReinsert(t *testing.T) {
	c := NewShared()
	c.Release(Range{Base: 0x10000, Size: 8 * page})

	got, ok := c.Acquire(2 * page)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x10000), got.Base)
	assert.Equal(t, uintptr(2*page), got.Size)

	// Remainder stays tracked.
	rest := c.Ranges()
	require.Len(t, rest, 1)
	assert.Equal(t, Range{Base: 0x10000 + 2*page, Size: 6 * page}, rest[0])
	assert.Equal(t, 1, c.Stats().Splits)
}

func TestSharedLowestAddressPreferred(t *testing.T) {
	c := NewShared()
	// Insert high range first so preference cannot be insertion order.
	c.Release(Range{Base: 0x90000, Size: 2 * page})
	c.Release(Range{Base: 0x10000, Size: 2 * page})

	got, ok := c.Acquire(page)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x10000), got.Base, "lowest-address fit wins")
}

func TestSharedCoalesceBothSides(t *testing.T) {
	c := NewShared()
	c.Release(Range{Base: 0x10000, Size: page})
	c.Release(Range{Base: 0x10000 + 2*page, Size: page})
	require.Len(t, c.Ranges(), 2)

	// The middle piece bridges both neighbors.
	c.Release(Range{Base: 0x10000 + page, Size: page})
	got := c.Ranges()
	require.Len(t, got, 1)
	assert.Equal(t, Range{Base: 0x10000, Size: 3 * page}, got[0])
}

func TestSharedReusesReleasedRange(t *testing.T) {
	c := NewShared()
	released := Range{Base: 0x40000, Size: 2 * page}
	c.Release(released)

	got, ok := c.Acquire(2 * page)
	require.True(t, ok)
	assert.True(t, got.Overlaps(released), "re-acquire must overlap the released range")
}

func TestSharedOverlappingReleasePanics(t *testing.T) {
	c := NewShared()
	c.Release(Range{Base: 0x10000, Size: 2 * page})
	assert.Panics(t, func() {
		c.Release(Range{Base: 0x10000 + page, Size: 2 * page})
	})
}

func TestSharedHarvest(t *testing.T) {
	c := NewShared()
	c.Release(Range{Base: 0x10000, Size: page})
	c.Release(Range{Base: 0x30000, Size: page})
	c.Release(Range{Base: 0x50000, Size: 4 * page})

	got := c.Harvest(2 * page)
	require.Len(t, got, 2, "harvest stops at the budget")
	assert.Equal(t, uintptr(0x10000), got[0].Base)
	assert.Equal(t, uintptr(0x30000), got[1].Base)
	assert.Equal(t, uintptr(4*page), c.TotalFree())
}

// checkInvariants asserts disjointness, sortedness, and coalescing.
func checkInvariants(t *testing.T, ranges []Range) {
	t.Helper()
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if prev.End() > cur.Base {
			t.Fatalf("ranges overlap or unsorted: %v then %v", prev, cur)
		}
		if prev.End() == cur.Base {
			t.Fatalf("adjacent ranges not coalesced: %v then %v", prev, cur)
		}
	}
}

// TestSharedRandomizedInvariants drives random acquire/release sequences
// and checks the free-list invariants after every operation.
func TestSharedRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := NewShared()

	// Owned ranges we can legally release back.
	var owned []Range
	// Seed the cache from a fake window carved in page units.
	cursor := uintptr(0x100000)
	for i := 0; i < 8; i++ {
		size := uintptr(1+rng.Intn(8)) * page
		owned = append(owned, Range{Base: cursor, Size: size})
		cursor += size
	}

	for n := 0; n < 2000; n++ {
		if len(owned) > 0 && rng.Intn(2) == 0 {
			i := rng.Intn(len(owned))
			c.Release(owned[i])
			owned = append(owned[:i], owned[i+1:]...)
		} else {
			size := uintptr(1+rng.Intn(8)) * page
			if r, ok := c.Acquire(size); ok {
				owned = append(owned, r)
			}
		}
		checkInvariants(t, c.Ranges())
	}

	// Everything released must be accounted for exactly once.
	var ownedBytes, freeBytes uintptr
	for _, r := range owned {
		ownedBytes += r.Size
	}
	for _, r := range c.Ranges() {
		freeBytes += r.Size
	}
	assert.Equal(t, cursor-0x100000, ownedBytes+freeBytes, "no bytes fabricated or lost")
}
