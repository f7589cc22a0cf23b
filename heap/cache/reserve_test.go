package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAcquireEmpty(t *testing.T) {
	c := NewReserve()
	_, _, ok := c.Acquire(page)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Misses)
}

func TestReserveTagRoundTrip(t *testing.T) {
	c := NewReserve()
	c.Release(Range{Base: 0x10000, Size: 2 * page}, ReservedOnly)

	r, committed, ok := c.Acquire(2 * page)
	require.True(t, ok)
	assert.False(t, committed, "reserved-only range needs a commit step")
	assert.Equal(t, uintptr(0x10000), r.Base)

	c.Release(r, KeepCommitted)
	r, committed, ok = c.Acquire(2 * page)
	require.True(t, ok)
	assert.True(t, committed)
	assert.Equal(t, uintptr(0x10000), r.Base)
}

func TestReservePrefersCommitted(t *testing.T) {
	c := NewReserve()
	// Lower address is reserved-only, higher is committed.
	c.Release(Range{Base: 0x10000, Size: 2 * page}, ReservedOnly)
	c.Release(Range{Base: 0x90000, Size: 2 * page}, KeepCommitted)

	r, committed, ok := c.Acquire(page)
	require.True(t, ok)
	assert.True(t, committed, "committed hit avoids the commit syscall")
	assert.Equal(t, uintptr(0x90000), r.Base)
}

func TestReserveSplitKeepsTag(t *testing.T) {
	c := NewReserve()
	c.Release(Range{Base: 0x10000, Size: 4 * page}, KeepCommitted)

	_, committed, ok := c.Acquire(page)
	require.True(t, ok)
	require.True(t, committed)

	ranges, tags := c.Tagged()
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Base: 0x10000 + page, Size: 3 * page}, ranges[0])
	assert.True(t, tags[0], "remainder of a committed range stays committed")
}

func TestReserveCoalesceSameTagOnly(t *testing.T) {
	c := NewReserve()
	c.Release(Range{Base: 0x10000, Size: page}, KeepCommitted)
	c.Release(Range{Base: 0x10000 + page, Size: page}, ReservedOnly)

	ranges, tags := c.Tagged()
	require.Len(t, ranges, 2, "mixed tags must not merge")

	c.Release(Range{Base: 0x10000 + 2*page, Size: page}, ReservedOnly)
	ranges, tags = c.Tagged()
	require.Len(t, ranges, 2, "same tags merge")
	assert.Equal(t, Range{Base: 0x10000 + page, Size: 2 * page}, ranges[1])
	assert.False(t, tags[1])
}

func TestReserveHarvestCommitted(t *testing.T) {
	c := NewReserve()
	c.Release(Range{Base: 0x10000, Size: page}, ReservedOnly)
	c.Release(Range{Base: 0x30000, Size: page}, KeepCommitted)
	c.Release(Range{Base: 0x50000, Size: page}, KeepCommitted)

	got := c.HarvestCommitted(page)
	require.Len(t, got, 1)
	assert.Equal(t, uintptr(0x30000), got[0].Base)

	ranges, tags := c.Tagged()
	require.Len(t, ranges, 2)
	assert.False(t, tags[0])
	assert.True(t, tags[1])
}

func TestReserveOverlappingReleasePanics(t *testing.T) {
	c := NewReserve()
	c.Release(Range{Base: 0x10000, Size: 2 * page}, ReservedOnly)
	assert.Panics(t, func() {
		c.Release(Range{Base: 0x10000, Size: page}, KeepCommitted)
	})
}
