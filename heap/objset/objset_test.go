package objset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunk = 1 << 16

func TestRegisterUnregister(t *testing.T) {
	s := NewSetSet()
	s.Register("default", 0x10000)
	s.Register("default", 0x20000)
	s.Register("destructors", 0x10000)

	assert.Equal(t, 2, s.Len("default"))
	assert.Equal(t, 1, s.Len("destructors"))
	assert.Equal(t, []uintptr{0x10000, 0x20000}, s.Chunks("default"))

	s.Unregister("default", 0x10000)
	assert.Equal(t, []uintptr{0x20000}, s.Chunks("default"))

	// Unknown removals are no-ops.
	s.Unregister("default", 0xDEAD0000)
	s.Unregister("nosuchset", 0x10000)
	assert.Equal(t, 1, s.Len("default"))
}

func TestRegisterIdempotent(t *testing.T) {
	s := NewSetSet()
	s.Register("default", 0x10000)
	s.Register("default", 0x10000)
	assert.Equal(t, 1, s.Len("default"))
}

func TestScanVisitsEachPairExactlyOnce(t *testing.T) {
	s := NewSetSet()
	want := map[SetID][]uintptr{
		"a": {0x10000, 0x20000},
		"b": {0x10000},
	}
	for id, bases := range want {
		for _, b := range bases {
			s.Register(id, b)
		}
	}

	seen := make(map[SetID]map[uintptr]int)
	it := s.Scan()
	for {
		id, base, ok := it.Next()
		if !ok {
			break
		}
		if seen[id] == nil {
			seen[id] = make(map[uintptr]int)
		}
		seen[id][base]++
	}

	for id, bases := range want {
		for _, b := range bases {
			assert.Equal(t, 1, seen[id][b], "set %s chunk 0x%X", id, b)
		}
	}
	assert.Equal(t, 3, it.Len())
}

func TestScanExcludesPostSnapshotRegistrations(t *testing.T) {
	s := NewSetSet()
	s.Register("default", 0x10000)

	it := s.Scan()
	s.Register("default", 0x20000)
	s.Unregister("default", 0x10000)

	id, base, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, SetID("default"), id)
	assert.Equal(t, uintptr(0x10000), base, "snapshot reflects registration time")

	_, _, ok = it.Next()
	assert.False(t, ok, "post-snapshot chunk must be excluded")
}

func TestScanReset(t *testing.T) {
	s := NewSetSet()
	s.Register("default", 0x10000)

	it := s.Scan()
	_, _, ok := it.Next()
	require.True(t, ok)
	_, _, ok = it.Next()
	require.False(t, ok)

	it.Reset()
	_, base, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, uintptr(0x10000), base)
}

func TestForEachSetEarlyStop(t *testing.T) {
	s := NewSetSet()
	for i := 0; i < 8; i++ {
		s.Register("default", uintptr(i)*chunk)
	}
	visited := 0
	s.ForEachSet(func(SetID, uintptr) bool {
		visited++
		return visited < 3
	})
	assert.Equal(t, 3, visited)
}

// TestScanDuringConcurrentRegistration checks that a snapshot taken
// mid-churn is internally consistent: every pair visited once, count
// frozen at snapshot time.
func TestScanDuringConcurrentRegistration(t *testing.T) {
	s := NewSetSet()
	for i := 0; i < 64; i++ {
		s.Register("default", uintptr(i)*chunk)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		base := uintptr(1 << 30)
		for {
			select {
			case <-stop:
				return
			default:
				s.Register("default", base)
				base += chunk
			}
		}
	}()

	for n := 0; n < 50; n++ {
		it := s.Scan()
		seen := make(map[uintptr]bool, it.Len())
		n := 0
		for {
			_, base, ok := it.Next()
			if !ok {
				break
			}
			if seen[base] {
				t.Fatalf("chunk 0x%X visited twice", base)
			}
			seen[base] = true
			n++
		}
		if n != it.Len() {
			t.Fatalf("visited %d of %d snapshot entries", n, it.Len())
		}
	}

	close(stop)
	wg.Wait()
}
