package objset

import (
	"sort"
	"sync"
)

// SetID names one object set: a grouping of chunks belonging to one
// logical heap, exposed for collector traversal.
type SetID string

// SetSet is the registry of object-set views. Safe for concurrent use;
// the lock is independent of the allocation caches, and a collector
// scan holds it only while snapshotting membership.
type SetSet struct {
	mu   sync.Mutex
	sets map[SetID]map[uintptr]struct{} // set -> chunk base addresses
}

// NewSetSet returns an empty registry.
func NewSetSet() *SetSet {
	return &SetSet{
		sets: make(map[SetID]map[uintptr]struct{}),
	}
}

// Register adds the chunk at base to the given set, creating the set on
// first use. Registering the same chunk twice is idempotent.
func (s *SetSet) Register(id SetID, base uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[id]
	if set == nil {
		set = make(map[uintptr]struct{})
		s.sets[id] = set
	}
	set[base] = struct{}{}
}

// Unregister removes the chunk at base from the given set. Removing an
// unknown chunk is a no-op.
func (s *SetSet) Unregister(id SetID, base uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set := s.sets[id]; set != nil {
		delete(set, base)
	}
}

// Chunks returns the chunk bases registered under id, address-sorted.
func (s *SetSet) Chunks(id SetID) []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[id]
	out := make([]uintptr, 0, len(set))
	for base := range set {
		out = append(out, base)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of chunks registered under id.
func (s *SetSet) Len(id SetID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[id])
}

// entry is one (set, chunk) pair in a scan snapshot.
type entry struct {
	id   SetID
	base uintptr
}

// ScanIter walks a snapshot of the registry: every (set, chunk) pair
// present when Scan was called, each exactly once, sets ordered by name
// and chunks by address. It is finite, restartable via Reset, and
// independent of registry mutation after the snapshot.
type ScanIter struct {
	entries []entry
	pos     int
}

// Scan snapshots current membership under the registry lock and returns
// an iterator over it. New registrations block for the duration of the
// copy, which is the one place the allocator may wait on the collector.
func (s *SetSet) Scan() *ScanIter {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]SetID, 0, len(s.sets))
	total := 0
	for id, set := range s.sets {
		ids = append(ids, id)
		total += len(set)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]entry, 0, total)
	for _, id := range ids {
		bases := make([]uintptr, 0, len(s.sets[id]))
		for base := range s.sets[id] {
			bases = append(bases, base)
		}
		sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })
		for _, base := range bases {
			entries = append(entries, entry{id: id, base: base})
		}
	}
	return &ScanIter{entries: entries}
}

// Next returns the next (set, chunk) pair, or ok=false when the
// snapshot is exhausted.
func (it *ScanIter) Next() (id SetID, base uintptr, ok bool) {
	if it.pos >= len(it.entries) {
		return "", 0, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e.id, e.base, true
}

// Reset restarts the iterator at the beginning of the same snapshot.
func (it *ScanIter) Reset() {
	it.pos = 0
}

// Len returns the number of pairs in the snapshot.
func (it *ScanIter) Len() int {
	return len(it.entries)
}

// ForEachSet visits every (set, chunk) pair in a fresh snapshot until
// the visitor returns false. Convenience wrapper over Scan.
func (s *SetSet) ForEachSet(visitor func(id SetID, base uintptr) bool) {
	it := s.Scan()
	for {
		id, base, ok := it.Next()
		if !ok {
			return
		}
		if !visitor(id, base) {
			return
		}
	}
}
