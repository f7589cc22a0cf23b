package heap

import (
	"sync"
	"testing"

	"github.com/joshuapare/pagekit/heap/cache"
)

const testBase = uintptr(1) << 30

// fakeMem is a recording Memory implementation with scriptable commit
// failures.
type fakeMem struct {
	mu        sync.Mutex
	commits   []cache.Range
	decommits []cache.Range
	commitErr error
}

func (m *fakeMem) Commit(base, size uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits = append(m.commits, cache.Range{Base: base, Size: size})
	return nil
}

func (m *fakeMem) Decommit(base, size uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decommits = append(m.decommits, cache.Range{Base: base, Size: size})
	return nil
}

func (m *fakeMem) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commits)
}

func (m *fakeMem) setCommitErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// newTestCaged builds a caged config over a fake window of the given
// chunk capacity.
func newTestCaged(t *testing.T, chunks int) (*CagedConfig, *fakeMem) {
	t.Helper()
	mem := &fakeMem{}
	cfg := NewCaged("test-heap", Window{
		Base:      testBase,
		Size:      uintptr(chunks) * ChunkSize,
		Alignment: ChunkSize,
	}, mem)
	return cfg, mem
}

// fakeSource hands out fresh fake address space for the global path.
type fakeSource struct {
	mu   sync.Mutex
	next uintptr
}

func newFakeSource() *fakeSource {
	return &fakeSource{next: uintptr(1) << 32}
}

func (s *fakeSource) MapChunks(size, alignment uintptr) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.next
	s.next += size
	return base, nil
}

// conflictArbiter reports a conflict on every commit.
type conflictArbiter struct {
	mu      sync.Mutex
	intents int
}

func (a *conflictArbiter) ReserveIntent(base, size uintptr) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intents++
	return uint64(a.intents)
}

func (a *conflictArbiter) CommitIntent(token uint64) bool { return true }

func (a *conflictArbiter) ReleaseIntent(token uint64) {}
