package heap

import (
	"fmt"
	"sync"

	"github.com/joshuapare/pagekit/heap/cache"
	"github.com/joshuapare/pagekit/heap/tx"
	"github.com/joshuapare/pagekit/internal/vmem"
)

// Provider sources chunk-granular pages for a heap. It is the generic
// growth contract: caged heaps expose one through CagedConfig.Provider
// so the same machinery drives caged and uncaged heaps, and global
// heaps consume one to reach the process-wide pool.
//
// name identifies the requesting heap for diagnostics. desired is the
// caller's preferred page state; the state actually honored is carried
// on the Result.
type Provider interface {
	ProvidePages(size, alignment uintptr, name string, txn *tx.Transaction, desired PageState) (Result, error)
}

// Source maps fresh committed memory outside any dedicated window. It
// is the OS boundary of the global path; the returned memory is zeroed
// and aligned as requested.
type Source interface {
	MapChunks(size, alignment uintptr) (uintptr, error)
}

// GlobalProvider serves page requests from a process-wide sharing cache
// of committed pages, mapping fresh memory on miss. All global heaps
// draw from the same pool, which is what keeps their combined RSS low.
type GlobalProvider struct {
	cache    *cache.SharedCache
	source   Source
	counters counters
}

// NewGlobalProvider builds a provider over the given mapping source.
func NewGlobalProvider(src Source) *GlobalProvider {
	if src == nil {
		src = newVmemSource()
	}
	return &GlobalProvider{
		cache:  cache.NewShared(),
		source: src,
	}
}

var defaultGlobal = sync.OnceValue(func() *GlobalProvider {
	return NewGlobalProvider(nil)
})

// DefaultGlobalProvider returns the process-wide provider backed by the
// OS virtual-memory layer. Constructed on first use, lives for the
// process lifetime.
func DefaultGlobalProvider() *GlobalProvider {
	return defaultGlobal()
}

// ProvidePages implements Provider. Fresh mappings are brand-new
// address space no decommitter tracks, so the transaction is not
// consulted on this path; it is accepted for contract compatibility.
func (p *GlobalProvider) ProvidePages(size, alignment uintptr, name string, _ *tx.Transaction, desired PageState) (Result, error) {
	checkChunkMultiple(size)
	if alignment > ChunkSize {
		return Failure(), ErrAlignmentUnsupported
	}

	p.counters.allocCalls.Add(1)

	if r, ok := p.cache.Acquire(size); ok {
		p.counters.largeHits.Add(1)
		if desired == PageStateZeroed {
			debugf("global %q: cache hit downgrades %v to dirty", name, desired)
		}
		return Success(r.Base, r.Size, PageStateDirty), nil
	}

	base, err := p.source.MapChunks(size, ChunkSize)
	if err != nil {
		p.counters.commitFailures.Add(1)
		return Failure(), fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	p.counters.commits.Add(1)
	return Success(base, size, PageStateZeroed), nil
}

// ReturnPages gives a previously provided range back to the shared
// pool, committed. The range stays backed for commit-free reuse; a
// scavenger harvesting the pool decides when backing is actually
// dropped.
func (p *GlobalProvider) ReturnPages(base, size uintptr) {
	checkChunkMultiple(size)
	p.counters.freeCalls.Add(1)
	p.cache.Release(cache.Range{Base: base, Size: size})
}

// Cache exposes the shared pool, for scavenger wiring and tests.
func (p *GlobalProvider) Cache() *cache.SharedCache {
	return p.cache
}

// Stats returns a snapshot of the provider counters.
func (p *GlobalProvider) Stats() Stats {
	return p.counters.snapshot()
}

// vmemSource maps committed chunks through internal/vmem, holding the
// reservations so their backing stays alive.
type vmemSource struct {
	mu   sync.Mutex
	maps []*vmem.Reservation
}

func newVmemSource() *vmemSource {
	return &vmemSource{}
}

func (s *vmemSource) MapChunks(size, alignment uintptr) (uintptr, error) {
	res, err := vmem.MapCommitted(size, alignment)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.maps = append(s.maps, res)
	s.mu.Unlock()
	return res.Base(), nil
}
