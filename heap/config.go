package heap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/pagekit/heap/cache"
	"github.com/joshuapare/pagekit/heap/objset"
	"github.com/joshuapare/pagekit/heap/tx"
	"github.com/joshuapare/pagekit/internal/vmem"
)

// KindConfig is the per-heap-kind coordinator: one per kind, not per
// heap instance, constructed at registration and alive for the process
// lifetime. The two kinds are distinct types so the "fully caged or
// fully global" invariant holds by construction instead of by runtime
// checks on half-populated fields.
type KindConfig interface {
	// AllocateChunks acquires size bytes (a positive ChunkSize
	// multiple) for this heap kind. txn may be nil when no concurrent
	// decommitter exists. On success the granted chunks are registered
	// in the kind's object sets and the Result carries the zero-fill
	// state actually honored.
	AllocateChunks(size uintptr, txn *tx.Transaction, desired PageState) (Result, error)

	// ObjectSets exposes the registry a collector scans.
	ObjectSets() *objset.SetSet

	// Caged reports whether the kind owns a dedicated address window.
	Caged() bool
}

// Window is a caged heap's dedicated virtual-address range. Every grant
// falls inside [Base, Base+Size); Size is the kind's hard capacity
// ceiling.
type Window struct {
	Base      uintptr // window start, aligned to Alignment
	Size      uintptr // window length, a ChunkSize multiple
	Alignment uintptr // power-of-two cage alignment, >= ChunkSize
}

func (w Window) End() uintptr {
	return w.Base + w.Size
}

func (w Window) validate() {
	if w.Size == 0 || w.Size%ChunkSize != 0 {
		panic(fmt.Sprintf("heap: window size %d is not a positive ChunkSize multiple", w.Size))
	}
	if w.Alignment < ChunkSize || w.Alignment&(w.Alignment-1) != 0 {
		panic(fmt.Sprintf("heap: window alignment %d is not a power of two >= ChunkSize", w.Alignment))
	}
	if w.Base == 0 || w.Base%w.Alignment != 0 {
		panic(fmt.Sprintf("heap: window base 0x%X not aligned to %d", w.Base, w.Alignment))
	}
}

// Memory is the OS backing interface for a window. vmem.Reservation
// satisfies it; tests substitute fakes.
type Memory interface {
	// Commit makes [base, base+size) physically backed. Freshly
	// committed memory is zero-filled.
	Commit(base, size uintptr) error

	// Decommit drops the physical backing of [base, base+size).
	Decommit(base, size uintptr) error
}

// GlobalConfig is the kind config for heaps with no address-window
// restriction. Paging is delegated to the provider; the config itself
// only tracks object-set membership.
type GlobalConfig struct {
	name     string
	setID    objset.SetID
	provider Provider
	sets     *objset.SetSet
	counters counters
}

// NewGlobal builds a global kind config. A nil provider means the
// process-wide default.
func NewGlobal(name string, p Provider) *GlobalConfig {
	if name == "" {
		panic("heap: empty heap kind name")
	}
	if p == nil {
		p = DefaultGlobalProvider()
	}
	return &GlobalConfig{
		name:     name,
		setID:    objset.SetID(name),
		provider: p,
		sets:     objset.NewSetSet(),
	}
}

// AllocateChunks implements KindConfig by delegating to the provider
// with the chunk-granular contract.
func (c *GlobalConfig) AllocateChunks(size uintptr, txn *tx.Transaction, desired PageState) (Result, error) {
	checkChunkMultiple(size)
	c.counters.allocCalls.Add(1)

	res, err := c.provider.ProvidePages(size, ChunkSize, c.name, txn, desired)
	if err != nil {
		return Failure(), err
	}
	registerChunks(c.sets, c.setID, res.Base, res.Size)
	c.counters.bytesAllocated.Add(uint64(size))
	return res, nil
}

// FreeChunks returns a previously granted range. The pages go back to
// the provider's shared pool when it supports returns.
func (c *GlobalConfig) FreeChunks(base, size uintptr) {
	checkChunkMultiple(size)
	c.counters.freeCalls.Add(1)
	c.counters.bytesFreed.Add(uint64(size))
	unregisterChunks(c.sets, c.setID, base, size)
	if gp, ok := c.provider.(*GlobalProvider); ok {
		gp.ReturnPages(base, size)
	}
}

// ObjectSets implements KindConfig.
func (c *GlobalConfig) ObjectSets() *objset.SetSet { return c.sets }

// Caged implements KindConfig.
func (c *GlobalConfig) Caged() bool { return false }

// Name returns the heap kind name.
func (c *GlobalConfig) Name() string { return c.name }

// Stats returns a snapshot of the config counters.
func (c *GlobalConfig) Stats() Stats { return c.counters.snapshot() }

// CagedConfig is the kind config for heaps confined to a pre-reserved
// address window. It owns the window cursor, both page caches, and the
// object-set registry. Mutation happens only through the allocation and
// release entry points, which serialize cache access internally.
type CagedConfig struct {
	name   string
	setID  objset.SetID
	window Window
	mem    Memory

	large *cache.SharedCache  // committed, reusable pages
	small *cache.ReserveCache // claimed address space, tagged by commit state
	sets  *objset.SetSet

	cursor   atomicCursor
	counters counters
}

// NewCaged builds a caged kind config over an already-reserved window.
// Window invariants (alignment, granularity) are contract violations
// when broken and panic.
func NewCaged(name string, window Window, mem Memory) *CagedConfig {
	if name == "" {
		panic("heap: empty heap kind name")
	}
	if mem == nil {
		panic("heap: nil Memory for caged config")
	}
	window.validate()
	c := &CagedConfig{
		name:   name,
		setID:  objset.SetID(name),
		window: window,
		mem:    mem,
		large:  cache.NewShared(),
		small:  cache.NewReserve(),
		sets:   objset.NewSetSet(),
	}
	c.cursor.next = window.Base
	return c
}

// NewCagedFromReservation reserves nothing itself: it wires a caged
// config directly over a vmem reservation, which already satisfies
// Memory. alignment is the cage alignment the reservation was made with.
func NewCagedFromReservation(name string, res *vmem.Reservation, alignment uintptr) *CagedConfig {
	return NewCaged(name, Window{
		Base:      res.Base(),
		Size:      res.Size(),
		Alignment: alignment,
	}, res)
}

// AllocateChunks implements KindConfig. The request is satisfied first
// from the sharing cache (fast path, no commit), then from the
// reserve-commit cache (commit step inside txn when the hit is
// unbacked), then by carving fresh address space from the window.
// Failure is always a result, never a fatal condition: window
// exhaustion, commit failure, and retry-budget exhaustion all surface
// as errors the growth logic can act on.
func (c *CagedConfig) AllocateChunks(size uintptr, txn *tx.Transaction, desired PageState) (Result, error) {
	checkChunkMultiple(size)
	if txn == nil {
		txn = tx.New(nil)
	}

	c.counters.allocCalls.Add(1)

	// Fast path: committed pages shared from earlier releases. The
	// sharing cache is always consulted and released before the
	// reserve cache is touched (lock-order rule).
	if r, ok := c.large.Acquire(size); ok {
		c.counters.largeHits.Add(1)
		c.grant(r)
		if desired == PageStateZeroed {
			debugf("caged %q: sharing-cache hit downgrades %v to dirty", c.name, desired)
		}
		return Success(r.Base, r.Size, PageStateDirty), nil
	}

	// Reserved address space, committed or not.
	r, committed, ok := c.small.Acquire(size)
	if ok {
		c.counters.reserveHits.Add(1)
	} else {
		fresh, err := c.reserveFresh(size)
		if err != nil {
			return Failure(), err
		}
		c.counters.freshReserves.Add(1)
		r, committed = fresh, false
	}

	state := PageStateDirty
	if !committed {
		if err := c.commitRange(txn, r); err != nil {
			// The address space is still ours; keep it for the next
			// attempt rather than leaking window capacity.
			c.small.Release(r, cache.ReservedOnly)
			return Failure(), err
		}
		state = PageStateZeroed
	}

	c.grant(r)
	return Success(r.Base, r.Size, state), nil
}

// FreeChunks returns a previously granted range. KeepCommitted routes
// the pages to the sharing cache for commit-free reuse; ReservedOnly
// decommits (minimizing RSS, the memory-pressure response) and keeps
// only the address space. The choice is driven by an external pressure
// signal, not by this config.
func (c *CagedConfig) FreeChunks(base, size uintptr, disp cache.CommitDisposition) error {
	checkChunkMultiple(size)
	if base < c.window.Base || base+size > c.window.End() || !IsChunkAligned(base) {
		panic(fmt.Sprintf("heap: FreeChunks range [0x%X, +%d) not chunk-granular inside window", base, size))
	}

	c.counters.freeCalls.Add(1)
	c.counters.bytesFreed.Add(uint64(size))
	unregisterChunks(c.sets, c.setID, base, size)

	r := cache.Range{Base: base, Size: size}
	if disp == cache.KeepCommitted {
		c.large.Release(r)
		return nil
	}
	if err := c.mem.Decommit(base, size); err != nil {
		// Backing was not dropped; the pages remain committed and
		// reusable, so track them that way.
		c.large.Release(r)
		return fmt.Errorf("decommit [0x%X, +%d): %w", base, size, err)
	}
	c.small.Release(r, cache.ReservedOnly)
	return nil
}

// Provider exposes this config through the generic page-provider
// contract, so a caged heap is driven by the same growth machinery as
// an uncaged one.
func (c *CagedConfig) Provider() Provider {
	return chunksProvider{cfg: c}
}

// ObjectSets implements KindConfig.
func (c *CagedConfig) ObjectSets() *objset.SetSet { return c.sets }

// Caged implements KindConfig.
func (c *CagedConfig) Caged() bool { return true }

// Name returns the heap kind name.
func (c *CagedConfig) Name() string { return c.name }

// Window returns the dedicated address window.
func (c *CagedConfig) Window() Window { return c.window }

// PageCaches exposes the owned caches for scavenger wiring and tests.
func (c *CagedConfig) PageCaches() (large *cache.SharedCache, small *cache.ReserveCache) {
	return c.large, c.small
}

// Stats returns a snapshot of the config counters.
func (c *CagedConfig) Stats() Stats { return c.counters.snapshot() }

// grant records a successful acquisition.
func (c *CagedConfig) grant(r cache.Range) {
	registerChunks(c.sets, c.setID, r.Base, r.Size)
	c.counters.bytesAllocated.Add(uint64(r.Size))
}

// reserveFresh carves the next size bytes off the window. The cursor
// only ever moves forward; freed address space re-enters through the
// caches, not the cursor.
func (c *CagedConfig) reserveFresh(size uintptr) (cache.Range, error) {
	base, ok := c.cursor.take(size, c.window.End())
	if !ok {
		c.counters.windowExhausted.Add(1)
		debugf("caged %q: window exhausted (size=%d, window=%d)", c.name, size, c.window.Size)
		return cache.Range{}, fmt.Errorf("%w: %q window of %d bytes", ErrWindowExhausted, c.name, c.window.Size)
	}
	return cache.Range{Base: base, Size: size}, nil
}

// commitRange runs the transactional commit protocol on a range the
// caller exclusively owns. No cache lock is held here: the syscall is
// the unbounded-latency part and must not block other threads'
// fast-path lookups. Each conflict-abort redoes the whole attempt with
// a fresh (reset) transaction until the budget runs out.
func (c *CagedConfig) commitRange(txn *tx.Transaction, r cache.Range) error {
	for {
		txn.Begin(r.Base, r.Size)
		if err := c.mem.Commit(r.Base, r.Size); err != nil {
			txn.Abort()
			c.counters.commitFailures.Add(1)
			return fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
		c.counters.commits.Add(1)
		err := txn.Commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, tx.ErrConflict) {
			return err
		}
		// A decommitter raced us; our commit may have been undone.
		c.counters.conflicts.Add(1)
		debugf("caged %q: commit conflict on %v, retries left %d", c.name, r, txn.Remaining())
		if !txn.Retry() {
			return ErrTransactionAborted
		}
	}
}

// chunksProvider adapts AllocateChunks to the Provider contract. A
// caged heap's chunks are always chunk-aligned, so alignment requests
// past the granularity fail closed.
type chunksProvider struct {
	cfg *CagedConfig
}

func (p chunksProvider) ProvidePages(size, alignment uintptr, name string, txn *tx.Transaction, desired PageState) (Result, error) {
	if alignment > ChunkSize {
		debugf("caged %q: provider request from %q with unsupported alignment %d", p.cfg.name, name, alignment)
		return Failure(), ErrAlignmentUnsupported
	}
	return p.cfg.AllocateChunks(size, txn, desired)
}

// AllocateChunksRetrying is the convenience entry the generic growth
// logic uses: it builds a budgeted transaction against arb and runs one
// allocation through it.
func AllocateChunksRetrying(cfg KindConfig, size uintptr, arb tx.Arbiter, desired PageState) (Result, error) {
	return cfg.AllocateChunks(size, tx.New(arb), desired)
}

// registerChunks records every chunk in [base, base+size) under id.
func registerChunks(sets *objset.SetSet, id objset.SetID, base, size uintptr) {
	for b := base; b < base+size; b += ChunkSize {
		sets.Register(id, b)
	}
}

// unregisterChunks removes every chunk in [base, base+size) from id.
func unregisterChunks(sets *objset.SetSet, id objset.SetID, base, size uintptr) {
	for b := base; b < base+size; b += ChunkSize {
		sets.Unregister(id, b)
	}
}
