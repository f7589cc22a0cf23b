// Package heap implements dual-mode chunk acquisition for garbage
// collected heaps: a heap kind either pulls pages from a process-wide
// shared provider, or from its own caches bound to a fixed
// virtual-address window (a "caged" heap, used when pointers into the
// heap must be compactly encoded).
//
// The two kinds are separate types behind KindConfig. A caged config
// owns a sharing cache of committed pages, a reserve-commit cache of
// claimed address space, and the object-set registry a collector scans;
// a global config owns only the registry and delegates paging to its
// Provider.
//
// Allocation control flow for a caged config:
//
//	SharedCache hit            -> no syscall, memory is dirty
//	ReserveCache committed hit -> no syscall, memory is dirty
//	ReserveCache reserved hit  -> commit inside a tx.Transaction, zeroed
//	fresh window reservation   -> commit inside a tx.Transaction, zeroed
//	window exhausted           -> ErrWindowExhausted (hard ceiling)
//
// Cache locks are never held across the commit syscall: a range leaves
// its cache before the syscall runs and is re-inserted on failure.
package heap
