// Package cache provides the two free-range caches behind chunk
// acquisition: a sharing cache of committed physical pages and a
// reserve-commit cache of address space that may or may not be backed.
//
// Both caches hand out exclusive ownership: a range returned by Acquire
// belongs to the caller until it is passed back through Release. That
// exclusivity is what lets callers run commit and decommit syscalls
// without holding any cache lock.
//
// Invariants (checked by the randomized tests):
//   - tracked ranges are pairwise disjoint and address-sorted
//   - adjacent ranges are coalesced (same commit tag, for ReserveCache)
//   - every range is page-granularity aligned
package cache
