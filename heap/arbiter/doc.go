// Package arbiter provides a default memory-pressure arbitration point
// and the background scavenger that exercises it.
//
// The Table mediates between committing allocators and a decommitter:
// commit intents registered through the tx.Arbiter contract block
// overlapping reclamations, and a reclamation already in flight marks
// overlapping intents conflicted so the commit aborts and retries.
//
// The Scavenger is the decommitter side: it harvests idle committed
// ranges from the page caches, arbitrates each one, drops its backing,
// and returns the bare address space to the reserve-commit cache.
package arbiter
