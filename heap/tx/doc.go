// Package tx implements the physical memory transaction protocol that
// makes concurrent commit and decommit safe.
//
// A transaction wraps exactly one commit attempt against a shared
// arbitration point (see Arbiter). The protocol:
//
//  1. Begin(base, size) - register the commit intent so a concurrent
//     decommitter will not unmap the same range mid-commit
//  2. [caller performs the OS-level commit]
//  3. Commit() - ask the arbitration point whether a conflicting
//     reclamation raced the intent; success marks the memory safe to
//     hand out, conflict aborts
//
// On conflict the caller retries with a fresh attempt: Retry() consumes
// one unit of the transaction's budget and resets it to the idle state.
// Exhausting the budget surfaces as an allocation failure, never as a
// fatal error. Transactions are never nested and never span more than
// one logical allocation request.
package tx
