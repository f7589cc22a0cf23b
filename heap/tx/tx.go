package tx

import "errors"

// DefaultRetryBudget is the number of conflict-aborted attempts a
// transaction absorbs before giving up.
const DefaultRetryBudget = 5

// ErrConflict indicates the arbitration point observed a reclamation
// overlapping the transaction's range between Begin and Commit.
var ErrConflict = errors.New("tx: conflicting reclamation during commit")

// Arbiter is the memory-pressure arbitration point the transaction
// consults. It is an opaque external collaborator; the protocol only
// needs intent registration, conflict detection at commit, and release.
//
// Implementations must be safe for concurrent use.
type Arbiter interface {
	// ReserveIntent records that the caller is about to commit
	// [base, base+size) and returns a token for the intent. While the
	// intent is active, a cooperating decommitter must not reclaim an
	// overlapping range.
	ReserveIntent(base, size uintptr) uint64

	// CommitIntent retires the intent and reports whether a conflicting
	// reclamation was in flight when the intent was registered. A true
	// return means the commit may have been undone and must be redone.
	CommitIntent(token uint64) (conflicted bool)

	// ReleaseIntent retires the intent without committing.
	ReleaseIntent(token uint64)
}

type state int

const (
	stateIdle state = iota
	stateOpen
	stateCommitted
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOpen:
		return "open"
	case stateCommitted:
		return "committed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is a scoped, retryable unit of work coordinating one
// physical-memory commit attempt. The zero value is not usable; use New.
//
// A Transaction is NOT safe for concurrent use. Each allocating thread
// constructs its own at the top of the allocation attempt and lets it
// go out of scope on every exit path.
type Transaction struct {
	arb    Arbiter // nil means no arbitration (single-owner memory)
	budget int     // remaining retries
	state  state
	token  uint64
	base   uintptr
	size   uintptr
}

// New returns a transaction with the default retry budget. arb may be
// nil when no decommitter can race the caller; Begin and Commit then
// degrade to pure state tracking.
func New(arb Arbiter) *Transaction {
	return NewWithBudget(arb, DefaultRetryBudget)
}

// NewWithBudget returns a transaction that tolerates budget
// conflict-aborts before failing.
func NewWithBudget(arb Arbiter, budget int) *Transaction {
	if budget < 0 {
		panic("tx: negative retry budget")
	}
	return &Transaction{arb: arb, budget: budget, state: stateIdle}
}

// Begin opens the transaction for a commit of [base, base+size),
// registering the intent with the arbitration point. Beginning a
// transaction that is already open is a broken caller contract
// (transactions are never nested) and panics.
func (t *Transaction) Begin(base, size uintptr) {
	if t.state == stateOpen {
		panic("tx: Begin on open transaction (transactions never nest)")
	}
	t.state = stateOpen
	t.base = base
	t.size = size
	if t.arb != nil {
		t.token = t.arb.ReserveIntent(base, size)
	}
}

// Commit closes the transaction. It returns nil when the commit stands,
// or ErrConflict when the arbitration point reports the range was
// concurrently reclaimed; the transaction is then aborted and the
// caller decides between Retry and failure.
func (t *Transaction) Commit() error {
	if t.state != stateOpen {
		panic("tx: Commit on " + t.state.String() + " transaction")
	}
	if t.arb != nil && t.arb.CommitIntent(t.token) {
		t.state = stateAborted
		return ErrConflict
	}
	t.state = stateCommitted
	return nil
}

// Abort closes the transaction without committing, releasing any held
// arbitration claim. Abort on a non-open transaction is a no-op so that
// deferred cleanup is safe on every exit path.
func (t *Transaction) Abort() {
	if t.state != stateOpen {
		return
	}
	if t.arb != nil {
		t.arb.ReleaseIntent(t.token)
	}
	t.state = stateAborted
}

// Retry consumes one unit of the budget and resets the transaction to
// its idle state, equivalent to constructing a fresh transaction for
// the next attempt. It returns false once the budget is exhausted.
func (t *Transaction) Retry() bool {
	if t.state == stateOpen {
		panic("tx: Retry on open transaction")
	}
	if t.budget == 0 {
		return false
	}
	t.budget--
	t.state = stateIdle
	t.token = 0
	t.base = 0
	t.size = 0
	return true
}

// Committed reports whether the last attempt committed.
func (t *Transaction) Committed() bool {
	return t.state == stateCommitted
}

// Remaining returns the unspent retry budget.
func (t *Transaction) Remaining() int {
	return t.budget
}
