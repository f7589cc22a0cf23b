package arbiter

import (
	"sync"

	"go.uber.org/zap"

	"github.com/joshuapare/pagekit/heap/tx"
)

// span is a half-open address range.
type span struct {
	base, size uintptr
}

func (s span) end() uintptr { return s.base + s.size }

func (s span) overlaps(o span) bool {
	return s.base < o.end() && o.base < s.end()
}

// Table is the default arbitration point. It tracks active commit
// intents and in-flight reclamations and reports the overlaps between
// them. All methods are safe for concurrent use; none blocks beyond the
// table lock.
type Table struct {
	mu         sync.Mutex
	log        *zap.Logger
	nextToken  uint64
	intents    map[uint64]span
	conflicted map[uint64]bool
	reclaims   []span
	stats      TableStats
}

// TableStats holds arbitration counters.
type TableStats struct {
	Intents          int // ReserveIntent calls
	Conflicts        int // Intents that observed an overlapping reclaim
	Reclaims         int // BeginReclaim calls that won
	ReclaimsRefused  int // BeginReclaim calls refused for an active intent
	ReclaimsFinished int // EndReclaim calls
}

// NewTable returns an arbitration table. logger may be nil for no
// logging.
func NewTable(logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		log:        logger,
		intents:    make(map[uint64]span),
		conflicted: make(map[uint64]bool),
	}
}

var _ tx.Arbiter = (*Table)(nil)

// ReserveIntent implements tx.Arbiter. An intent that overlaps a
// reclamation already in flight is conflicted from birth: the
// decommitter may undo the caller's commit, so the commit must be
// redone once the reclaim drains.
func (t *Table) ReserveIntent(base, size uintptr) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextToken++
	token := t.nextToken
	s := span{base: base, size: size}
	t.intents[token] = s
	t.stats.Intents++

	for _, r := range t.reclaims {
		if s.overlaps(r) {
			t.conflicted[token] = true
			t.stats.Conflicts++
			t.log.Debug("commit intent conflicts with in-flight reclaim",
				zap.Uintptr("base", base),
				zap.Uintptr("size", size),
				zap.Uint64("token", token))
			break
		}
	}
	return token
}

// CommitIntent implements tx.Arbiter.
func (t *Table) CommitIntent(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conflicted := t.conflicted[token]
	delete(t.intents, token)
	delete(t.conflicted, token)
	return conflicted
}

// ReleaseIntent implements tx.Arbiter.
func (t *Table) ReleaseIntent(token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.intents, token)
	delete(t.conflicted, token)
}

// BeginReclaim asks to reclaim [base, base+size). It is refused when an
// active commit intent overlaps the range: the committing thread got
// there first and the decommitter must leave the range alone.
func (t *Table) BeginReclaim(base, size uintptr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := span{base: base, size: size}
	for _, in := range t.intents {
		if s.overlaps(in) {
			t.stats.ReclaimsRefused++
			t.log.Debug("reclaim refused, active commit intent",
				zap.Uintptr("base", base),
				zap.Uintptr("size", size))
			return false
		}
	}
	t.reclaims = append(t.reclaims, s)
	t.stats.Reclaims++
	return true
}

// EndReclaim retires a reclamation previously granted by BeginReclaim.
func (t *Table) EndReclaim(base, size uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := span{base: base, size: size}
	for i, r := range t.reclaims {
		if r == s {
			t.reclaims = append(t.reclaims[:i], t.reclaims[i+1:]...)
			t.stats.ReclaimsFinished++
			return
		}
	}
	panic("arbiter: EndReclaim without matching BeginReclaim")
}

// Stats returns a snapshot of the arbitration counters.
func (t *Table) Stats() TableStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
