package heap

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// counters is the live, concurrently-updated form of Stats.
type counters struct {
	allocCalls      atomic.Uint64
	largeHits       atomic.Uint64
	reserveHits     atomic.Uint64
	freshReserves   atomic.Uint64
	commits         atomic.Uint64
	commitFailures  atomic.Uint64
	conflicts       atomic.Uint64
	windowExhausted atomic.Uint64
	freeCalls       atomic.Uint64
	bytesAllocated  atomic.Uint64
	bytesFreed      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		AllocCalls:      c.allocCalls.Load(),
		SharingHits:     c.largeHits.Load(),
		ReserveHits:     c.reserveHits.Load(),
		FreshReserves:   c.freshReserves.Load(),
		Commits:         c.commits.Load(),
		CommitFailures:  c.commitFailures.Load(),
		Conflicts:       c.conflicts.Load(),
		WindowExhausted: c.windowExhausted.Load(),
		FreeCalls:       c.freeCalls.Load(),
		BytesAllocated:  c.bytesAllocated.Load(),
		BytesFreed:      c.bytesFreed.Load(),
	}
}

// Stats is a snapshot of a config's allocation counters.
type Stats struct {
	AllocCalls      uint64 // AllocateChunks calls
	SharingHits     uint64 // Served from the sharing cache (no syscall)
	ReserveHits     uint64 // Served from the reserve-commit cache
	FreshReserves   uint64 // Served by carving the dedicated window
	Commits         uint64 // Successful OS commit operations
	CommitFailures  uint64 // Failed OS commit operations
	Conflicts       uint64 // Transaction conflict-aborts (pre-retry)
	WindowExhausted uint64 // Requests refused for window capacity
	FreeCalls       uint64 // FreeChunks / ReturnPages calls
	BytesAllocated  uint64 // Total bytes granted
	BytesFreed      uint64 // Total bytes returned
}

// statsPrinter groups digits for readability in dumps (1,048,576
// rather than 1048576).
var statsPrinter = message.NewPrinter(language.English)

// WriteTo writes a human-readable dump of the counters.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	n, err := statsPrinter.Fprintf(w,
		"alloc calls:      %d\n"+
			"  sharing hits:   %d\n"+
			"  reserve hits:   %d\n"+
			"  fresh reserves: %d\n"+
			"commits:          %d (failed %d)\n"+
			"conflicts:        %d\n"+
			"window exhausted: %d\n"+
			"free calls:       %d\n"+
			"bytes allocated:  %d\n"+
			"bytes freed:      %d\n",
		s.AllocCalls, s.SharingHits, s.ReserveHits, s.FreshReserves,
		s.Commits, s.CommitFailures, s.Conflicts, s.WindowExhausted,
		s.FreeCalls, s.BytesAllocated, s.BytesFreed)
	return int64(n), err
}

func (s Stats) String() string {
	var b writerBuf
	s.WriteTo(&b) //nolint:errcheck // writes to memory cannot fail
	return string(b)
}

type writerBuf []byte

func (b *writerBuf) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
