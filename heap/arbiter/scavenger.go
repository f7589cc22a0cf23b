package arbiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joshuapare/pagekit/heap/cache"
)

// Decommitter drops the physical backing of a range. vmem.Reservation
// and heap.Memory implementations satisfy it.
type Decommitter interface {
	Decommit(base, size uintptr) error
}

// ScavengerConfig wires a scavenger to one config's caches. Zero-value
// fields take defaults.
type ScavengerConfig struct {
	Table *Table              // arbitration point, required
	Large *cache.SharedCache  // sharing cache to harvest, required
	Small *cache.ReserveCache // reserve cache receiving bare address space, required
	Mem   Decommitter         // OS decommit, required

	Interval   time.Duration // pass period for Run, default 100ms
	PassBudget uintptr       // max bytes decommitted per pass, default 1 MiB
	Logger     *zap.Logger   // nil for no logging
}

const (
	defaultInterval   = 100 * time.Millisecond
	defaultPassBudget = 1 << 20
)

// Scavenger is the background page decommitter: under memory pressure
// it converts idle committed-free ranges into reserved-only address
// space, trading future commit cost for RSS now.
type Scavenger struct {
	arb    *Table
	large  *cache.SharedCache
	small  *cache.ReserveCache
	mem    Decommitter
	log    *zap.Logger
	period time.Duration
	budget uintptr
}

// NewScavenger validates the wiring and returns a scavenger.
func NewScavenger(cfg ScavengerConfig) *Scavenger {
	if cfg.Table == nil || cfg.Large == nil || cfg.Small == nil || cfg.Mem == nil {
		panic("arbiter: scavenger requires Table, Large, Small, and Mem")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.PassBudget == 0 {
		cfg.PassBudget = defaultPassBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scavenger{
		arb:    cfg.Table,
		large:  cfg.Large,
		small:  cfg.Small,
		mem:    cfg.Mem,
		log:    cfg.Logger,
		period: cfg.Interval,
		budget: cfg.PassBudget,
	}
}

// ScavengeOnce runs a single pass: harvest up to the pass budget from
// the sharing cache, arbitrate each range, decommit the winners, and
// hand their address space to the reserve cache. Ranges the arbiter
// refuses go straight back to the sharing cache. Returns the number of
// bytes whose backing was dropped.
//
// No cache lock is held across the decommit syscall; harvested ranges
// are exclusively owned for the duration.
func (s *Scavenger) ScavengeOnce() (uintptr, error) {
	harvested := s.large.Harvest(s.budget)
	if len(harvested) == 0 {
		return 0, nil
	}

	var reclaimed uintptr
	var firstErr error
	for _, r := range harvested {
		if !s.arb.BeginReclaim(r.Base, r.Size) {
			s.large.Release(r)
			continue
		}
		err := s.mem.Decommit(r.Base, r.Size)
		s.arb.EndReclaim(r.Base, r.Size)
		if err != nil {
			// Backing stayed put; the range is still committed.
			s.large.Release(r)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.small.Release(r, cache.ReservedOnly)
		reclaimed += r.Size
	}

	if reclaimed > 0 {
		s.log.Debug("scavenge pass",
			zap.Int("harvested", len(harvested)),
			zap.Uint64("reclaimed_bytes", uint64(reclaimed)))
	}
	return reclaimed, firstErr
}

// Run scavenges periodically until ctx is cancelled.
func (s *Scavenger) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScavengeOnce(); err != nil {
				s.log.Warn("scavenge pass failed", zap.Error(err))
			}
		}
	}
}
