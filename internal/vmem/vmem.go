// Package vmem is the OS virtual-memory layer: aligned address-space
// reservation, commit (make backed), decommit (drop backing), and
// release. The linux implementation maps anonymous PROT_NONE memory and
// toggles protection; other platforms get a pure-Go fallback with the
// same contract, including zero-on-commit.
package vmem

import "fmt"

// PageSize is the OS page granularity assumed for commit and decommit.
const PageSize = 4096

// Reservation is a contiguous claimed address range. Base is aligned to
// the alignment requested at Reserve time; the underlying mapping may
// be larger (over-map-and-trim alignment).
//
// Commit and Decommit take absolute addresses inside the reservation
// and are safe to call from multiple goroutines on disjoint ranges.
type Reservation struct {
	data []byte  // whole underlying mapping (keeps it alive)
	raw  uintptr // address of data[0]
	base uintptr // aligned window start inside data
	size uintptr // usable window size
}

// Base returns the aligned start address of the usable window.
func (r *Reservation) Base() uintptr { return r.base }

// Size returns the usable window size in bytes.
func (r *Reservation) Size() uintptr { return r.size }

// Slice returns the bytes backing [base, base+size). The range must lie
// inside the reservation.
func (r *Reservation) Slice(base, size uintptr) []byte {
	r.check(base, size)
	off := base - r.raw
	return r.data[off : off+size]
}

func (r *Reservation) check(base, size uintptr) {
	if base < r.base || base+size > r.base+r.size {
		panic(fmt.Sprintf("vmem: range [0x%X, 0x%X) outside reservation [0x%X, 0x%X)",
			base, base+size, r.base, r.base+r.size))
	}
	if base%PageSize != 0 || size%PageSize != 0 {
		panic(fmt.Sprintf("vmem: range [0x%X, +%d) not page-aligned", base, size))
	}
}

// Reserve claims size bytes of address space with the given alignment,
// physically unbacked. size must be a positive multiple of PageSize;
// alignment must be zero (meaning PageSize) or a power-of-two multiple
// of PageSize.
func Reserve(size, alignment uintptr) (*Reservation, error) {
	if size == 0 || size%PageSize != 0 {
		return nil, fmt.Errorf("vmem: reserve size %d not a positive page multiple", size)
	}
	if alignment == 0 {
		alignment = PageSize
	}
	if alignment%PageSize != 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("vmem: alignment %d not a power-of-two page multiple", alignment)
	}
	return reserve(size, alignment)
}

// MapCommitted reserves and immediately commits size bytes aligned to
// alignment. The returned memory is zeroed.
func MapCommitted(size, alignment uintptr) (*Reservation, error) {
	r, err := Reserve(size, alignment)
	if err != nil {
		return nil, err
	}
	if err := r.Commit(r.Base(), size); err != nil {
		r.Release() //nolint:errcheck // best effort on the failure path
		return nil, err
	}
	return r, nil
}

func alignUp(v, a uintptr) uintptr {
	return (v + a - 1) &^ (a - 1)
}
