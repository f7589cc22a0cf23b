//go:build !linux

package vmem

import "unsafe"

// Fallback for platforms without the mmap-based implementation: the
// reservation is ordinary Go memory. Commit is a no-op (the buffer
// exists), Decommit zeroes eagerly so the zero-on-commit contract
// still holds. RSS semantics are approximate; correctness is not.

func reserve(size, alignment uintptr) (*Reservation, error) {
	// Go allocations are not page-aligned, so pad for the alignment
	// unconditionally (the mmap implementation only pads past PageSize).
	data := make([]byte, size+alignment)
	raw := uintptr(unsafe.Pointer(&data[0]))
	return &Reservation{
		data: data,
		raw:  raw,
		base: alignUp(raw, alignment),
		size: size,
	}, nil
}

// Commit makes [base, base+size) usable. Pages are already zero: either
// the buffer is fresh, or Decommit zeroed them.
func (r *Reservation) Commit(base, size uintptr) error {
	r.check(base, size)
	return nil
}

// Decommit zeroes [base, base+size) so the next Commit observes the
// same zero-filled contract as the mmap implementation.
func (r *Reservation) Decommit(base, size uintptr) error {
	b := r.Slice(base, size)
	clear(b)
	return nil
}

// Release drops the backing buffer.
func (r *Reservation) Release() error {
	r.data = nil
	return nil
}
