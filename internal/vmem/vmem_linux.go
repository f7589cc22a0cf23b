//go:build linux

package vmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reserve maps anonymous PROT_NONE memory. The mapping is padded by the
// alignment so an aligned window always fits; the padding stays mapped
// but unbacked, which costs address space only. Partial munmap of the
// head is avoided because x/sys tracks mappings by their full slice.
func reserve(size, alignment uintptr) (*Reservation, error) {
	mapLen := size
	if alignment > PageSize {
		mapLen += alignment
	}
	data, err := unix.Mmap(-1, 0, int(mapLen),
		unix.PROT_NONE,
		unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("vmem: mmap reserve %d bytes: %w", mapLen, err)
	}
	raw := uintptr(unsafe.Pointer(&data[0]))
	return &Reservation{
		data: data,
		raw:  raw,
		base: alignUp(raw, alignment),
		size: size,
	}, nil
}

// Commit makes [base, base+size) physically backable and accessible.
// Freshly committed pages are zero-filled by the kernel.
func (r *Reservation) Commit(base, size uintptr) error {
	b := r.Slice(base, size)
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("vmem: commit [0x%X, +%d): %w", base, size, err)
	}
	return nil
}

// Decommit drops the physical backing of [base, base+size) and makes it
// inaccessible again. A later Commit sees zeroed pages.
func (r *Reservation) Decommit(base, size uintptr) error {
	b := r.Slice(base, size)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("vmem: decommit [0x%X, +%d): %w", base, size, err)
	}
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return fmt.Errorf("vmem: protect [0x%X, +%d): %w", base, size, err)
	}
	return nil
}

// Release unmaps the whole reservation. The Reservation must not be
// used afterwards.
func (r *Reservation) Release() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
