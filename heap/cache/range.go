package cache

import "fmt"

// Range is a half-open span of address space [Base, Base+Size).
type Range struct {
	Base uintptr // First byte of the range
	Size uintptr // Length in bytes
}

// End returns the first address past the range.
func (r Range) End() uintptr {
	return r.Base + r.Size
}

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return r.Base < o.End() && o.Base < r.End()
}

// Contains reports whether addr falls inside the range.
func (r Range) Contains(addr uintptr) bool {
	return addr >= r.Base && addr < r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%X, 0x%X)", r.Base, r.End())
}
