package heap

import "fmt"

// PageState is the primordial page state contract: whether returned
// bytes are guaranteed zero-filled. It describes the memory actually
// handed out, not a cache entry.
//
// Policy: ranges reused from either cache are always PageStateDirty; no
// clearing step runs on release. Only freshly committed memory reports
// PageStateZeroed, riding the kernel's zero-on-commit guarantee.
// Callers that need zeroed memory check the result and clear themselves.
type PageState int

const (
	// PageStateDirty means the caller must assume arbitrary contents
	// and clear before first use.
	PageStateDirty PageState = iota

	// PageStateZeroed means the bytes are guaranteed zero.
	PageStateZeroed
)

func (s PageState) String() string {
	switch s {
	case PageStateDirty:
		return "dirty"
	case PageStateZeroed:
		return "zeroed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one chunk acquisition. There is no partial
// success: either the full requested range is present or OK is false
// and the other fields are meaningless.
type Result struct {
	OK    bool
	Base  uintptr   // first byte of the granted range
	Size  uintptr   // length granted (equals the requested size)
	State PageState // zero-fill contract actually honored
}

// Success builds a successful result.
func Success(base, size uintptr, state PageState) Result {
	return Result{OK: true, Base: base, Size: size, State: state}
}

// Failure builds a failed result.
func Failure() Result {
	return Result{}
}

// End returns the first address past the granted range.
func (r Result) End() uintptr {
	return r.Base + r.Size
}

func (r Result) String() string {
	if !r.OK {
		return "Result{failed}"
	}
	return fmt.Sprintf("Result{[0x%X, 0x%X) %s}", r.Base, r.End(), r.State)
}
