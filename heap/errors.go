package heap

import "errors"

var (
	// ErrWindowExhausted indicates a caged heap's dedicated address
	// window cannot satisfy the request. Caged heaps have a hard
	// capacity ceiling; this never silently falls back to the global
	// path.
	ErrWindowExhausted = errors.New("heap: dedicated address window exhausted")

	// ErrCommitFailed indicates the OS-level backing operation failed,
	// typically out of physical memory.
	ErrCommitFailed = errors.New("heap: physical memory commit failed")

	// ErrTransactionAborted indicates the commit transaction kept
	// conflicting with concurrent reclamation until its retry budget
	// was spent.
	ErrTransactionAborted = errors.New("heap: physical memory transaction aborted")

	// ErrAlignmentUnsupported indicates a provider request asked for
	// alignment stricter than the chunk granularity. Such requests fail
	// closed rather than silently truncating.
	ErrAlignmentUnsupported = errors.New("heap: alignment exceeds chunk granularity")
)
