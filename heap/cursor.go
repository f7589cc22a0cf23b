package heap

import "sync"

// atomicCursor is the monotonic bump pointer over the window's
// never-yet-reserved tail. It only moves forward; freed address space
// re-enters circulation through the caches.
type atomicCursor struct {
	mu   sync.Mutex
	next uintptr
}

// take claims [next, next+size) if it fits below limit.
func (c *atomicCursor) take(size, limit uintptr) (uintptr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > limit-c.next {
		return 0, false
	}
	base := c.next
	c.next += size
	return base, true
}
