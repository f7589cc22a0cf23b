package heap

import (
	"fmt"
	"os"
)

// ChunkSize is the granularity in which caged heaps acquire and release
// memory. It is shared with the collector: card and mark-bit layouts
// assume it, so every size passed into AllocateChunks must be an exact
// multiple.
const ChunkSize = 1 << 16 // 64 KiB

// Runtime debug flag for allocation logging - controlled by
// PAGEKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("PAGEKIT_LOG_ALLOC") != ""

func debugf(format string, args ...any) {
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[PAGEKIT] "+format+"\n", args...)
	}
}

// IsChunkAligned reports whether v is a multiple of ChunkSize.
func IsChunkAligned(v uintptr) bool {
	return v%ChunkSize == 0
}

// AlignUpChunk rounds v up to the next chunk boundary.
func AlignUpChunk(v uintptr) uintptr {
	return (v + ChunkSize - 1) &^ uintptr(ChunkSize-1)
}

// checkChunkMultiple enforces the size precondition shared by every
// acquisition entry point. A violation is a broken caller contract, not
// a runtime condition, so it fails fast.
func checkChunkMultiple(size uintptr) {
	if size == 0 || size%ChunkSize != 0 {
		panic(fmt.Sprintf("heap: size %d is not a positive multiple of ChunkSize (%d)", size, ChunkSize))
	}
}
