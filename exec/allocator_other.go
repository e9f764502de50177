//go:build !unix

package exec

// NewMmapAllocator returns the heap allocator on platforms without mmap(2).
func NewMmapAllocator() Allocator {
	return HeapAllocator{}
}
