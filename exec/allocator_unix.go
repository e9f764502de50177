//go:build unix

package exec

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator allocates linear memory as anonymous private mappings outside the Go heap.
type MmapAllocator struct{}

// NewMmapAllocator returns an allocator backed by mmap(2).
func NewMmapAllocator() Allocator {
	return MmapAllocator{}
}

func (MmapAllocator) Allocate(pages uint32) ([]byte, error) {
	if pages == 0 {
		return []byte{}, nil
	}
	buf, err := unix.Mmap(-1, 0, int(pages)*PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d pages: %v", ErrAllocation, pages, err)
	}
	return buf, nil
}

func (a MmapAllocator) Reallocate(buf []byte, pages uint32) ([]byte, error) {
	newBuf, err := a.Allocate(pages)
	if err != nil {
		return nil, err
	}
	copy(newBuf, buf)
	a.Free(buf)
	return newBuf, nil
}

func (MmapAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if err := unix.Munmap(buf); err != nil {
		panic(fmt.Errorf("wasm: munmap: %w", err))
	}
}
