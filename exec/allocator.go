package exec

import (
	"fmt"
	"sync"
)

// PageSize is the size of a WASM page in bytes.
const PageSize = 65536

// An Allocator supplies the backing store of linear memories. Buffers are always a whole number of pages.
type Allocator interface {
	// Allocate returns a zeroed buffer of the given number of pages.
	Allocate(pages uint32) ([]byte, error)
	// Reallocate returns a buffer of the given number of pages whose prefix holds the contents of buf. The new pages
	// are zeroed. buf must not be used afterwards.
	Reallocate(buf []byte, pages uint32) ([]byte, error)
	// Free releases a buffer returned by Allocate or Reallocate.
	Free(buf []byte)
}

// HeapAllocator allocates linear memory from the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Allocate(pages uint32) ([]byte, error) {
	return make([]byte, int(pages)*PageSize), nil
}

func (HeapAllocator) Reallocate(buf []byte, pages uint32) ([]byte, error) {
	newBuf := make([]byte, int(pages)*PageSize)
	copy(newBuf, buf)
	return newBuf, nil
}

func (HeapAllocator) Free(buf []byte) {}

// BudgetAllocator limits the total number of pages outstanding across all memories obtained from an underlying
// allocator. It is safe for concurrent use.
type BudgetAllocator struct {
	Allocator

	m      sync.Mutex
	budget uint64
	used   uint64
}

// NewBudgetAllocator returns an allocator that fails once more than budget pages are outstanding.
func NewBudgetAllocator(a Allocator, budget uint32) *BudgetAllocator {
	return &BudgetAllocator{Allocator: a, budget: uint64(budget)}
}

func (a *BudgetAllocator) reserve(pages uint64) error {
	a.m.Lock()
	defer a.m.Unlock()

	if a.used+pages > a.budget {
		return fmt.Errorf("%w: page budget of %d exhausted (%d in use, %d requested)", ErrAllocation, a.budget, a.used, pages)
	}
	a.used += pages
	return nil
}

func (a *BudgetAllocator) release(pages uint64) {
	a.m.Lock()
	defer a.m.Unlock()
	a.used -= pages
}

// Used returns the number of pages currently allocated.
func (a *BudgetAllocator) Used() uint32 {
	a.m.Lock()
	defer a.m.Unlock()
	return uint32(a.used)
}

func (a *BudgetAllocator) Allocate(pages uint32) ([]byte, error) {
	if err := a.reserve(uint64(pages)); err != nil {
		return nil, err
	}
	buf, err := a.Allocator.Allocate(pages)
	if err != nil {
		a.release(uint64(pages))
		return nil, err
	}
	return buf, nil
}

func (a *BudgetAllocator) Reallocate(buf []byte, pages uint32) ([]byte, error) {
	old := uint64(len(buf) / PageSize)
	if uint64(pages) > old {
		if err := a.reserve(uint64(pages) - old); err != nil {
			return nil, err
		}
	}
	newBuf, err := a.Allocator.Reallocate(buf, pages)
	if err != nil {
		if uint64(pages) > old {
			a.release(uint64(pages) - old)
		}
		return nil, err
	}
	if uint64(pages) < old {
		a.release(old - uint64(pages))
	}
	return newBuf, nil
}

func (a *BudgetAllocator) Free(buf []byte) {
	a.release(uint64(len(buf) / PageSize))
	a.Allocator.Free(buf)
}
