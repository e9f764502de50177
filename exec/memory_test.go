package exec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megos/wasmrt/wasm"
)

func trapOf(f func()) (trap Trap) {
	defer func() {
		if te := AsTrapError(recover()); te != nil {
			trap = te.Trap
		}
	}()
	f()
	return ""
}

func TestMemoryBounds(t *testing.T) {
	mem, err := NewMemory(wasm.ResizableLimits{Initial: 1}, HeapAllocator{}, 0)
	require.NoError(t, err)
	defer mem.Free()

	assert.Equal(t, Trap(""), trapOf(func() { mem.PutUint32(0xdeadbeef, 65532, 0) }))
	assert.Equal(t, uint32(0xdeadbeef), mem.Uint32(65532, 0))
	assert.Equal(t, TrapMemoryOutOfBounds, trapOf(func() { mem.Uint32(65533, 0) }))
	assert.Equal(t, TrapMemoryOutOfBounds, trapOf(func() { mem.Uint8(65536, 0) }))
	assert.Equal(t, TrapMemoryOutOfBounds, trapOf(func() { mem.Uint8(0xffffffff, 0xffffffff) }))
	assert.Equal(t, Trap(""), trapOf(func() { mem.Uint8(65535, 0) }))

	mem.PutUint64(0x0102030405060708, 8, 0)
	assert.Equal(t, uint16(0x0708), mem.Uint16(0, 8))
	assert.Equal(t, byte(0x01), mem.Uint8(8, 7))
}

func TestMemoryHostAccessors(t *testing.T) {
	mem, err := NewMemory(wasm.ResizableLimits{Initial: 1}, HeapAllocator{}, 0)
	require.NoError(t, err)

	require.NoError(t, mem.WriteAt(10, []byte{1, 2, 3}))
	b, err := mem.ReadAt(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	assert.True(t, errors.Is(mem.WriteAt(PageSize-1, []byte{1, 2}), ErrOutOfBounds))
	_, err = mem.ReadAt(PageSize, 1)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	b, err = mem.ReadAt(PageSize, 0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestMemoryGrow(t *testing.T) {
	mem, err := NewMemory(wasm.ResizableLimits{Flags: 1, Initial: 1, Maximum: 3}, HeapAllocator{}, 0)
	require.NoError(t, err)
	mem.PutUint8(42, 100, 0)

	old, err := mem.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), old)
	assert.Equal(t, uint32(2), mem.Size())
	assert.Equal(t, byte(42), mem.Uint8(100, 0))
	assert.Equal(t, byte(0), mem.Uint8(PageSize+5, 0))

	old, err = mem.Grow(2)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
	assert.Equal(t, uint32(2), old)
	assert.Equal(t, uint32(2), mem.Size())

	old, err = mem.Grow(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), old)
}

func TestMemoryCap(t *testing.T) {
	_, err := NewMemory(wasm.ResizableLimits{Initial: 3}, HeapAllocator{}, 2)
	assert.True(t, errors.Is(err, ErrAllocation))

	mem, err := NewMemory(wasm.ResizableLimits{Initial: 1}, HeapAllocator{}, 2)
	require.NoError(t, err)
	_, err = mem.Grow(2)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
}

func TestMemoryMatches(t *testing.T) {
	mem, err := NewMemory(wasm.ResizableLimits{Flags: 1, Initial: 2, Maximum: 4}, HeapAllocator{}, 0)
	require.NoError(t, err)

	assert.True(t, mem.Matches(wasm.Memory{Limits: wasm.ResizableLimits{Initial: 1}}))
	assert.True(t, mem.Matches(wasm.Memory{Limits: wasm.ResizableLimits{Flags: 1, Initial: 2, Maximum: 8}}))
	assert.False(t, mem.Matches(wasm.Memory{Limits: wasm.ResizableLimits{Initial: 3}}))
	assert.False(t, mem.Matches(wasm.Memory{Limits: wasm.ResizableLimits{Flags: 1, Initial: 1, Maximum: 3}}))

	assert.True(t, mem.Attach())
	assert.False(t, mem.Attach())
	mem.Detach()
	assert.True(t, mem.Attach())
}

func TestBudgetAllocator(t *testing.T) {
	a := NewBudgetAllocator(HeapAllocator{}, 3)

	m1, err := NewMemory(wasm.ResizableLimits{Initial: 2}, a, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), a.Used())

	_, err = NewMemory(wasm.ResizableLimits{Initial: 2}, a, 0)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Equal(t, uint32(2), a.Used())

	_, err = m1.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), a.Used())

	_, err = m1.Grow(1)
	assert.True(t, errors.Is(err, ErrAllocation))
	assert.Equal(t, uint32(3), m1.Size())

	m1.Free()
	assert.Equal(t, uint32(0), a.Used())
}

func TestMmapAllocator(t *testing.T) {
	a := NewMmapAllocator()

	mem, err := NewMemory(wasm.ResizableLimits{Initial: 1}, a, 0)
	require.NoError(t, err)
	mem.PutUint32(7, 4, 0)

	_, err = mem.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), mem.Uint32(4, 0))
	assert.Equal(t, uint64(2*PageSize), mem.Len())
	mem.Free()
	assert.Equal(t, uint32(0), mem.Size())
}
