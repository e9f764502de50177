package exec

import (
	"encoding/binary"
	"fmt"

	"github.com/megos/wasmrt/wasm"
)

// MaxPages is the largest number of pages a linear memory can hold.
const MaxPages = 65536

// Memory is a WASM linear memory. Its backing store is obtained from an Allocator and must be released with Free.
// A Memory is not safe for concurrent use.
type Memory struct {
	min, max uint32
	hasMax   bool
	cap      uint32

	alloc Allocator
	bytes []byte

	attached bool
}

// NewMemory allocates a linear memory with the given limits. The memory never grows beyond capPages, which is
// clamped to MaxPages.
func NewMemory(limits wasm.ResizableLimits, alloc Allocator, capPages uint32) (*Memory, error) {
	if capPages == 0 || capPages > MaxPages {
		capPages = MaxPages
	}
	if limits.Initial > capPages {
		return nil, fmt.Errorf("%w: initial size of %d pages exceeds the limit of %d", ErrAllocation, limits.Initial, capPages)
	}
	if alloc == nil {
		alloc = HeapAllocator{}
	}

	bytes, err := alloc.Allocate(limits.Initial)
	if err != nil {
		return nil, err
	}
	return &Memory{
		min:    limits.Initial,
		max:    limits.Maximum,
		hasMax: limits.HasMaximum(),
		cap:    capPages,
		alloc:  alloc,
		bytes:  bytes,
	}, nil
}

// Limits returns the memory's current size and declared maximum as import limits.
func (m *Memory) Limits() wasm.ResizableLimits {
	l := wasm.ResizableLimits{Initial: m.Size(), Maximum: m.max}
	if m.hasMax {
		l.Flags = 1
	}
	return l
}

// Matches reports whether m satisfies an import of the given type.
func (m *Memory) Matches(t wasm.Memory) bool {
	if m.Size() < t.Limits.Initial {
		return false
	}
	if t.Limits.HasMaximum() {
		return m.hasMax && m.max <= t.Limits.Maximum
	}
	return true
}

// Attach marks the memory as owned by an instance. It returns false if the memory is already attached.
func (m *Memory) Attach() bool {
	if m.attached {
		return false
	}
	m.attached = true
	return true
}

// Detach releases ownership taken by Attach.
func (m *Memory) Detach() {
	m.attached = false
}

// Size returns the current size of the memory in pages.
func (m *Memory) Size() uint32 {
	return uint32(len(m.bytes) / PageSize)
}

// Len returns the current size of the memory in bytes.
func (m *Memory) Len() uint64 {
	return uint64(len(m.bytes))
}

// Grow grows the memory by the given number of pages. It returns the old size of the memory in pages and an error if
// growing the memory by the requested amount would exceed the memory's maximum size or the allocator fails.
func (m *Memory) Grow(pages uint32) (uint32, error) {
	currentSize := m.Size()
	newSize := uint64(currentSize) + uint64(pages)
	if newSize > uint64(m.cap) || m.hasMax && newSize > uint64(m.max) {
		return currentSize, ErrLimitExceeded
	}
	if pages == 0 {
		return currentSize, nil
	}

	bytes, err := m.alloc.Reallocate(m.bytes, uint32(newSize))
	if err != nil {
		return currentSize, err
	}
	m.bytes = bytes
	return currentSize, nil
}

// Free releases the memory's backing store. The memory is empty afterwards.
func (m *Memory) Free() {
	if m.bytes != nil {
		m.alloc.Free(m.bytes)
		m.bytes = nil
	}
}

// Bytes returns the memory's bytes. The slice is invalidated by Grow.
func (m *Memory) Bytes() []byte {
	return m.bytes
}

// ReadAt returns a copy of length bytes starting at offset.
func (m *Memory) ReadAt(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > m.Len() {
		return nil, ErrOutOfBounds
	}
	buf := make([]byte, int(length))
	copy(buf, m.bytes[offset:])
	return buf, nil
}

// WriteAt copies data into the memory starting at offset. Nothing is written if the range does not fit.
func (m *Memory) WriteAt(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > m.Len() {
		return ErrOutOfBounds
	}
	copy(m.bytes[offset:], data)
	return nil
}

// ea returns the effective address of an access of the given width, trapping if any byte of it is out of bounds.
func (m *Memory) ea(base, offset uint32, width uint64) uint64 {
	ea := uint64(base) + uint64(offset)
	if ea+width > uint64(len(m.bytes)) {
		panic(TrapMemoryOutOfBounds)
	}
	return ea
}

// Uint8 returns the byte stored at the given effective address.
func (m *Memory) Uint8(base, offset uint32) byte {
	return m.bytes[m.ea(base, offset, 1)]
}

// PutUint8 writes the given byte to the given effective address.
func (m *Memory) PutUint8(v byte, base, offset uint32) {
	m.bytes[m.ea(base, offset, 1)] = v
}

// Uint16 returns the uint16 stored at the given effective address.
func (m *Memory) Uint16(base, offset uint32) uint16 {
	return binary.LittleEndian.Uint16(m.bytes[m.ea(base, offset, 2):])
}

// PutUint16 writes the given uint16 to the given effective address.
func (m *Memory) PutUint16(v uint16, base, offset uint32) {
	binary.LittleEndian.PutUint16(m.bytes[m.ea(base, offset, 2):], v)
}

// Uint32 returns the uint32 stored at the given effective address.
func (m *Memory) Uint32(base, offset uint32) uint32 {
	return binary.LittleEndian.Uint32(m.bytes[m.ea(base, offset, 4):])
}

// PutUint32 writes the given uint32 to the given effective address.
func (m *Memory) PutUint32(v uint32, base, offset uint32) {
	binary.LittleEndian.PutUint32(m.bytes[m.ea(base, offset, 4):], v)
}

// Uint64 returns the uint64 stored at the given effective address.
func (m *Memory) Uint64(base, offset uint32) uint64 {
	return binary.LittleEndian.Uint64(m.bytes[m.ea(base, offset, 8):])
}

// PutUint64 writes the given uint64 to the given effective address.
func (m *Memory) PutUint64(v uint64, base, offset uint32) {
	binary.LittleEndian.PutUint64(m.bytes[m.ea(base, offset, 8):], v)
}
