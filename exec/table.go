package exec

import (
	"github.com/willf/bitset"
)

// Table is a WASM function table. Each slot holds an index into the owning instance's function space; slots that have
// not been initialized by an element segment are empty.
type Table struct {
	min, max uint32
	entries  []uint32
	set      *bitset.BitSet
}

// NewTable creates a new WASM table with min empty slots.
func NewTable(min, max uint32) *Table {
	return &Table{
		min:     min,
		max:     max,
		entries: make([]uint32, int(min)),
		set:     bitset.New(uint(min)),
	}
}

// Limits returns the minimum and maximum size of the table in elements.
func (t *Table) Limits() (min uint32, max uint32) {
	return t.min, t.max
}

// Size returns the number of slots in the table.
func (t *Table) Size() uint32 {
	return uint32(len(t.entries))
}

// Set stores a function index in the given slot. The slot must be in bounds.
func (t *Table) Set(i, funcidx uint32) {
	t.entries[i] = funcidx
	t.set.Set(uint(i))
}

// Lookup returns the function index stored in the given slot. It traps if the slot is past the end of the table or
// empty.
func (t *Table) Lookup(i uint32) uint32 {
	if i >= uint32(len(t.entries)) {
		panic(TrapUndefinedElement)
	}
	if !t.set.Test(uint(i)) {
		panic(TrapUninitializedElement)
	}
	return t.entries[i]
}

// Initialized returns the number of non-empty slots.
func (t *Table) Initialized() uint {
	return t.set.Count()
}
