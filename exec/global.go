package exec

import (
	"github.com/megos/wasmrt/wasm"
)

type Global struct {
	typ       wasm.ValueType
	immutable bool
	value     uint64
}

func NewGlobalI32(immutable bool, value int32) Global {
	return Global{
		typ:       wasm.ValueTypeI32,
		immutable: immutable,
		value:     uint64(uint32(value)),
	}
}

func NewGlobalI64(immutable bool, value int64) Global {
	return Global{
		typ:       wasm.ValueTypeI64,
		immutable: immutable,
		value:     uint64(value),
	}
}

// NewGlobal creates a global of the given type holding v.
func NewGlobal(t wasm.GlobalVar, v Value) Global {
	return Global{typ: t.Type, immutable: !t.Mutable, value: ValueOf(t.Type, v.bits).bits}
}

func (g *Global) Type() wasm.GlobalVar {
	return wasm.GlobalVar{Type: g.typ, Mutable: !g.immutable}
}

func (g *Global) Get() uint64 {
	return g.value
}

func (g *Global) Value() Value {
	return Value{Type: g.typ, bits: g.value}
}

func (g *Global) GetI32() int32 {
	return int32(g.value)
}

func (g *Global) GetI64() int64 {
	return int64(g.value)
}

// Set stores v, which must be in operand stack representation. Setting an immutable global panics; validated code
// never does so.
func (g *Global) Set(v uint64) {
	if g.immutable {
		panic("wasm: write to immutable global")
	}
	if g.typ == wasm.ValueTypeI32 {
		v = uint64(uint32(v))
	}
	g.value = v
}

func (g *Global) SetI32(v int32) {
	g.Set(uint64(uint32(v)))
}

func (g *Global) SetI64(v int64) {
	g.Set(uint64(v))
}
