package exec

import (
	"fmt"

	"github.com/megos/wasmrt/wasm"
)

// A Value is an i32 or i64 WASM value.
type Value struct {
	Type wasm.ValueType
	bits uint64
}

func ValueI32(v int32) Value {
	return Value{Type: wasm.ValueTypeI32, bits: uint64(uint32(v))}
}

func ValueI64(v int64) Value {
	return Value{Type: wasm.ValueTypeI64, bits: uint64(v)}
}

// ValueOf returns the value of type t whose stack representation is bits.
func ValueOf(t wasm.ValueType, bits uint64) Value {
	if t == wasm.ValueTypeI32 {
		bits = uint64(uint32(bits))
	}
	return Value{Type: t, bits: bits}
}

func (v Value) I32() int32 {
	return int32(v.bits)
}

func (v Value) I64() int64 {
	return int64(v.bits)
}

// Bits returns the value's operand stack representation.
func (v Value) Bits() uint64 {
	return v.bits
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValueTypeI32:
		return fmt.Sprintf("%d:i32", v.I32())
	case wasm.ValueTypeI64:
		return fmt.Sprintf("%d:i64", v.I64())
	default:
		return fmt.Sprintf("%#x:%v", v.bits, v.Type)
	}
}
