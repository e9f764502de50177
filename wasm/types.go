// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/megos/wasmrt/wasm/leb128"
)

// Marshaler is the interface implemented by types that can marshal themselves into the binary format.
type Marshaler interface {
	MarshalWASM(w io.Writer) error
}

// Unmarshaler is the interface implemented by types that can unmarshal a binary representation of themselves.
type Unmarshaler interface {
	UnmarshalWASM(r io.Reader) error
}

// ValueType represents the type of a valid value. Only the integer types are supported.
type ValueType uint8

const (
	// ValueTypeT is the polymorphic type of an operand in unreachable code. It never appears in a module.
	ValueTypeT ValueType = 0

	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
)

// unsupportedValueTypes names the value type encodings that belong to proposals this engine does not implement.
var unsupportedValueTypes = map[byte][2]string{
	0x7d: {"f32", "floating point"},
	0x7c: {"f64", "floating point"},
	0x7b: {"v128", "SIMD"},
	0x70: {"funcref", "reference types"},
	0x6f: {"externref", "reference types"},
}

func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeT:
		return "any"
	default:
		return fmt.Sprintf("<unknown value_type %#x>", uint8(t))
	}
}

// Size returns the size of a value of this type in bytes.
func (t ValueType) Size() int {
	if t == ValueTypeI32 {
		return 4
	}
	return 8
}

func decodeValueType(r io.Reader, b byte) (ValueType, error) {
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64:
		return ValueType(b), nil
	}
	if u, ok := unsupportedValueTypes[b]; ok {
		return 0, unsupportedAt(r, u[0], u[1])
	}
	return 0, errorAt(r, InvalidValueType, "%#x", b)
}

func (t *ValueType) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	*t, err = decodeValueType(r, b)
	return err
}

func (t ValueType) MarshalWASM(w io.Writer) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

// TypeFunc is the only form a type section entry may take.
const TypeFunc byte = 0x60

// FunctionSig describes the signature of a declared function in a WASM module.
type FunctionSig struct {
	// Form is the value for a func type constructor (always 0x60, the op code for a function)
	Form        byte
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

func (f FunctionSig) String() string {
	var b strings.Builder
	b.WriteString("(func")
	if len(f.ParamTypes) != 0 {
		b.WriteString(" (param")
		for _, p := range f.ParamTypes {
			b.WriteString(" " + p.String())
		}
		b.WriteString(")")
	}
	if len(f.ReturnTypes) != 0 {
		b.WriteString(" (result")
		for _, r := range f.ReturnTypes {
			b.WriteString(" " + r.String())
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

// Equals returns true if the two signatures have exactly the same parameter and result types.
func (f FunctionSig) Equals(other FunctionSig) bool {
	if len(f.ParamTypes) != len(other.ParamTypes) || len(f.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i := range f.ParamTypes {
		if f.ParamTypes[i] != other.ParamTypes[i] {
			return false
		}
	}
	for i := range f.ReturnTypes {
		if f.ReturnTypes[i] != other.ReturnTypes[i] {
			return false
		}
	}
	return true
}

func (f *FunctionSig) UnmarshalWASM(r io.Reader) error {
	form, err := readByte(r)
	if err != nil {
		return err
	}
	if form != TypeFunc {
		return errorAt(r, InvalidSection, "unknown type form %#x", form)
	}
	f.Form = form

	if f.ParamTypes, err = readValueTypes(r); err != nil {
		return err
	}

	start := offsetOf(r)
	if f.ReturnTypes, err = readValueTypes(r); err != nil {
		return err
	}
	if len(f.ReturnTypes) > 1 {
		return UnsupportedError(start, "result", "multi-value")
	}
	return nil
}

func readValueTypes(r io.Reader) ([]ValueType, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	types := make([]ValueType, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var t ValueType
		if err := t.UnmarshalWASM(r); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (f FunctionSig) MarshalWASM(w io.Writer) error {
	if _, err := w.Write([]byte{TypeFunc}); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, uint32(len(f.ParamTypes))); err != nil {
		return err
	}
	for _, p := range f.ParamTypes {
		if err := p.MarshalWASM(w); err != nil {
			return err
		}
	}
	if _, err := leb128.WriteVarUint32(w, uint32(len(f.ReturnTypes))); err != nil {
		return err
	}
	for _, t := range f.ReturnTypes {
		if err := t.MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// External describes the kind of the entry being imported or exported.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3

	externalTag External = 4
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return "<unknown external_kind>"
	}
}

func (e *External) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	switch External(b) {
	case ExternalFunction, ExternalTable, ExternalMemory, ExternalGlobal:
		*e = External(b)
		return nil
	case externalTag:
		return unsupportedAt(r, "tag", "exception handling")
	default:
		return errorAt(r, InvalidSection, "invalid external_kind value %d", b)
	}
}

func (e External) MarshalWASM(w io.Writer) error {
	_, err := w.Write([]byte{byte(e)})
	return err
}

// ResizableLimits describe the limit of a table or linear memory.
type ResizableLimits struct {
	Flags   uint8  // 1 if the Maximum field is valid
	Initial uint32 // initial length (in units of table elements or wasm pages)
	Maximum uint32 // If flags is 1, it describes the maximum size of the table or memory
}

// HasMaximum returns true if the limits declare a maximum size.
func (lim ResizableLimits) HasMaximum() bool {
	return lim.Flags&0x1 != 0
}

func (lim *ResizableLimits) UnmarshalWASM(r io.Reader) error {
	flags, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	switch {
	case flags < 2:
	case flags < 4:
		return unsupportedAt(r, "shared", "threads")
	case flags < 8:
		return unsupportedAt(r, "i64", "memory64")
	default:
		return errorAt(r, InvalidSection, "invalid limits flags %#x", flags)
	}
	lim.Flags = uint8(flags)

	if lim.Initial, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	if lim.HasMaximum() {
		if lim.Maximum, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
	}
	return nil
}

func (lim ResizableLimits) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(lim.Flags)); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, lim.Initial); err != nil {
		return err
	}
	if lim.HasMaximum() {
		if _, err := leb128.WriteVarUint32(w, lim.Maximum); err != nil {
			return err
		}
	}
	return nil
}

// ElemType describes the type of a table's elements
type ElemType uint8

// ElemTypeAnyFunc descibres an any_func value
const ElemTypeAnyFunc ElemType = 0x70

func (t ElemType) String() string {
	if t == ElemTypeAnyFunc {
		return "funcref"
	}
	return "<unknown elem_type>"
}

// Table describes a table in a Wasm module.
type Table struct {
	// The type of elements
	ElementType ElemType
	Limits      ResizableLimits
}

func (t *Table) UnmarshalWASM(r io.Reader) error {
	b, err := readByte(r)
	if err != nil {
		return err
	}
	switch {
	case ElemType(b) == ElemTypeAnyFunc:
	case b == 0x6f:
		return unsupportedAt(r, "externref", "reference types")
	default:
		return errorAt(r, InvalidValueType, "invalid table element type %#x", b)
	}
	t.ElementType = ElemType(b)
	return t.Limits.UnmarshalWASM(r)
}

func (t Table) MarshalWASM(w io.Writer) error {
	if _, err := w.Write([]byte{byte(t.ElementType)}); err != nil {
		return err
	}
	return t.Limits.MarshalWASM(w)
}

// Memory describes a linear memory in a Wasm module.
type Memory struct {
	Limits ResizableLimits
}

func (m *Memory) UnmarshalWASM(r io.Reader) error {
	return m.Limits.UnmarshalWASM(r)
}

func (m Memory) MarshalWASM(w io.Writer) error {
	return m.Limits.MarshalWASM(w)
}

// GlobalVar describes the type and mutability of a declared global variable
type GlobalVar struct {
	Type    ValueType // Type of the value stored by the variable
	Mutable bool      // Whether the value of the variable can be changed by the set_global operator
}

func (g GlobalVar) String() string {
	if g.Mutable {
		return fmt.Sprintf("(mut %v)", g.Type)
	}
	return g.Type.String()
}

func (g *GlobalVar) UnmarshalWASM(r io.Reader) error {
	*g = GlobalVar{}

	if err := g.Type.UnmarshalWASM(r); err != nil {
		return err
	}

	m, err := readByte(r)
	if err != nil {
		return err
	}
	switch m {
	case 0:
	case 1:
		g.Mutable = true
	default:
		return errorAt(r, InvalidSection, "invalid global mutability %#x", m)
	}
	return nil
}

func (g GlobalVar) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	var m byte
	if g.Mutable {
		m = 1
	}
	_, err := w.Write([]byte{m})
	return err
}
