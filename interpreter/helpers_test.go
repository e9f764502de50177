package interpreter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
	"github.com/megos/wasmrt/wasm/validate"
)

var (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
	op  = code.Op
)

func types(ts ...wasm.ValueType) []wasm.ValueType {
	return ts
}

type moduleBuilder struct {
	t *testing.T
	m *wasm.Module
}

func newModule(t *testing.T) *moduleBuilder {
	return &moduleBuilder{t: t, m: wasm.NewModule()}
}

func (b *moduleBuilder) typeIndex(params, results []wasm.ValueType) uint32 {
	sig := wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: params, ReturnTypes: results}
	for i, t := range b.m.Types.Entries {
		if t.Equals(sig) {
			return uint32(i)
		}
	}
	b.m.Types.Entries = append(b.m.Types.Entries, sig)
	return uint32(len(b.m.Types.Entries) - 1)
}

func (b *moduleBuilder) importFunction(module, name string, params, results []wasm.ValueType) uint32 {
	b.m.Import.Entries = append(b.m.Import.Entries, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.FuncImport{Type: b.typeIndex(params, results)},
	})
	return uint32(len(b.m.ImportedFunctionTypes()) - 1)
}

func (b *moduleBuilder) importMemory(module, name string, min uint32) {
	b.m.Import.Entries = append(b.m.Import.Entries, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.MemoryImport{Type: wasm.Memory{Limits: wasm.ResizableLimits{Initial: min}}},
	})
}

func (b *moduleBuilder) importGlobal(module, name string, t wasm.GlobalVar) {
	b.m.Import.Entries = append(b.m.Import.Entries, wasm.ImportEntry{
		ModuleName: module,
		FieldName:  name,
		Type:       wasm.GlobalVarImport{Type: t},
	})
}

// function adds a function and returns its index. Locals follow the parameters.
func (b *moduleBuilder) function(export string, params, results, locals []wasm.ValueType, body ...code.Instruction) uint32 {
	var buf bytes.Buffer
	require.NoError(b.t, code.Encode(&buf, body))

	var entries []wasm.LocalEntry
	for _, l := range locals {
		entries = append(entries, wasm.LocalEntry{Count: 1, Type: l})
	}

	funcidx := uint32(len(b.m.ImportedFunctionTypes()) + len(b.m.Function.Types))
	b.m.Function.Types = append(b.m.Function.Types, b.typeIndex(params, results))
	b.m.Code.Bodies = append(b.m.Code.Bodies, wasm.FunctionBody{Locals: entries, Code: buf.Bytes()})
	if export != "" {
		b.export(export, wasm.ExternalFunction, funcidx)
	}
	return funcidx
}

func (b *moduleBuilder) export(name string, kind wasm.External, index uint32) {
	b.m.Export.Entries = append(b.m.Export.Entries, wasm.ExportEntry{FieldStr: name, Kind: kind, Index: index})
}

func (b *moduleBuilder) memory(min, max uint32) {
	limits := wasm.ResizableLimits{Initial: min}
	if max != 0 {
		limits.Flags, limits.Maximum = 1, max
	}
	b.m.Memory.Entries = []wasm.Memory{{Limits: limits}}
	b.export("memory", wasm.ExternalMemory, 0)
}

func (b *moduleBuilder) table(size uint32, offset int32, elems ...uint32) {
	b.m.Table.Entries = []wasm.Table{{ElementType: wasm.ElemTypeAnyFunc, Limits: wasm.ResizableLimits{Initial: size}}}
	if len(elems) != 0 {
		b.m.Elements.Entries = append(b.m.Elements.Entries, wasm.ElementSegment{Offset: wasm.ConstI32Expr(offset), Elems: elems})
	}
}

func (b *moduleBuilder) global(t wasm.GlobalVar, init []byte, export string) {
	b.m.Global.Globals = append(b.m.Global.Globals, wasm.GlobalEntry{Type: t, Init: init})
	if export != "" {
		imported := 0
		for _, e := range b.m.Import.Entries {
			if e.Type.Kind() == wasm.ExternalGlobal {
				imported++
			}
		}
		b.export(export, wasm.ExternalGlobal, uint32(imported+len(b.m.Global.Globals)-1))
	}
}

func (b *moduleBuilder) data(offset int32, data []byte) {
	b.m.Data.Entries = append(b.m.Data.Entries, wasm.DataSegment{Offset: wasm.ConstI32Expr(offset), Data: data})
}

func (b *moduleBuilder) start(funcidx uint32) {
	b.m.Start = &wasm.SectionStartFunction{Index: funcidx}
}

// module encodes, decodes and validates the module under construction.
func (b *moduleBuilder) module() *wasm.Module {
	bin, err := wasm.EncodeModuleBytes(b.m)
	require.NoError(b.t, err)

	m, err := wasm.DecodeModule(bytes.NewReader(bin))
	require.NoError(b.t, err)
	require.NoError(b.t, validate.ValidateModule(m))
	return m
}

func (b *moduleBuilder) instantiate(imports exec.ImportResolver, opts ...exec.Option) (*Instance, error) {
	return Instantiate(b.module(), imports, opts...)
}

func (b *moduleBuilder) mustInstantiate(imports exec.ImportResolver, opts ...exec.Option) *Instance {
	inst, err := b.instantiate(imports, opts...)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { inst.Close() })
	return inst
}

func invoke1(t *testing.T, inst *Instance, name string, args ...exec.Value) exec.Value {
	results, err := inst.Invoke(name, args...)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}
