package code

import "github.com/megos/wasmrt/wasm"

// Scope resolves the indices a function body refers to. Each lookup reports false for an index that does not exist,
// which the decoder reports as a validation error.
type Scope interface {
	GetLocalType(localidx uint32) (wasm.ValueType, bool)
	GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool)
	GetFunctionSignature(funcidx uint32) (wasm.FunctionSig, bool)
	GetType(typeidx uint32) (wasm.FunctionSig, bool)

	HasTable(tableidx uint32) bool
	HasMemory(memoryidx uint32) bool
}
