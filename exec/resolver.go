package exec

import (
	"github.com/megos/wasmrt/wasm"
)

// An ImportResolver resolves import entries to function, memory, and global instances. A resolver returns an error
// that matches ErrImportNotFound for an unknown import and ErrImportTypeMismatch for a definition of the wrong kind
// or type.
type ImportResolver interface {
	ResolveFunction(moduleName, functionName string, type_ wasm.FunctionSig) (Function, error)
	ResolveMemory(moduleName, memoryName string, type_ wasm.Memory) (*Memory, error)
	ResolveGlobal(moduleName, globalName string, type_ wasm.GlobalVar) (*Global, error)
}
