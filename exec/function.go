package exec

import (
	"fmt"

	"github.com/megos/wasmrt/wasm"
)

// Function is a function that can satisfy a function import.
type Function interface {
	// GetSignature returns this function's signature.
	GetSignature() wasm.FunctionSig
	// UncheckedCall calls the function. args and results hold operand stack representations and match the signature
	// in number. A non-nil error traps the caller.
	UncheckedCall(thread *Thread, args, results []uint64) error
}

// HostFunc implements a host function. Arguments and results use operand stack representation: an i32 occupies the
// low 32 bits.
type HostFunc func(t *Thread, args, results []uint64) error

// HostFunction is a Go function importable by a module.
type HostFunction struct {
	Name string
	Sig  wasm.FunctionSig
	Fn   HostFunc
}

// NewHostFunction returns a host function with the given signature.
func NewHostFunction(name string, sig wasm.FunctionSig, fn HostFunc) *HostFunction {
	sig.Form = wasm.TypeFunc
	return &HostFunction{Name: name, Sig: sig, Fn: fn}
}

func (f *HostFunction) GetSignature() wasm.FunctionSig {
	return f.Sig
}

func (f *HostFunction) UncheckedCall(thread *Thread, args, results []uint64) error {
	if len(args) != len(f.Sig.ParamTypes) {
		panic(fmt.Errorf("expected %v args; got %v", len(f.Sig.ParamTypes), len(args)))
	}
	return f.Fn(thread, args, results)
}
