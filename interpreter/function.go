package interpreter

import (
	"fmt"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
)

// A function holds a decoded WASM function.
type function struct {
	index     uint32             // The function's index in the function index space.
	sig       wasm.FunctionSig   // The function signature.
	numLocals int                // The number of parameters and declared locals.
	metrics   code.Metrics       // Metrics for this function's body.
	body      []code.Instruction // The decoded body.
}

// compileFunctions decodes every body in m.
func compileFunctions(m *wasm.Module) ([]function, error) {
	if m.Code == nil || len(m.Code.Bodies) == 0 {
		return nil, nil
	}
	if m.Function == nil || len(m.Function.Types) != len(m.Code.Bodies) {
		return nil, fmt.Errorf("function and code section sizes differ")
	}

	scope := code.NewStaticScope(m)
	imported := uint32(len(scope.ImportedFunctions))

	functions := make([]function, len(m.Code.Bodies))
	for i := range m.Code.Bodies {
		fb := &m.Code.Bodies[i]

		sig, ok := scope.GetType(m.Function.Types[i])
		if !ok {
			return nil, fmt.Errorf("function %d: invalid type index %d", i, m.Function.Types[i])
		}
		scope.SetFunction(sig, *fb)

		body, err := code.DecodeFunction(fb, scope, sig.ReturnTypes)
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", imported+uint32(i), err)
		}

		functions[i] = function{
			index:     imported + uint32(i),
			sig:       sig,
			numLocals: len(scope.Locals),
			metrics:   body.Metrics,
			body:      body.Instructions,
		}
	}
	return functions, nil
}

// importedFunction is a resolved function import.
type importedFunction struct {
	exec.Function

	module, name string
}
