package exec

import (
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
	"github.com/megos/wasmrt/wasm/leb128"
)

type InvalidGlobalIndexError uint32

func (e InvalidGlobalIndexError) Error() string {
	return fmt.Sprintf("wasm: invalid index to global index space: %#x", uint32(e))
}

// EvalConstantExpression executes the given (encoded) constant expression in the context of the given imported
// globals. The expression must produce exactly one value.
func EvalConstantExpression(imports []*Global, expr []byte) (Value, error) {
	var stack []Value

	if len(expr) == 0 {
		return Value{}, wasm.ErrEmptyInitExpr
	}

	for {
		if len(expr) == 0 {
			return Value{}, io.ErrUnexpectedEOF
		}
		opcode := expr[0]
		expr = expr[1:]

		switch opcode {
		case code.OpI32Const:
			v, sz, err := leb128.GetVarint32(expr)
			if err != nil {
				return Value{}, err
			}
			expr = expr[sz:]
			stack = append(stack, ValueI32(v))
		case code.OpI64Const:
			v, sz, err := leb128.GetVarint64(expr)
			if err != nil {
				return Value{}, err
			}
			expr = expr[sz:]
			stack = append(stack, ValueI64(v))
		case code.OpGlobalGet:
			index, sz, err := leb128.GetVarUint32(expr)
			if err != nil {
				return Value{}, err
			}
			expr = expr[sz:]

			if index >= uint32(len(imports)) {
				return Value{}, InvalidGlobalIndexError(index)
			}
			stack = append(stack, imports[int(index)].Value())
		case code.OpEnd:
			if len(stack) != 1 {
				return Value{}, wasm.ErrEmptyInitExpr
			}
			return stack[0], nil
		default:
			return Value{}, wasm.InvalidInitExprOpError(opcode)
		}
	}
}
