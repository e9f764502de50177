package code

import (
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/leb128"
)

func appendBlockType(b []byte, immediate uint64) []byte {
	if immediate&BlockTypeSpecial != 0 {
		return append(b, byte(immediate))
	}
	return leb128.AppendVarint64(b, int64(uint32(immediate)))
}

// appendInstruction appends the binary encoding of instr to b. Opcodes the decoder would reject are rejected here
// with the same error kinds, positioned at len(b).
func appendInstruction(b []byte, instr Instruction) ([]byte, error) {
	op := instr.Opcode
	if opNames[op] == "" {
		if u, ok := unsupportedOps[op]; ok {
			return b, wasm.UnsupportedError(int64(len(b)), u.name, u.feature)
		}
		return b, &wasm.DecodeError{Offset: int64(len(b)), Kind: wasm.UnknownOpcode, Opcode: fmt.Sprintf("%#02x", op)}
	}

	b = append(b, op)
	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		b = appendBlockType(b, instr.Immediate)
	case op == OpBr || op == OpBrIf || op == OpCall || (op >= OpLocalGet && op <= OpGlobalSet):
		b = leb128.AppendVarUint64(b, uint64(uint32(instr.Immediate)))
	case op == OpBrTable:
		b = leb128.AppendVarUint64(b, uint64(len(instr.Labels)))
		for _, l := range instr.Labels {
			b = leb128.AppendVarUint64(b, uint64(uint32(l)))
		}
		b = leb128.AppendVarUint64(b, uint64(uint32(instr.Immediate)))
	case op == OpCallIndirect:
		b = leb128.AppendVarUint64(b, uint64(uint32(instr.Immediate)))
		b = append(b, 0x00)
	case isMemoryOp(op):
		offset, align := instr.Memarg()
		b = leb128.AppendVarUint64(b, uint64(align))
		b = leb128.AppendVarUint64(b, uint64(offset))
	case op == OpMemorySize || op == OpMemoryGrow:
		b = append(b, 0x00)
	case op == OpI32Const:
		b = leb128.AppendVarint64(b, int64(int32(instr.Immediate)))
	case op == OpI64Const:
		b = leb128.AppendVarint64(b, int64(instr.Immediate))
	}
	return b, nil
}

// Encode writes a function body's instructions. The body must end with its closing end instruction; nothing is
// written if it does not or if it holds an opcode outside the supported set.
func Encode(w io.Writer, body []Instruction) error {
	var b []byte
	for i, instr := range body {
		var err error
		if b, err = appendInstruction(b, instr); err != nil {
			return err
		}
		if instr.Opcode == OpEnd && i == len(body)-1 {
			_, err = w.Write(b)
			return err
		}
	}
	return io.ErrUnexpectedEOF
}
