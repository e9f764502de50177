package code

import (
	"fmt"
	"io"
	"strings"

	"github.com/megos/wasmrt/wasm"
)

// Instruction is a single decoded instruction. Labels holds branch continuations after decoding: for block and if,
// Labels[0] is the index of the instruction following the matching end; for loop, it is the loop itself; for if,
// Labels[1] is the index of the else, if any. For br_table, Labels holds the label indices and Immediate the default.
type Instruction struct {
	Opcode    byte   `json:"opcode"`
	Immediate uint64 `json:"immediate"`
	Labels    []int  `json:"labels"`
}

func (i *Instruction) Continuation() int {
	return i.Labels[0]
}

func (i *Instruction) Else() int {
	return i.Labels[1]
}

// StackHeight returns the operand stack height, relative to the frame's locals, at block entry.
func (i *Instruction) StackHeight() int {
	return int((i.Immediate & StackHeightMask) >> 32)
}

func (i *Instruction) Default() int {
	return int(uint32(i.Immediate))
}

func (i *Instruction) Labelidx() int {
	return int(uint32(i.Immediate))
}

func (i *Instruction) Funcidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Localidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Globalidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Typeidx() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) Memarg() (offset uint32, align uint32) {
	return uint32(i.Immediate), uint32(i.Immediate >> 32)
}

func (i *Instruction) Offset() uint32 {
	return uint32(i.Immediate)
}

func (i *Instruction) I32() int32 {
	return int32(i.Immediate)
}

func (i *Instruction) I64() int64 {
	return int64(i.Immediate)
}

// BlockType returns the parameter and result types of a block, loop, or if.
func (i *Instruction) BlockType() (in, out []wasm.ValueType) {
	switch i.Immediate & BlockTypeMask {
	case BlockTypeI32:
		return nil, []wasm.ValueType{wasm.ValueTypeI32}
	case BlockTypeI64:
		return nil, []wasm.ValueType{wasm.ValueTypeI64}
	default:
		return nil, nil
	}
}

// Arity returns the number of values a branch to this block carries.
func (i *Instruction) Arity() int {
	if i.Opcode == OpLoop {
		return 0
	}
	_, out := i.BlockType()
	return len(out)
}

// Encode writes the binary encoding of a single instruction.
func (i *Instruction) Encode(w io.Writer) error {
	b, err := appendInstruction(nil, *i)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (i *Instruction) Decode(r io.Reader) error {
	instr, err := decodeSingleInstruction(r)
	if err != nil {
		return err
	}
	*i = instr
	return nil
}

func memarg(offset, align uint32) uint64 {
	return uint64(align)<<32 | uint64(offset)
}

func isMemoryOp(opcode byte) bool {
	return opcode >= OpI32Load && opcode <= OpI64Store32 && opNames[opcode] != ""
}

func (i *Instruction) blockString(op string) string {
	switch i.Immediate & BlockTypeMask {
	case BlockTypeI32:
		return op + " (result i32)"
	case BlockTypeI64:
		return op + " (result i64)"
	default:
		return op
	}
}

func (i *Instruction) memString(op string) string {
	var b strings.Builder
	b.WriteString(op)
	offset, align := i.Memarg()
	if offset != 0 {
		fmt.Fprintf(&b, " offset=%v", offset)
	}
	if align != naturalAlignment(i.Opcode) {
		fmt.Fprintf(&b, " align=%v", uint32(1)<<align)
	}
	return b.String()
}

func (i *Instruction) String() string {
	op := i.OpString()
	switch {
	case i.Opcode == OpBlock || i.Opcode == OpLoop || i.Opcode == OpIf:
		return i.blockString(op)
	case i.Opcode == OpBrTable:
		var b strings.Builder
		b.WriteString(op)
		for _, l := range i.Labels {
			fmt.Fprintf(&b, " %d", l)
		}
		fmt.Fprintf(&b, " %d", i.Default())
		return b.String()
	case i.Opcode == OpCallIndirect:
		return fmt.Sprintf("%s (type %v)", op, i.Typeidx())
	case i.Opcode == OpI32Const:
		return fmt.Sprintf("%s %d", op, i.I32())
	case i.Opcode == OpI64Const:
		return fmt.Sprintf("%s %d", op, i.I64())
	case isMemoryOp(i.Opcode):
		return i.memString(op)
	}

	switch i.Opcode {
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		return fmt.Sprintf("%s %d", op, uint32(i.Immediate))
	default:
		return op
	}
}

func (i *Instruction) OpString() string {
	if n := opNames[i.Opcode]; n != "" {
		return n
	}
	return "invalid"
}
