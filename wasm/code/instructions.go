package code

// Op returns an instruction with no immediate, e.g. Op(OpI32Add).
func Op(opcode byte) Instruction {
	return Instruction{Opcode: opcode}
}

func Unreachable() Instruction { return Op(OpUnreachable) }
func Nop() Instruction         { return Op(OpNop) }
func Else() Instruction        { return Op(OpElse) }
func End() Instruction         { return Op(OpEnd) }
func Return() Instruction      { return Op(OpReturn) }
func Drop() Instruction        { return Op(OpDrop) }
func Select() Instruction      { return Op(OpSelect) }

func blockInstr(opcode byte, blockType []uint64) Instruction {
	typ := uint64(BlockTypeEmpty)
	if len(blockType) != 0 {
		typ = blockType[0]
	}
	return Instruction{Opcode: opcode, Immediate: typ}
}

func Block(blockType ...uint64) Instruction {
	return blockInstr(OpBlock, blockType)
}

func Loop(blockType ...uint64) Instruction {
	return blockInstr(OpLoop, blockType)
}

func If(blockType ...uint64) Instruction {
	return blockInstr(OpIf, blockType)
}

func Br(labelidx int) Instruction {
	return Instruction{Opcode: OpBr, Immediate: uint64(labelidx)}
}

func BrIf(labelidx int) Instruction {
	return Instruction{Opcode: OpBrIf, Immediate: uint64(labelidx)}
}

// BrTable builds a br_table. The last label is the default.
func BrTable(labelidx int, labelidxN ...int) Instruction {
	labels := make([]int, len(labelidxN))
	if len(labelidxN) > 0 {
		labels[0], labelidx = labelidx, labelidxN[len(labelidxN)-1]
		copy(labels[1:], labelidxN[:len(labelidxN)-1])
	}

	return Instruction{Opcode: OpBrTable, Immediate: uint64(labelidx), Labels: labels}
}

func Call(funcidx uint32) Instruction {
	return Instruction{Opcode: OpCall, Immediate: uint64(funcidx)}
}

func CallIndirect(typeidx uint32) Instruction {
	return Instruction{Opcode: OpCallIndirect, Immediate: uint64(typeidx)}
}

func LocalGet(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalGet, Immediate: uint64(localidx)}
}

func LocalSet(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalSet, Immediate: uint64(localidx)}
}

func LocalTee(localidx uint32) Instruction {
	return Instruction{Opcode: OpLocalTee, Immediate: uint64(localidx)}
}

func GlobalGet(globalidx uint32) Instruction {
	return Instruction{Opcode: OpGlobalGet, Immediate: uint64(globalidx)}
}

func GlobalSet(globalidx uint32) Instruction {
	return Instruction{Opcode: OpGlobalSet, Immediate: uint64(globalidx)}
}

// Mem builds a load or store with the given offset and the opcode's natural alignment.
func Mem(opcode byte, offset uint32) Instruction {
	return Instruction{Opcode: opcode, Immediate: memarg(offset, naturalAlignment(opcode))}
}

func MemoryOp(opcode byte, offset, align uint32) Instruction {
	return Instruction{Opcode: opcode, Immediate: memarg(offset, align)}
}

func MemorySize() Instruction { return Op(OpMemorySize) }
func MemoryGrow() Instruction { return Op(OpMemoryGrow) }

func I32Const(v int32) Instruction {
	return Instruction{Opcode: OpI32Const, Immediate: uint64(v)}
}

func I64Const(v int64) Instruction {
	return Instruction{Opcode: OpI64Const, Immediate: uint64(v)}
}
