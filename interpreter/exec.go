package interpreter

import (
	"fmt"
	"math/bits"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm/code"
)

func (m *machine) pushI32(v int32) {
	m.push(uint64(uint32(v)))
}

func (m *machine) pushU32(v uint32) {
	m.push(uint64(v))
}

func (m *machine) pushI64(v int64) {
	m.push(uint64(v))
}

func (m *machine) pushI(v int) {
	m.push(uint64(uint32(v)))
}

func (m *machine) pushBool(v bool) {
	m.push(exec.Bool(v))
}

func (m *machine) popU32() uint32 {
	return uint32(m.pop())
}

func (m *machine) popI32() int32 {
	return int32(m.pop())
}

func (m *machine) popI64() int64 {
	return int64(m.pop())
}

func (m *machine) popBool() bool {
	return uint32(m.pop()) != 0
}

func (m *machine) pop2U32() (v2, v1 uint32) {
	u2, u1 := m.pop2()
	return uint32(u2), uint32(u1)
}

func (m *machine) pop2I32() (v2, v1 int32) {
	u2, u1 := m.pop2()
	return int32(u2), int32(u1)
}

func (m *machine) pop2I64() (v2, v1 int64) {
	u2, u1 := m.pop2()
	return int64(u2), int64(u1)
}

// pushLabel enters a block, loop, or if.
func (m *machine) pushLabel(fr *activation, instr *code.Instruction, cont int) {
	m.labels = append(m.labels, label{
		cont:   cont,
		height: fr.base + fr.fn.numLocals + instr.StackHeight(),
		arity:  instr.Arity(),
	})
}

func (m *machine) step(fr *activation, instr *code.Instruction) {
	inst := m.inst

	switch instr.Opcode {
	case code.OpUnreachable:
		panic(exec.TrapUnreachable)

	case code.OpNop:
		// no-op

	case code.OpBlock:
		m.pushLabel(fr, instr, instr.Continuation())
	case code.OpLoop:
		m.pushLabel(fr, instr, instr.Continuation())

	case code.OpIf:
		if !m.popBool() {
			if instr.Else() != 0 {
				m.pushLabel(fr, instr, instr.Continuation())
				fr.ip = instr.Else() + 1
				return
			}
			fr.ip = instr.Continuation()
			return
		}
		m.pushLabel(fr, instr, instr.Continuation())
	case code.OpElse:
		// This is the end of a taken if block.
		m.end(fr)
		fr.ip = instr.Continuation()
	case code.OpEnd:
		m.end(fr)

	case code.OpBr:
		m.branch(fr, instr.Labelidx())
	case code.OpBrIf:
		if m.popBool() {
			m.branch(fr, instr.Labelidx())
		}
	case code.OpBrTable:
		if li := m.popU32(); li < uint32(len(instr.Labels)) {
			m.branch(fr, instr.Labels[int(li)])
			return
		}
		m.branch(fr, instr.Default())

	case code.OpReturn:
		m.ret()

	case code.OpCall:
		m.call(instr.Funcidx())
	case code.OpCallIndirect:
		funcidx := inst.table.Lookup(m.popU32())
		expected := &inst.types[int(instr.Typeidx())]
		if actual := inst.signature(funcidx); !actual.Equals(*expected) {
			panic(exec.TrapIndirectCallTypeMismatch)
		}
		m.call(funcidx)

	case code.OpDrop:
		m.pop()

	case code.OpSelect:
		condition, v2, v1 := m.popBool(), m.pop(), m.pop()
		if condition {
			m.push(v1)
		} else {
			m.push(v2)
		}

	case code.OpLocalGet:
		m.push(m.stack[fr.base+int(instr.Localidx())])
	case code.OpLocalSet:
		v := m.pop()
		m.stack[fr.base+int(instr.Localidx())] = v
	case code.OpLocalTee:
		m.stack[fr.base+int(instr.Localidx())] = m.stack[len(m.stack)-1]

	case code.OpGlobalGet:
		m.push(inst.globals[int(instr.Globalidx())].Get())
	case code.OpGlobalSet:
		inst.globals[int(instr.Globalidx())].Set(m.pop())

	case code.OpI32Load:
		m.pushU32(inst.memory.Uint32(m.popU32(), instr.Offset()))
	case code.OpI64Load:
		m.push(inst.memory.Uint64(m.popU32(), instr.Offset()))
	case code.OpI32Load8S:
		m.pushI32(int32(int8(inst.memory.Uint8(m.popU32(), instr.Offset()))))
	case code.OpI32Load8U:
		m.pushU32(uint32(inst.memory.Uint8(m.popU32(), instr.Offset())))
	case code.OpI32Load16S:
		m.pushI32(int32(int16(inst.memory.Uint16(m.popU32(), instr.Offset()))))
	case code.OpI32Load16U:
		m.pushU32(uint32(inst.memory.Uint16(m.popU32(), instr.Offset())))
	case code.OpI64Load8S:
		m.pushI64(int64(int8(inst.memory.Uint8(m.popU32(), instr.Offset()))))
	case code.OpI64Load8U:
		m.push(uint64(inst.memory.Uint8(m.popU32(), instr.Offset())))
	case code.OpI64Load16S:
		m.pushI64(int64(int16(inst.memory.Uint16(m.popU32(), instr.Offset()))))
	case code.OpI64Load16U:
		m.push(uint64(inst.memory.Uint16(m.popU32(), instr.Offset())))
	case code.OpI64Load32S:
		m.pushI64(int64(int32(inst.memory.Uint32(m.popU32(), instr.Offset()))))
	case code.OpI64Load32U:
		m.push(uint64(inst.memory.Uint32(m.popU32(), instr.Offset())))

	case code.OpI32Store:
		v := m.popU32()
		inst.memory.PutUint32(v, m.popU32(), instr.Offset())
	case code.OpI64Store:
		v := m.pop()
		inst.memory.PutUint64(v, m.popU32(), instr.Offset())
	case code.OpI32Store8, code.OpI64Store8:
		v := m.pop()
		inst.memory.PutUint8(byte(v), m.popU32(), instr.Offset())
	case code.OpI32Store16, code.OpI64Store16:
		v := m.pop()
		inst.memory.PutUint16(uint16(v), m.popU32(), instr.Offset())
	case code.OpI64Store32:
		v := m.pop()
		inst.memory.PutUint32(uint32(v), m.popU32(), instr.Offset())

	case code.OpMemorySize:
		m.pushU32(inst.memory.Size())
	case code.OpMemoryGrow:
		old, err := inst.memory.Grow(m.popU32())
		inst.config.Metrics.MemoryGrow(err == nil)
		if err != nil {
			m.pushI32(-1)
		} else {
			m.pushU32(old)
		}

	case code.OpI32Const:
		m.pushI32(instr.I32())
	case code.OpI64Const:
		m.pushI64(instr.I64())

	case code.OpI32Eqz:
		m.pushBool(m.popU32() == 0)
	case code.OpI32Eq:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 == v2)
	case code.OpI32Ne:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 != v2)
	case code.OpI32LtS:
		v2, v1 := m.pop2I32()
		m.pushBool(v1 < v2)
	case code.OpI32LtU:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 < v2)
	case code.OpI32GtS:
		v2, v1 := m.pop2I32()
		m.pushBool(v1 > v2)
	case code.OpI32GtU:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 > v2)
	case code.OpI32LeS:
		v2, v1 := m.pop2I32()
		m.pushBool(v1 <= v2)
	case code.OpI32LeU:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 <= v2)
	case code.OpI32GeS:
		v2, v1 := m.pop2I32()
		m.pushBool(v1 >= v2)
	case code.OpI32GeU:
		v2, v1 := m.pop2U32()
		m.pushBool(v1 >= v2)

	case code.OpI64Eqz:
		m.pushBool(m.pop() == 0)
	case code.OpI64Eq:
		v2, v1 := m.pop2()
		m.pushBool(v1 == v2)
	case code.OpI64Ne:
		v2, v1 := m.pop2()
		m.pushBool(v1 != v2)
	case code.OpI64LtS:
		v2, v1 := m.pop2I64()
		m.pushBool(v1 < v2)
	case code.OpI64LtU:
		v2, v1 := m.pop2()
		m.pushBool(v1 < v2)
	case code.OpI64GtS:
		v2, v1 := m.pop2I64()
		m.pushBool(v1 > v2)
	case code.OpI64GtU:
		v2, v1 := m.pop2()
		m.pushBool(v1 > v2)
	case code.OpI64LeS:
		v2, v1 := m.pop2I64()
		m.pushBool(v1 <= v2)
	case code.OpI64LeU:
		v2, v1 := m.pop2()
		m.pushBool(v1 <= v2)
	case code.OpI64GeS:
		v2, v1 := m.pop2I64()
		m.pushBool(v1 >= v2)
	case code.OpI64GeU:
		v2, v1 := m.pop2()
		m.pushBool(v1 >= v2)

	case code.OpI32Clz:
		m.pushI(bits.LeadingZeros32(m.popU32()))
	case code.OpI32Ctz:
		m.pushI(bits.TrailingZeros32(m.popU32()))
	case code.OpI32Popcnt:
		m.pushI(bits.OnesCount32(m.popU32()))
	case code.OpI32Add:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 + v2)
	case code.OpI32Sub:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 - v2)
	case code.OpI32Mul:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 * v2)
	case code.OpI32DivS:
		v2, v1 := m.pop2I32()
		m.pushI32(exec.I32DivS(v1, v2))
	case code.OpI32DivU:
		v2, v1 := m.pop2U32()
		m.pushU32(exec.I32DivU(v1, v2))
	case code.OpI32RemS:
		v2, v1 := m.pop2I32()
		m.pushI32(exec.I32RemS(v1, v2))
	case code.OpI32RemU:
		v2, v1 := m.pop2U32()
		m.pushU32(exec.I32RemU(v1, v2))
	case code.OpI32And:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 & v2)
	case code.OpI32Or:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 | v2)
	case code.OpI32Xor:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 ^ v2)
	case code.OpI32Shl:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 << (v2 & 31))
	case code.OpI32ShrS:
		v2, v1 := m.pop2I32()
		m.pushI32(v1 >> (uint32(v2) & 31))
	case code.OpI32ShrU:
		v2, v1 := m.pop2U32()
		m.pushU32(v1 >> (v2 & 31))
	case code.OpI32Rotl:
		v2, v1 := m.pop2U32()
		m.pushU32(bits.RotateLeft32(v1, int(v2&31)))
	case code.OpI32Rotr:
		v2, v1 := m.pop2U32()
		m.pushU32(bits.RotateLeft32(v1, -int(v2&31)))

	case code.OpI64Clz:
		m.push(uint64(bits.LeadingZeros64(m.pop())))
	case code.OpI64Ctz:
		m.push(uint64(bits.TrailingZeros64(m.pop())))
	case code.OpI64Popcnt:
		m.push(uint64(bits.OnesCount64(m.pop())))
	case code.OpI64Add:
		v2, v1 := m.pop2()
		m.push(v1 + v2)
	case code.OpI64Sub:
		v2, v1 := m.pop2()
		m.push(v1 - v2)
	case code.OpI64Mul:
		v2, v1 := m.pop2()
		m.push(v1 * v2)
	case code.OpI64DivS:
		v2, v1 := m.pop2I64()
		m.pushI64(exec.I64DivS(v1, v2))
	case code.OpI64DivU:
		v2, v1 := m.pop2()
		m.push(exec.I64DivU(v1, v2))
	case code.OpI64RemS:
		v2, v1 := m.pop2I64()
		m.pushI64(exec.I64RemS(v1, v2))
	case code.OpI64RemU:
		v2, v1 := m.pop2()
		m.push(exec.I64RemU(v1, v2))
	case code.OpI64And:
		v2, v1 := m.pop2()
		m.push(v1 & v2)
	case code.OpI64Or:
		v2, v1 := m.pop2()
		m.push(v1 | v2)
	case code.OpI64Xor:
		v2, v1 := m.pop2()
		m.push(v1 ^ v2)
	case code.OpI64Shl:
		v2, v1 := m.pop2()
		m.push(v1 << (v2 & 63))
	case code.OpI64ShrS:
		v2, v1 := m.pop2I64()
		m.pushI64(v1 >> (uint64(v2) & 63))
	case code.OpI64ShrU:
		v2, v1 := m.pop2()
		m.push(v1 >> (v2 & 63))
	case code.OpI64Rotl:
		v2, v1 := m.pop2()
		m.push(bits.RotateLeft64(v1, int(v2&63)))
	case code.OpI64Rotr:
		v2, v1 := m.pop2()
		m.push(bits.RotateLeft64(v1, -int(v2&63)))

	case code.OpI32WrapI64:
		m.pushU32(uint32(m.pop()))
	case code.OpI64ExtendI32S:
		m.pushI64(int64(m.popI32()))
	case code.OpI64ExtendI32U:
		m.push(uint64(m.popU32()))

	case code.OpI32Extend8S:
		m.pushI32(int32(int8(m.pop())))
	case code.OpI32Extend16S:
		m.pushI32(int32(int16(m.pop())))
	case code.OpI64Extend8S:
		m.pushI64(int64(int8(m.pop())))
	case code.OpI64Extend16S:
		m.pushI64(int64(int16(m.pop())))
	case code.OpI64Extend32S:
		m.pushI64(int64(int32(m.pop())))

	default:
		panic(fmt.Errorf("interpreter: unexpected opcode %v", instr.OpString()))
	}
}
