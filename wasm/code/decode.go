package code

import (
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/leb128"
)

// blockValueType checks a single-byte block type or value type encoding.
func blockValueType(b byte) (uint64, error) {
	switch b {
	case 0x40, 0x7f, 0x7e:
		return uint64(b) | BlockTypeSpecial, nil
	case 0x7d:
		return 0, wasm.UnsupportedError(-1, "f32", "floating point")
	case 0x7c:
		return 0, wasm.UnsupportedError(-1, "f64", "floating point")
	case 0x7b:
		return 0, wasm.UnsupportedError(-1, "v128", "SIMD")
	case 0x70, 0x6f:
		return 0, wasm.UnsupportedError(-1, "reference", "reference types")
	default:
		return 0, wasm.NewDecodeError(-1, wasm.InvalidValueType, "invalid block type %#x", b)
	}
}

func decodeBlockType(body []byte) (uint64, []byte, error) {
	// Block encoding
	if len(body) == 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	if body[0]&0x80 == 0 && body[0]&0x40 != 0 {
		t, err := blockValueType(body[0])
		return t, body[1:], err
	}

	// A non-negative s33 is a type index, which is only meaningful for blocks with parameters or multiple results.
	index, _, err := leb128.GetVarint33(body)
	if err != nil {
		return 0, nil, err
	}
	if index >= 0 {
		return 0, nil, wasm.UnsupportedError(-1, fmt.Sprintf("block type %d", index), "multi-value")
	}
	return 0, nil, wasm.NewDecodeError(-1, wasm.InvalidValueType, "invalid block type %d", index)
}

// unsupportedPrefixed reports an instruction behind one of the proposal prefixes.
func unsupportedPrefixed(prefix byte, body []byte) error {
	sub, _, err := leb128.GetVarUint32(body)
	if err != nil {
		return err
	}
	op := prefixedOp(prefix, sub)
	return wasm.UnsupportedError(-1, op.name, op.feature)
}

// naturalAlignment returns log2 of the access width of a memory instruction.
func naturalAlignment(opcode byte) uint32 {
	switch opcode {
	case OpI32Load8S, OpI32Load8U, OpI64Load8S, OpI64Load8U, OpI32Store8, OpI64Store8:
		return 0
	case OpI32Load16S, OpI32Load16U, OpI64Load16S, OpI64Load16U, OpI32Store16, OpI64Store16:
		return 1
	case OpI32Load, OpI64Load32S, OpI64Load32U, OpI32Store, OpI64Store32:
		return 2
	default:
		return 3
	}
}

type Metrics struct {
	MaxNesting    int  // The maximum block nesting for the function.
	MaxStackDepth int  // The maximum stack depth for the function.
	LabelCount    int  // The number of labels in the function.
	HasLoops      bool // True if this function has loops
}

type block struct {
	*Instruction

	in, out     []wasm.ValueType
	stackHeight int
	unreachable bool
}

type decoder struct {
	Scope

	base int64 // module offset of the body
	pc   int   // body offset of the current instruction

	ibuf    []Instruction
	metrics Metrics

	blocks []block
	stack  []wasm.ValueType
}

// Body is a decoded function body. Branch continuations are resolved to instruction indices.
type Body struct {
	Instructions []Instruction
	Metrics      Metrics
}

// Decode decodes and type-checks a function body. Every error is a *wasm.DecodeError whose offset is relative to
// the start of body.
func Decode(body []byte, scope Scope, out []wasm.ValueType) (Body, error) {
	decoder := decoder{Scope: scope}
	return decoder.decode(body, out)
}

// DecodeFunction decodes a function body taken from a module. Error offsets are relative to the start of the module.
func DecodeFunction(fb *wasm.FunctionBody, scope Scope, out []wasm.ValueType) (Body, error) {
	decoder := decoder{Scope: scope, base: fb.Offset}
	return decoder.decode(fb.Code, out)
}

func (d *decoder) popOpd() (wasm.ValueType, error) {
	b := &d.blocks[len(d.blocks)-1]
	if b.unreachable && len(d.stack) == b.stackHeight {
		return wasm.ValueTypeT, nil
	}
	if len(d.stack) == b.stackHeight {
		return 0, wasm.ValidationError("stack underflow")
	}
	t := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return t, nil
}

func (d *decoder) popOpds(types ...wasm.ValueType) error {
	for i := len(types) - 1; i >= 0; i-- {
		expected := types[i]
		actual, err := d.popOpd()
		if err != nil {
			return err
		}
		if actual != wasm.ValueTypeT && expected != wasm.ValueTypeT && actual != expected {
			return wasm.ValidationError(fmt.Sprintf("type mismatch: expected %v, got %v", expected, actual))
		}
	}
	return nil
}

func (d *decoder) pushOpds(types ...wasm.ValueType) {
	d.stack = append(d.stack, types...)

	if len(d.stack) > d.metrics.MaxStackDepth {
		d.metrics.MaxStackDepth = len(d.stack)
	}
}

func (d *decoder) pushBlock(instr *Instruction, in, out []wasm.ValueType) {
	d.blocks = append(d.blocks, block{
		Instruction: instr,
		in:          in,
		out:         out,
		stackHeight: len(d.stack),
	})
	d.pushOpds(in...)

	if len(d.blocks) > d.metrics.MaxNesting {
		d.metrics.MaxNesting = len(d.blocks)
	}
	d.metrics.LabelCount++
}

func (d *decoder) popBlock() (*block, error) {
	if len(d.blocks) == 0 {
		return nil, wasm.ValidationError("label stack underflow")
	}
	b := &d.blocks[len(d.blocks)-1]
	if err := d.popOpds(b.out...); err != nil {
		return nil, err
	}
	if len(d.stack) != b.stackHeight {
		return nil, wasm.ValidationError("unbalanced stack")
	}
	d.blocks = d.blocks[:len(d.blocks)-1]
	return b, nil
}

func (d *decoder) labelTypes(n int) ([]wasm.ValueType, error) {
	if n < 0 || len(d.blocks)-1 < n {
		return nil, wasm.ValidationError("invalid label")
	}

	b := &d.blocks[len(d.blocks)-1-n]
	if b.Instruction != nil && b.Opcode == OpLoop {
		return b.in, nil
	}
	return b.out, nil
}

func (d *decoder) unreachable() {
	b := &d.blocks[len(d.blocks)-1]
	d.stack = d.stack[:b.stackHeight]
	b.unreachable = true
}

func (d *decoder) checkMemory(i *Instruction) error {
	if !d.HasMemory(0) {
		return wasm.ValidationError("unknown memory")
	}
	if _, align := i.Memarg(); align > naturalAlignment(i.Opcode) {
		return wasm.ValidationError("alignment must not be larger than natural")
	}
	return nil
}

func (d *decoder) doStack(i *Instruction) error {
	const (
		I32 = wasm.ValueTypeI32
		I64 = wasm.ValueTypeI64
	)

	switch i.Opcode {
	case OpNop:

	case OpLocalSet:
		t, ok := d.GetLocalType(i.Localidx())
		if !ok {
			return wasm.ValidationError("unknown local")
		}
		return d.popOpds(t)

	case OpGlobalSet:
		t, ok := d.GetGlobalType(i.Globalidx())
		if !ok {
			return wasm.ValidationError("unknown global")
		}
		if !t.Mutable {
			return wasm.ValidationError("global is immutable")
		}
		return d.popOpds(t.Type)

	case OpI32Store, OpI32Store8, OpI32Store16:
		if err := d.checkMemory(i); err != nil {
			return err
		}
		return d.popOpds(I32, I32)

	case OpI64Store, OpI64Store8, OpI64Store16, OpI64Store32:
		if err := d.checkMemory(i); err != nil {
			return err
		}
		return d.popOpds(I32, I64)

	case OpLocalGet:
		t, ok := d.GetLocalType(i.Localidx())
		if !ok {
			return wasm.ValidationError("unknown local")
		}
		d.pushOpds(t)

	case OpGlobalGet:
		t, ok := d.GetGlobalType(i.Globalidx())
		if !ok {
			return wasm.ValidationError("unknown global")
		}
		d.pushOpds(t.Type)

	case OpI32Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U:
		if err := d.checkMemory(i); err != nil {
			return err
		}
		if err := d.popOpds(I32); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U:
		if err := d.checkMemory(i); err != nil {
			return err
		}
		if err := d.popOpds(I32); err != nil {
			return err
		}
		d.pushOpds(I64)

	case OpMemorySize:
		if !d.HasMemory(0) {
			return wasm.ValidationError("unknown memory")
		}
		d.pushOpds(I32)

	case OpMemoryGrow:
		if !d.HasMemory(0) {
			return wasm.ValidationError("unknown memory")
		}
		if err := d.popOpds(I32); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI32Const:
		d.pushOpds(I32)

	case OpI64Const:
		d.pushOpds(I64)

	case OpLocalTee:
		t, ok := d.GetLocalType(i.Localidx())
		if !ok {
			return wasm.ValidationError("unknown local")
		}
		if err := d.popOpds(t); err != nil {
			return err
		}
		d.pushOpds(t)

	case OpI32Eqz, OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Extend8S, OpI32Extend16S:
		if err := d.popOpds(I32); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI64Eqz, OpI32WrapI64:
		if err := d.popOpds(I64); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S:
		if err := d.popOpds(I64); err != nil {
			return err
		}
		d.pushOpds(I64)

	case OpI64ExtendI32S, OpI64ExtendI32U:
		if err := d.popOpds(I32); err != nil {
			return err
		}
		d.pushOpds(I64)

	case OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr:
		if err := d.popOpds(I32, I32); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU:
		if err := d.popOpds(I64, I64); err != nil {
			return err
		}
		d.pushOpds(I32)

	case OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr:
		if err := d.popOpds(I64, I64); err != nil {
			return err
		}
		d.pushOpds(I64)

	case OpCall:
		sig, ok := d.GetFunctionSignature(i.Funcidx())
		if !ok {
			return wasm.ValidationError("unknown function")
		}
		if err := d.popOpds(sig.ParamTypes...); err != nil {
			return err
		}
		d.pushOpds(sig.ReturnTypes...)

	case OpCallIndirect:
		if !d.HasTable(0) {
			return wasm.ValidationError("unknown table")
		}
		sig, ok := d.GetType(i.Typeidx())
		if !ok {
			return wasm.ValidationError("unknown type")
		}
		if err := d.popOpds(I32); err != nil {
			return err
		}
		if err := d.popOpds(sig.ParamTypes...); err != nil {
			return err
		}
		d.pushOpds(sig.ReturnTypes...)

	default:
		return fmt.Errorf("unexpected opcode %#02x", i.Opcode)
	}

	return nil
}

func readReserved(body []byte, what, feature string) ([]byte, error) {
	if len(body) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if body[0] != 0x00 {
		return nil, wasm.UnsupportedError(-1, what, feature)
	}
	return body[1:], nil
}

func (d *decoder) decodeInstruction(body []byte) (*Instruction, []byte, error) {
	if len(body) == 0 {
		return nil, nil, io.ErrUnexpectedEOF
	}

	ip := len(d.ibuf)
	opcode := body[0]
	body = body[1:]

	var immediate uint64
	var labels []int
	var err error
	switch opcode {
	case OpBlock:
		immediate, body, err = decodeBlockType(body)
		if err != nil {
			return nil, nil, err
		}
		labels = []int{0}
	case OpLoop:
		d.metrics.HasLoops = true

		immediate, body, err = decodeBlockType(body)
		if err != nil {
			return nil, nil, err
		}
		labels = []int{ip}
	case OpIf:
		immediate, body, err = decodeBlockType(body)
		if err != nil {
			return nil, nil, err
		}
		labels = []int{0, 0}
	case OpElse:
		labels = []int{0}
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		// Index encoding
		index, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		immediate, body = uint64(index), body[read:]
	case OpBrTable:
		numLabels, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		body = body[read:]
		if int(numLabels) > len(body) {
			return nil, nil, io.ErrUnexpectedEOF
		}

		labels = make([]int, int(numLabels))
		for i := 0; i < len(labels); i++ {
			label, read, err := leb128.GetVarUint32(body)
			if err != nil {
				return nil, nil, err
			}
			labels[i], body = int(label), body[read:]
		}

		defaultLabel, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		immediate, body = uint64(defaultLabel), body[read:]
	case OpCallIndirect:
		index, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		immediate, body = uint64(index), body[read:]

		if body, err = readReserved(body, "call_indirect table index", "reference types"); err != nil {
			return nil, nil, err
		}
	case OpI32Load, OpI64Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U, OpI32Store, OpI64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		// Memory encoding
		align, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		body = body[read:]

		offset, read, err := leb128.GetVarUint32(body)
		if err != nil {
			return nil, nil, err
		}
		body = body[read:]

		immediate = memarg(offset, align)
	case OpMemorySize, OpMemoryGrow:
		if body, err = readReserved(body, "memory index", "multiple memories"); err != nil {
			return nil, nil, err
		}
	case OpI32Const:
		value, read, err := leb128.GetVarint32(body)
		if err != nil {
			return nil, nil, err
		}
		immediate, body = uint64(value), body[read:]
	case OpI64Const:
		value, read, err := leb128.GetVarint64(body)
		if err != nil {
			return nil, nil, err
		}
		immediate, body = uint64(value), body[read:]
	case OpPrefixMisc, OpPrefixSIMD, OpPrefixThread:
		return nil, nil, unsupportedPrefixed(opcode, body)
	default:
		if u, ok := unsupportedOps[opcode]; ok {
			return nil, nil, wasm.UnsupportedError(-1, u.name, u.feature)
		}
		if opNames[opcode] == "" {
			return nil, nil, &wasm.DecodeError{Offset: -1, Kind: wasm.UnknownOpcode, Opcode: fmt.Sprintf("%#02x", opcode)}
		}
		// Single-byte encoding; already done
	}

	instr := Instruction{
		Opcode:    opcode,
		Immediate: immediate,
		Labels:    labels,
	}
	d.ibuf = append(d.ibuf, instr)
	return &d.ibuf[len(d.ibuf)-1], body, nil
}

func (d *decoder) decode(body []byte, out []wasm.ValueType) (Body, error) {
	b, err := d.run(body, out)
	if err != nil {
		return Body{}, wasm.AsDecodeError(err, d.base+int64(d.pc))
	}
	return b, nil
}

func (d *decoder) run(code []byte, out []wasm.ValueType) (Body, error) {
	d.ibuf = make([]Instruction, 0, len(code))

	var instr *Instruction
	d.pushBlock(instr, nil, out)

	body := code
	var err error
	for {
		ip := len(d.ibuf)
		d.pc = len(code) - len(body)
		if instr, body, err = d.decodeInstruction(body); err != nil {
			return Body{}, err
		}

		switch instr.Opcode {
		default:
			if err := d.doStack(instr); err != nil {
				return Body{}, err
			}

		case OpDrop:
			if _, err := d.popOpd(); err != nil {
				return Body{}, err
			}

		case OpSelect:
			if err := d.popOpds(wasm.ValueTypeI32); err != nil {
				return Body{}, err
			}
			t, err := d.popOpd()
			if err != nil {
				return Body{}, err
			}
			u, err := d.popOpd()
			if err != nil {
				return Body{}, err
			}
			if t == wasm.ValueTypeT {
				t = u
			} else if u != wasm.ValueTypeT && u != t {
				return Body{}, wasm.ValidationError(fmt.Sprintf("type mismatch: select operands %v and %v", u, t))
			}
			d.pushOpds(t)

		case OpUnreachable:
			d.unreachable()

		case OpIf:
			if err := d.popOpds(wasm.ValueTypeI32); err != nil {
				return Body{}, err
			}
			fallthrough

		case OpBlock, OpLoop:
			in, out := instr.BlockType()
			d.pushBlock(instr, in, out)

			stackHeight := d.blocks[len(d.blocks)-1].stackHeight
			instr.Immediate |= (uint64(stackHeight) << 32) & StackHeightMask

		case OpElse:
			if len(d.blocks) < 2 {
				return Body{}, wasm.ValidationError("else outside if")
			}
			b, err := d.popBlock()
			if err != nil {
				return Body{}, err
			}

			if b.Opcode != OpIf || b.Labels[1] != 0 {
				return Body{}, wasm.ValidationError("invalid nesting")
			}
			b.Labels[1] = ip

			d.pushBlock(b.Instruction, b.in, b.out)

		case OpEnd:
			b, err := d.popBlock()
			if err != nil {
				return Body{}, err
			}

			switch {
			case b.Instruction != nil:
				if b.Opcode != OpLoop {
					b.Labels[0] = ip + 1
				}
				if b.Opcode == OpIf {
					if b.Labels[1] != 0 {
						d.ibuf[b.Labels[1]].Labels[0] = ip + 1
					} else if len(b.out) != 0 {
						return Body{}, wasm.ValidationError("if with a result requires an else")
					}
				}
				d.pushOpds(b.out...)
			case len(body) != 0:
				return Body{}, wasm.ValidationError("unexpected end instruction")
			default:
				// Condense the instruction list.
				if cap(d.ibuf)-len(d.ibuf) > len(d.ibuf)/10 {
					result := make([]Instruction, len(d.ibuf))
					copy(result, d.ibuf)
					d.ibuf = result
				}
				return Body{
					Instructions: d.ibuf,
					Metrics:      d.metrics,
				}, nil
			}

		case OpBr:
			pop, err := d.labelTypes(instr.Labelidx())
			if err != nil {
				return Body{}, err
			}
			if err := d.popOpds(pop...); err != nil {
				return Body{}, err
			}
			d.unreachable()

		case OpBrIf:
			pop, err := d.labelTypes(instr.Labelidx())
			if err != nil {
				return Body{}, err
			}
			if err := d.popOpds(wasm.ValueTypeI32); err != nil {
				return Body{}, err
			}
			if err := d.popOpds(pop...); err != nil {
				return Body{}, err
			}
			d.pushOpds(pop...)

		case OpBrTable:
			pop, err := d.labelTypes(instr.Default())
			if err != nil {
				return Body{}, err
			}
			for _, l := range instr.Labels {
				typs, err := d.labelTypes(l)
				if err != nil {
					return Body{}, err
				}
				if len(typs) != len(pop) {
					return Body{}, wasm.ValidationError("br_table type mismatch")
				}
				for i, t := range typs {
					if pop[i] != t {
						return Body{}, wasm.ValidationError("br_table type mismatch")
					}
				}
			}
			if err := d.popOpds(wasm.ValueTypeI32); err != nil {
				return Body{}, err
			}
			if err := d.popOpds(pop...); err != nil {
				return Body{}, err
			}
			d.unreachable()

		case OpReturn:
			if err := d.popOpds(d.blocks[0].out...); err != nil {
				return Body{}, err
			}
			d.unreachable()
		}
	}
}

func decodeSingleBlockType(r io.Reader) (uint64, error) {
	n, err := leb128.ReadVarint64(r)
	if err != nil {
		return 0, err
	}
	if n >= 0 {
		return 0, wasm.UnsupportedError(-1, fmt.Sprintf("block type %d", n), "multi-value")
	}
	return blockValueType(byte(n & 0x7f))
}

func decodeSingleInstruction(r io.Reader) (Instruction, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return Instruction{}, err
	}

	opcode := buf[0]
	var immediate uint64
	var labels []int
	switch opcode {
	case OpBlock, OpLoop, OpIf:
		blockType, err := decodeSingleBlockType(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = blockType
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		// Index encoding
		index, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = uint64(index)
	case OpBrTable:
		numLabels, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}

		labels = make([]int, 0, int(numLabels)&0xffff)
		for i := uint32(0); i < numLabels; i++ {
			label, err := leb128.ReadVarUint32(r)
			if err != nil {
				return Instruction{}, err
			}
			labels = append(labels, int(label))
		}

		defaultLabel, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = uint64(defaultLabel)
	case OpCallIndirect:
		index, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = uint64(index)

		if _, err = io.ReadFull(r, buf[:1]); err != nil {
			return Instruction{}, err
		}
		if buf[0] != 0x00 {
			return Instruction{}, wasm.UnsupportedError(-1, "call_indirect table index", "reference types")
		}
	case OpI32Load, OpI64Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U, OpI32Store, OpI64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		// Memory encoding
		align, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}

		offset, err := leb128.ReadVarUint32(r)
		if err != nil {
			return Instruction{}, err
		}

		immediate = memarg(offset, align)
	case OpMemorySize, OpMemoryGrow:
		// memory.size, memory.grow
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return Instruction{}, err
		}
		if buf[0] != 0x00 {
			return Instruction{}, wasm.UnsupportedError(-1, "memory index", "multiple memories")
		}
	case OpI32Const:
		value, err := leb128.ReadVarint32(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = uint64(value)
	case OpI64Const:
		value, err := leb128.ReadVarint64(r)
		if err != nil {
			return Instruction{}, err
		}
		immediate = uint64(value)
	default:
		if u, ok := unsupportedOps[opcode]; ok {
			return Instruction{}, wasm.UnsupportedError(-1, u.name, u.feature)
		}
		if opNames[opcode] == "" {
			return Instruction{}, &wasm.DecodeError{Offset: -1, Kind: wasm.UnknownOpcode, Opcode: fmt.Sprintf("%#02x", opcode)}
		}
		// Single-byte encoding; already done
	}

	return Instruction{
		Opcode:    opcode,
		Immediate: immediate,
		Labels:    labels,
	}, nil
}
