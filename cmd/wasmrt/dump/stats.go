package dump

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
)

// row holds the statistics of a single function body.
type row struct {
	Function         string `csv:"function"`
	Funcidx          int    `csv:"funcidx"`
	In               int    `csv:"in"`
	Out              int    `csv:"out"`
	LocalCount       int    `csv:"local count"`
	MaxStack         int    `csv:"max stack"`
	MaxNesting       int    `csv:"max nesting"`
	LabelCount       int    `csv:"label count"`
	HasLoops         bool   `csv:"has loops"`
	InstructionCount int    `csv:"instruction count"`
	Unreachable      int    `csv:"unreachable"`
	Nop              int    `csv:"nop"`
	Block            int    `csv:"block"`
	BlockUnit        int    `csv:"unit block"`
	BlockZero        int    `csv:"zero block"`
	Loop             int    `csv:"loop"`
	If               int    `csv:"if"`
	IfUnit           int    `csv:"unit if"`
	Else             int    `csv:"else"`
	Br               int    `csv:"br"`
	BrIf             int    `csv:"br_if"`
	BrTable          int    `csv:"br_table"`
	Return           int    `csv:"return"`
	Call             int    `csv:"call"`
	CallIndirect     int    `csv:"call_indirect"`
	Drop             int    `csv:"drop"`
	Select           int    `csv:"select"`
	LocalGet         int    `csv:"local.get"`
	LocalSet         int    `csv:"local.set"`
	LocalTee         int    `csv:"local.tee"`
	GlobalGet        int    `csv:"global.get"`
	GlobalSet        int    `csv:"global.set"`
	Load             int    `csv:"load"`
	LoadSmall        int    `csv:"load small offset"`
	Store            int    `csv:"store"`
	StoreSmall       int    `csv:"store small offset"`
	MemorySize       int    `csv:"memory.size"`
	MemoryGrow       int    `csv:"memory.grow"`
	I32Const         int    `csv:"i32.const"`
	I64Const         int    `csv:"i64.const"`
	I32SmallConst    int    `csv:"i32.small.const"`
	I64SmallConst    int    `csv:"i64.small.const"`
	I32Compare       int    `csv:"i32 compare"`
	I64Compare       int    `csv:"i64 compare"`
	I32Arith         int    `csv:"i32 arith"`
	I64Arith         int    `csv:"i64 arith"`
	Convert          int    `csv:"convert"`
}

func (r *row) count(instr *code.Instruction) {
	switch op := instr.Opcode; {
	case op == code.OpUnreachable:
		r.Unreachable++
	case op == code.OpNop:
		r.Nop++

	case op == code.OpBlock:
		if instr.Arity() == 0 {
			r.BlockUnit++
		}
		if instr.StackHeight() == 0 {
			r.BlockZero++
		}
		r.Block++
	case op == code.OpLoop:
		r.Loop++
	case op == code.OpIf:
		if instr.Arity() == 0 {
			r.IfUnit++
		}
		r.If++
	case op == code.OpElse:
		r.Else++
	case op == code.OpEnd:
		// not counted

	case op == code.OpBr:
		r.Br++
	case op == code.OpBrIf:
		r.BrIf++
	case op == code.OpBrTable:
		r.BrTable++
	case op == code.OpReturn:
		r.Return++
	case op == code.OpCall:
		r.Call++
	case op == code.OpCallIndirect:
		r.CallIndirect++

	case op == code.OpDrop:
		r.Drop++
	case op == code.OpSelect:
		r.Select++

	case op == code.OpLocalGet:
		r.LocalGet++
	case op == code.OpLocalSet:
		r.LocalSet++
	case op == code.OpLocalTee:
		r.LocalTee++
	case op == code.OpGlobalGet:
		r.GlobalGet++
	case op == code.OpGlobalSet:
		r.GlobalSet++

	case op >= code.OpI32Load && op <= code.OpI64Load32U:
		if instr.Offset() < 256 {
			r.LoadSmall++
		}
		r.Load++
	case op >= code.OpI32Store && op <= code.OpI64Store32:
		if instr.Offset() < 256 {
			r.StoreSmall++
		}
		r.Store++
	case op == code.OpMemorySize:
		r.MemorySize++
	case op == code.OpMemoryGrow:
		r.MemoryGrow++

	case op == code.OpI32Const:
		if v := instr.I32(); v >= -128 && v < 128 {
			r.I32SmallConst++
		}
		r.I32Const++
	case op == code.OpI64Const:
		if v := instr.I64(); v >= -128 && v < 128 {
			r.I64SmallConst++
		}
		r.I64Const++

	case op >= code.OpI32Eqz && op <= code.OpI32GeU:
		r.I32Compare++
	case op >= code.OpI64Eqz && op <= code.OpI64GeU:
		r.I64Compare++
	case op >= code.OpI32Clz && op <= code.OpI32Rotr, op == code.OpI32Extend8S, op == code.OpI32Extend16S:
		r.I32Arith++
	case op >= code.OpI64Clz && op <= code.OpI64Rotr, op >= code.OpI64Extend8S && op <= code.OpI64Extend32S:
		r.I64Arith++
	case op == code.OpI32WrapI64, op == code.OpI64ExtendI32S, op == code.OpI64ExtendI32U:
		r.Convert++
	}
}

// dumpStats writes one CSV row of decoder metrics and instruction counts per function body.
func dumpStats(w io.Writer, m *wasm.Module, names map[uint32]string) error {
	csvWriter := csv.NewWriter(w)
	encoder := csvutil.NewEncoder(csvWriter)

	s := code.NewStaticScope(m)
	for idx, body := range m.Code.Bodies {
		sig := m.Types.Entries[m.Function.Types[idx]]
		s.SetFunction(sig, body)

		decoded, err := code.DecodeFunction(&body, s, sig.ReturnTypes)
		if err != nil {
			return err
		}

		funcidx := idx + len(s.ImportedFunctions)
		r := row{
			Function:         names[uint32(funcidx)],
			Funcidx:          funcidx,
			In:               len(sig.ParamTypes),
			Out:              len(sig.ReturnTypes),
			LocalCount:       len(s.Locals),
			MaxStack:         decoded.Metrics.MaxStackDepth,
			MaxNesting:       decoded.Metrics.MaxNesting,
			LabelCount:       decoded.Metrics.LabelCount,
			HasLoops:         decoded.Metrics.HasLoops,
			InstructionCount: len(decoded.Instructions),
		}
		for i := range decoded.Instructions {
			r.count(&decoded.Instructions[i])
		}

		if err := encoder.Encode(r); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
