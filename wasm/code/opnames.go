package code

import "fmt"

// opNames holds the text format name of every supported opcode.
var opNames = [256]string{
	OpUnreachable:   "unreachable",
	OpNop:           "nop",
	OpBlock:         "block",
	OpLoop:          "loop",
	OpIf:            "if",
	OpElse:          "else",
	OpEnd:           "end",
	OpBr:            "br",
	OpBrIf:          "br_if",
	OpBrTable:       "br_table",
	OpReturn:        "return",
	OpCall:          "call",
	OpCallIndirect:  "call_indirect",
	OpDrop:          "drop",
	OpSelect:        "select",
	OpLocalGet:      "local.get",
	OpLocalSet:      "local.set",
	OpLocalTee:      "local.tee",
	OpGlobalGet:     "global.get",
	OpGlobalSet:     "global.set",
	OpI32Load:       "i32.load",
	OpI64Load:       "i64.load",
	OpI32Load8S:     "i32.load8_s",
	OpI32Load8U:     "i32.load8_u",
	OpI32Load16S:    "i32.load16_s",
	OpI32Load16U:    "i32.load16_u",
	OpI64Load8S:     "i64.load8_s",
	OpI64Load8U:     "i64.load8_u",
	OpI64Load16S:    "i64.load16_s",
	OpI64Load16U:    "i64.load16_u",
	OpI64Load32S:    "i64.load32_s",
	OpI64Load32U:    "i64.load32_u",
	OpI32Store:      "i32.store",
	OpI64Store:      "i64.store",
	OpI32Store8:     "i32.store8",
	OpI32Store16:    "i32.store16",
	OpI64Store8:     "i64.store8",
	OpI64Store16:    "i64.store16",
	OpI64Store32:    "i64.store32",
	OpMemorySize:    "memory.size",
	OpMemoryGrow:    "memory.grow",
	OpI32Const:      "i32.const",
	OpI64Const:      "i64.const",
	OpI32Eqz:        "i32.eqz",
	OpI32Eq:         "i32.eq",
	OpI32Ne:         "i32.ne",
	OpI32LtS:        "i32.lt_s",
	OpI32LtU:        "i32.lt_u",
	OpI32GtS:        "i32.gt_s",
	OpI32GtU:        "i32.gt_u",
	OpI32LeS:        "i32.le_s",
	OpI32LeU:        "i32.le_u",
	OpI32GeS:        "i32.ge_s",
	OpI32GeU:        "i32.ge_u",
	OpI64Eqz:        "i64.eqz",
	OpI64Eq:         "i64.eq",
	OpI64Ne:         "i64.ne",
	OpI64LtS:        "i64.lt_s",
	OpI64LtU:        "i64.lt_u",
	OpI64GtS:        "i64.gt_s",
	OpI64GtU:        "i64.gt_u",
	OpI64LeS:        "i64.le_s",
	OpI64LeU:        "i64.le_u",
	OpI64GeS:        "i64.ge_s",
	OpI64GeU:        "i64.ge_u",
	OpI32Clz:        "i32.clz",
	OpI32Ctz:        "i32.ctz",
	OpI32Popcnt:     "i32.popcnt",
	OpI32Add:        "i32.add",
	OpI32Sub:        "i32.sub",
	OpI32Mul:        "i32.mul",
	OpI32DivS:       "i32.div_s",
	OpI32DivU:       "i32.div_u",
	OpI32RemS:       "i32.rem_s",
	OpI32RemU:       "i32.rem_u",
	OpI32And:        "i32.and",
	OpI32Or:         "i32.or",
	OpI32Xor:        "i32.xor",
	OpI32Shl:        "i32.shl",
	OpI32ShrS:       "i32.shr_s",
	OpI32ShrU:       "i32.shr_u",
	OpI32Rotl:       "i32.rotl",
	OpI32Rotr:       "i32.rotr",
	OpI64Clz:        "i64.clz",
	OpI64Ctz:        "i64.ctz",
	OpI64Popcnt:     "i64.popcnt",
	OpI64Add:        "i64.add",
	OpI64Sub:        "i64.sub",
	OpI64Mul:        "i64.mul",
	OpI64DivS:       "i64.div_s",
	OpI64DivU:       "i64.div_u",
	OpI64RemS:       "i64.rem_s",
	OpI64RemU:       "i64.rem_u",
	OpI64And:        "i64.and",
	OpI64Or:         "i64.or",
	OpI64Xor:        "i64.xor",
	OpI64Shl:        "i64.shl",
	OpI64ShrS:       "i64.shr_s",
	OpI64ShrU:       "i64.shr_u",
	OpI64Rotl:       "i64.rotl",
	OpI64Rotr:       "i64.rotr",
	OpI32WrapI64:    "i32.wrap_i64",
	OpI64ExtendI32S: "i64.extend_i32_s",
	OpI64ExtendI32U: "i64.extend_i32_u",
	OpI32Extend8S:   "i32.extend8_s",
	OpI32Extend16S:  "i32.extend16_s",
	OpI64Extend8S:   "i64.extend8_s",
	OpI64Extend16S:  "i64.extend16_s",
	OpI64Extend32S:  "i64.extend32_s",
}

type unsupportedOp struct {
	name    string
	feature string
}

// unsupportedOps names the single-byte opcodes of proposals this engine rejects.
var unsupportedOps = map[byte]unsupportedOp{
	0x06: {"try", "exception handling"},
	0x07: {"catch", "exception handling"},
	0x08: {"throw", "exception handling"},
	0x09: {"rethrow", "exception handling"},
	0x0a: {"throw_ref", "exception handling"},
	0x12: {"return_call", "tail calls"},
	0x13: {"return_call_indirect", "tail calls"},
	0x14: {"call_ref", "typed function references"},
	0x15: {"return_call_ref", "typed function references"},
	0x18: {"delegate", "exception handling"},
	0x19: {"catch_all", "exception handling"},
	0x1c: {"select t", "reference types"},
	0x25: {"table.get", "reference types"},
	0x26: {"table.set", "reference types"},
	0x2a: {"f32.load", "floating point"},
	0x2b: {"f64.load", "floating point"},
	0x38: {"f32.store", "floating point"},
	0x39: {"f64.store", "floating point"},
	0x43: {"f32.const", "floating point"},
	0x44: {"f64.const", "floating point"},
	0x5b: {"f32.eq", "floating point"},
	0x5c: {"f32.ne", "floating point"},
	0x5d: {"f32.lt", "floating point"},
	0x5e: {"f32.gt", "floating point"},
	0x5f: {"f32.le", "floating point"},
	0x60: {"f32.ge", "floating point"},
	0x61: {"f64.eq", "floating point"},
	0x62: {"f64.ne", "floating point"},
	0x63: {"f64.lt", "floating point"},
	0x64: {"f64.gt", "floating point"},
	0x65: {"f64.le", "floating point"},
	0x66: {"f64.ge", "floating point"},
	0x8b: {"f32.abs", "floating point"},
	0x8c: {"f32.neg", "floating point"},
	0x8d: {"f32.ceil", "floating point"},
	0x8e: {"f32.floor", "floating point"},
	0x8f: {"f32.trunc", "floating point"},
	0x90: {"f32.nearest", "floating point"},
	0x91: {"f32.sqrt", "floating point"},
	0x92: {"f32.add", "floating point"},
	0x93: {"f32.sub", "floating point"},
	0x94: {"f32.mul", "floating point"},
	0x95: {"f32.div", "floating point"},
	0x96: {"f32.min", "floating point"},
	0x97: {"f32.max", "floating point"},
	0x98: {"f32.copysign", "floating point"},
	0x99: {"f64.abs", "floating point"},
	0x9a: {"f64.neg", "floating point"},
	0x9b: {"f64.ceil", "floating point"},
	0x9c: {"f64.floor", "floating point"},
	0x9d: {"f64.trunc", "floating point"},
	0x9e: {"f64.nearest", "floating point"},
	0x9f: {"f64.sqrt", "floating point"},
	0xa0: {"f64.add", "floating point"},
	0xa1: {"f64.sub", "floating point"},
	0xa2: {"f64.mul", "floating point"},
	0xa3: {"f64.div", "floating point"},
	0xa4: {"f64.min", "floating point"},
	0xa5: {"f64.max", "floating point"},
	0xa6: {"f64.copysign", "floating point"},
	0xa8: {"i32.trunc_f32_s", "floating point"},
	0xa9: {"i32.trunc_f32_u", "floating point"},
	0xaa: {"i32.trunc_f64_s", "floating point"},
	0xab: {"i32.trunc_f64_u", "floating point"},
	0xae: {"i64.trunc_f32_s", "floating point"},
	0xaf: {"i64.trunc_f32_u", "floating point"},
	0xb0: {"i64.trunc_f64_s", "floating point"},
	0xb1: {"i64.trunc_f64_u", "floating point"},
	0xb2: {"f32.convert_i32_s", "floating point"},
	0xb3: {"f32.convert_i32_u", "floating point"},
	0xb4: {"f32.convert_i64_s", "floating point"},
	0xb5: {"f32.convert_i64_u", "floating point"},
	0xb6: {"f32.demote_f64", "floating point"},
	0xb7: {"f64.convert_i32_s", "floating point"},
	0xb8: {"f64.convert_i32_u", "floating point"},
	0xb9: {"f64.convert_i64_s", "floating point"},
	0xba: {"f64.convert_i64_u", "floating point"},
	0xbb: {"f64.promote_f32", "floating point"},
	0xbc: {"i32.reinterpret_f32", "floating point"},
	0xbd: {"i64.reinterpret_f64", "floating point"},
	0xbe: {"f32.reinterpret_i32", "floating point"},
	0xbf: {"f64.reinterpret_i64", "floating point"},
	0xd0: {"ref.null", "reference types"},
	0xd1: {"ref.is_null", "reference types"},
	0xd2: {"ref.func", "reference types"},
}

// miscOps names the instructions behind the 0xfc prefix.
var miscOps = [...]unsupportedOp{
	{"i32.trunc_sat_f32_s", "floating point"},
	{"i32.trunc_sat_f32_u", "floating point"},
	{"i32.trunc_sat_f64_s", "floating point"},
	{"i32.trunc_sat_f64_u", "floating point"},
	{"i64.trunc_sat_f32_s", "floating point"},
	{"i64.trunc_sat_f32_u", "floating point"},
	{"i64.trunc_sat_f64_s", "floating point"},
	{"i64.trunc_sat_f64_u", "floating point"},
	{"memory.init", "bulk memory"},
	{"data.drop", "bulk memory"},
	{"memory.copy", "bulk memory"},
	{"memory.fill", "bulk memory"},
	{"table.init", "bulk memory"},
	{"elem.drop", "bulk memory"},
	{"table.copy", "bulk memory"},
	{"table.grow", "reference types"},
	{"table.size", "reference types"},
	{"table.fill", "reference types"},
}

// prefixedOp describes the instruction selected by sub after one of the proposal prefixes.
func prefixedOp(prefix byte, sub uint32) unsupportedOp {
	switch prefix {
	case OpPrefixMisc:
		if sub < uint32(len(miscOps)) {
			return miscOps[sub]
		}
		return unsupportedOp{fmt.Sprintf("0xfc %d", sub), "bulk memory"}
	case OpPrefixSIMD:
		return unsupportedOp{fmt.Sprintf("simd 0xfd %d", sub), "SIMD"}
	default:
		return unsupportedOp{fmt.Sprintf("atomic 0xfe %d", sub), "threads"}
	}
}

// OpName returns the text format name of an opcode, whether or not it is supported.
func OpName(opcode byte) string {
	if n := opNames[opcode]; n != "" {
		return n
	}
	if u, ok := unsupportedOps[opcode]; ok {
		return u.name
	}
	return fmt.Sprintf("<unknown opcode %#02x>", opcode)
}
