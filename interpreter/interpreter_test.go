package interpreter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/host"
	"github.com/megos/wasmrt/metrics"
	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
	"github.com/megos/wasmrt/wasm/trace"
)

var (
	vi32 = exec.ValueI32
	vi64 = exec.ValueI64
)

func trapOf(t *testing.T, err error) *exec.TrapError {
	var te *exec.TrapError
	require.True(t, errors.As(err, &te), "expected a trap, got %v", err)
	return te
}

func TestNumericInstructions(t *testing.T) {
	cases := []struct {
		op     byte
		params []wasm.ValueType
		result wasm.ValueType
		args   []exec.Value
		want   exec.Value
	}{
		{code.OpI32Add, types(i32, i32), i32, []exec.Value{vi32(math.MaxInt32), vi32(1)}, vi32(math.MinInt32)},
		{code.OpI32Sub, types(i32, i32), i32, []exec.Value{vi32(0), vi32(1)}, vi32(-1)},
		{code.OpI32Mul, types(i32, i32), i32, []exec.Value{vi32(0x10000), vi32(0x10000)}, vi32(0)},
		{code.OpI32DivS, types(i32, i32), i32, []exec.Value{vi32(-7), vi32(2)}, vi32(-3)},
		{code.OpI32DivU, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(2)}, vi32(math.MaxInt32)},
		{code.OpI32RemS, types(i32, i32), i32, []exec.Value{vi32(-7), vi32(2)}, vi32(-1)},
		{code.OpI32RemS, types(i32, i32), i32, []exec.Value{vi32(math.MinInt32), vi32(-1)}, vi32(0)},
		{code.OpI32RemU, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(10)}, vi32(5)},
		{code.OpI32And, types(i32, i32), i32, []exec.Value{vi32(0xff0), vi32(0x0ff)}, vi32(0x0f0)},
		{code.OpI32Or, types(i32, i32), i32, []exec.Value{vi32(0xf00), vi32(0x00f)}, vi32(0xf0f)},
		{code.OpI32Xor, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(1)}, vi32(-2)},
		{code.OpI32Shl, types(i32, i32), i32, []exec.Value{vi32(1), vi32(33)}, vi32(2)},
		{code.OpI32ShrS, types(i32, i32), i32, []exec.Value{vi32(-8), vi32(1)}, vi32(-4)},
		{code.OpI32ShrU, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(28)}, vi32(15)},
		{code.OpI32Rotl, types(i32, i32), i32, []exec.Value{vi32(math.MinInt32 + 1), vi32(1)}, vi32(3)},
		{code.OpI32Rotr, types(i32, i32), i32, []exec.Value{vi32(1), vi32(1)}, vi32(math.MinInt32)},
		{code.OpI32Eq, types(i32, i32), i32, []exec.Value{vi32(3), vi32(3)}, vi32(1)},
		{code.OpI32Ne, types(i32, i32), i32, []exec.Value{vi32(3), vi32(3)}, vi32(0)},
		{code.OpI32LtS, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(0)}, vi32(1)},
		{code.OpI32LtU, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(0)}, vi32(0)},
		{code.OpI32GeU, types(i32, i32), i32, []exec.Value{vi32(-1), vi32(0)}, vi32(1)},
		{code.OpI32Clz, types(i32), i32, []exec.Value{vi32(1)}, vi32(31)},
		{code.OpI32Clz, types(i32), i32, []exec.Value{vi32(0)}, vi32(32)},
		{code.OpI32Ctz, types(i32), i32, []exec.Value{vi32(math.MinInt32)}, vi32(31)},
		{code.OpI32Popcnt, types(i32), i32, []exec.Value{vi32(-1)}, vi32(32)},
		{code.OpI32Eqz, types(i32), i32, []exec.Value{vi32(0)}, vi32(1)},
		{code.OpI32Extend8S, types(i32), i32, []exec.Value{vi32(0x80)}, vi32(-128)},
		{code.OpI32Extend16S, types(i32), i32, []exec.Value{vi32(0x8000)}, vi32(-32768)},

		{code.OpI64Add, types(i64, i64), i64, []exec.Value{vi64(math.MaxInt64), vi64(1)}, vi64(math.MinInt64)},
		{code.OpI64Mul, types(i64, i64), i64, []exec.Value{vi64(1 << 32), vi64(1 << 32)}, vi64(0)},
		{code.OpI64DivS, types(i64, i64), i64, []exec.Value{vi64(-9), vi64(4)}, vi64(-2)},
		{code.OpI64DivU, types(i64, i64), i64, []exec.Value{vi64(-1), vi64(1 << 62)}, vi64(3)},
		{code.OpI64RemS, types(i64, i64), i64, []exec.Value{vi64(math.MinInt64), vi64(-1)}, vi64(0)},
		{code.OpI64Shl, types(i64, i64), i64, []exec.Value{vi64(1), vi64(65)}, vi64(2)},
		{code.OpI64ShrS, types(i64, i64), i64, []exec.Value{vi64(math.MinInt64), vi64(63)}, vi64(-1)},
		{code.OpI64Rotl, types(i64, i64), i64, []exec.Value{vi64(math.MinInt64), vi64(1)}, vi64(1)},
		{code.OpI64LtU, types(i64, i64), i32, []exec.Value{vi64(1), vi64(-1)}, vi32(1)},
		{code.OpI64Clz, types(i64), i64, []exec.Value{vi64(1)}, vi64(63)},
		{code.OpI64Ctz, types(i64), i64, []exec.Value{vi64(0)}, vi64(64)},
		{code.OpI64Popcnt, types(i64), i64, []exec.Value{vi64(-1)}, vi64(64)},
		{code.OpI64Eqz, types(i64), i32, []exec.Value{vi64(1 << 40)}, vi32(0)},
		{code.OpI64Extend32S, types(i64), i64, []exec.Value{vi64(0x80000000)}, vi64(math.MinInt32)},

		{code.OpI32WrapI64, types(i64), i32, []exec.Value{vi64(0x100000005)}, vi32(5)},
		{code.OpI64ExtendI32S, types(i32), i64, []exec.Value{vi32(-1)}, vi64(-1)},
		{code.OpI64ExtendI32U, types(i32), i64, []exec.Value{vi32(-1)}, vi64(math.MaxUint32)},
	}

	b := newModule(t)
	for i, c := range cases {
		var body []code.Instruction
		for j := range c.params {
			body = append(body, code.LocalGet(uint32(j)))
		}
		body = append(body, op(c.op), code.End())
		b.function(fmt.Sprintf("case%d", i), c.params, types(c.result), nil, body...)
	}
	inst := b.mustInstantiate(host.NewBindings())

	for i, c := range cases {
		t.Run(fmt.Sprintf("%s/%d", code.OpName(c.op), i), func(t *testing.T) {
			got := invoke1(t, inst, fmt.Sprintf("case%d", i), c.args...)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestArithmeticTraps(t *testing.T) {
	b := newModule(t)
	div := b.function("div", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI32DivS), code.End())
	b.function("div64", types(i64, i64), types(i64), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI64DivU), code.End())
	b.function("rem", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI32RemU), code.End())
	inst := b.mustInstantiate(host.NewBindings())

	_, err := inst.Invoke("div", vi32(1), vi32(0))
	assert.True(t, errors.Is(err, exec.TrapDivideByZero))
	te := trapOf(t, err)
	assert.Equal(t, int(div), te.FunctionIndex)
	assert.Equal(t, 2, te.IP)

	_, err = inst.Invoke("div", vi32(math.MinInt32), vi32(-1))
	assert.True(t, errors.Is(err, exec.TrapIntegerOverflow))

	_, err = inst.Invoke("div64", vi64(1), vi64(0))
	assert.True(t, errors.Is(err, exec.TrapDivideByZero))

	_, err = inst.Invoke("rem", vi32(1), vi32(0))
	assert.True(t, errors.Is(err, exec.TrapDivideByZero))

	// The instance stays usable after a trap.
	assert.Equal(t, vi32(-2), invoke1(t, inst, "div", vi32(-4), vi32(2)))
}

func TestUnreachable(t *testing.T) {
	b := newModule(t)
	b.function("boom", nil, types(i32), nil, code.Nop(), code.Unreachable(), code.End())
	inst := b.mustInstantiate(host.NewBindings())

	_, err := inst.Invoke("boom")
	assert.True(t, errors.Is(err, exec.TrapUnreachable))
	assert.Equal(t, 1, trapOf(t, err).IP)
}

func TestControlFlow(t *testing.T) {
	b := newModule(t)

	b.function("br", nil, types(i32), nil,
		code.Block(code.BlockTypeI32),
		code.I32Const(1),
		code.Br(0),
		code.I32Const(2),
		code.End(),
		code.End())

	b.function("count", nil, types(i32), types(i32),
		code.Block(),
		code.Loop(),
		code.LocalGet(0), code.I32Const(1), op(code.OpI32Add), code.LocalTee(0),
		code.I32Const(10), op(code.OpI32LtS),
		code.BrIf(0),
		code.End(),
		code.End(),
		code.LocalGet(0),
		code.End())

	b.function("ifelse", types(i32), types(i32), nil,
		code.LocalGet(0),
		code.If(code.BlockTypeI32),
		code.I32Const(10),
		code.Else(),
		code.I32Const(20),
		code.End(),
		code.End())

	b.function("if", types(i32), types(i32), types(i32),
		code.LocalGet(0),
		code.If(),
		code.I32Const(7),
		code.LocalSet(1),
		code.End(),
		code.LocalGet(1),
		code.End())

	b.function("brtable", types(i32), types(i32), nil,
		code.Block(),
		code.Block(),
		code.Block(),
		code.LocalGet(0),
		code.BrTable(0, 1, 2),
		code.End(),
		code.I32Const(10),
		code.Return(),
		code.End(),
		code.I32Const(20),
		code.Return(),
		code.End(),
		code.I32Const(30),
		code.End())

	b.function("brif", types(i32), types(i32), nil,
		code.Block(code.BlockTypeI32),
		code.I32Const(100),
		code.LocalGet(0),
		code.BrIf(0),
		code.Drop(),
		code.I32Const(200),
		code.End(),
		code.End())

	b.function("select", types(i32, i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), code.LocalGet(2), code.Select(), code.End())

	b.function("nested", types(i32), types(i64), nil,
		code.Block(code.BlockTypeI64),
		code.Block(),
		code.I64Const(5),
		code.LocalGet(0),
		code.BrIf(1),
		code.Drop(),
		code.End(),
		code.I64Const(6),
		code.End(),
		code.End())

	inst := b.mustInstantiate(host.NewBindings())

	assert.Equal(t, vi32(1), invoke1(t, inst, "br"))
	assert.Equal(t, vi32(10), invoke1(t, inst, "count"))
	assert.Equal(t, vi32(10), invoke1(t, inst, "ifelse", vi32(1)))
	assert.Equal(t, vi32(20), invoke1(t, inst, "ifelse", vi32(0)))
	assert.Equal(t, vi32(7), invoke1(t, inst, "if", vi32(-1)))
	assert.Equal(t, vi32(0), invoke1(t, inst, "if", vi32(0)))
	assert.Equal(t, vi32(10), invoke1(t, inst, "brtable", vi32(0)))
	assert.Equal(t, vi32(20), invoke1(t, inst, "brtable", vi32(1)))
	assert.Equal(t, vi32(30), invoke1(t, inst, "brtable", vi32(2)))
	assert.Equal(t, vi32(30), invoke1(t, inst, "brtable", vi32(-1)))
	assert.Equal(t, vi32(100), invoke1(t, inst, "brif", vi32(1)))
	assert.Equal(t, vi32(200), invoke1(t, inst, "brif", vi32(0)))
	assert.Equal(t, vi32(1), invoke1(t, inst, "select", vi32(1), vi32(2), vi32(3)))
	assert.Equal(t, vi32(2), invoke1(t, inst, "select", vi32(1), vi32(2), vi32(0)))
	assert.Equal(t, vi64(5), invoke1(t, inst, "nested", vi32(1)))
	assert.Equal(t, vi64(6), invoke1(t, inst, "nested", vi32(0)))
}

func TestMemoryInstructions(t *testing.T) {
	b := newModule(t)
	b.memory(1, 2)
	b.data(16, []byte{0xff, 0xff, 0xff, 0xff, 0x2a})

	b.function("load", types(i32), types(i32), nil,
		code.LocalGet(0), code.Mem(code.OpI32Load, 0), code.End())
	b.function("loadOffset", types(i32), types(i32), nil,
		code.LocalGet(0), code.Mem(code.OpI32Load, 4), code.End())
	b.function("store", types(i32, i64), nil, nil,
		code.LocalGet(0), code.LocalGet(1), code.Mem(code.OpI64Store, 0), code.End())
	b.function("load8s", types(i32), types(i32), nil,
		code.LocalGet(0), code.Mem(code.OpI32Load8S, 0), code.End())
	b.function("load8u", types(i32), types(i32), nil,
		code.LocalGet(0), code.Mem(code.OpI32Load8U, 0), code.End())
	b.function("load32u", types(i32), types(i64), nil,
		code.LocalGet(0), code.Mem(code.OpI64Load32U, 0), code.End())
	b.function("load16s", types(i32), types(i64), nil,
		code.LocalGet(0), code.Mem(code.OpI64Load16S, 0), code.End())
	b.function("size", nil, types(i32), nil, code.MemorySize(), code.End())
	b.function("grow", types(i32), types(i32), nil, code.LocalGet(0), code.MemoryGrow(), code.End())

	r := prometheus.NewRegistry()
	m, err := metrics.New(r)
	require.NoError(t, err)
	inst := b.mustInstantiate(host.NewBindings(), exec.WithMetrics(m))

	t.Run("bounds", func(t *testing.T) {
		_, err := inst.Invoke("load", vi32(65532))
		assert.NoError(t, err)

		for _, addr := range []int32{65533, 65536, -1} {
			_, err := inst.Invoke("load", vi32(addr))
			assert.True(t, errors.Is(err, exec.TrapMemoryOutOfBounds), "address %d", addr)
		}

		_, err = inst.Invoke("loadOffset", vi32(65528))
		assert.NoError(t, err)
		_, err = inst.Invoke("loadOffset", vi32(65532))
		assert.True(t, errors.Is(err, exec.TrapMemoryOutOfBounds))
	})

	t.Run("data", func(t *testing.T) {
		assert.Equal(t, vi32(-1), invoke1(t, inst, "load8s", vi32(16)))
		assert.Equal(t, vi32(255), invoke1(t, inst, "load8u", vi32(16)))
		assert.Equal(t, vi64(math.MaxUint32), invoke1(t, inst, "load32u", vi32(16)))
		assert.Equal(t, vi64(-1), invoke1(t, inst, "load16s", vi32(16)))
		assert.Equal(t, vi32(0x2a), invoke1(t, inst, "load8u", vi32(20)))

		bytes, err := inst.ReadMemory(16, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0x2a}, bytes)
	})

	t.Run("store", func(t *testing.T) {
		_, err := inst.Invoke("store", vi32(100), vi64(0x0102030405060708))
		require.NoError(t, err)

		bytes, err := inst.ReadMemory(100, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, bytes)

		require.NoError(t, inst.WriteMemory(200, []byte{0x2a, 0, 0, 0}))
		assert.Equal(t, vi32(42), invoke1(t, inst, "load", vi32(200)))

		_, err = inst.Invoke("store", vi32(65530), vi64(1))
		assert.True(t, errors.Is(err, exec.TrapMemoryOutOfBounds))

		assert.ErrorIs(t, inst.WriteMemory(65535, []byte{1, 2}), exec.ErrOutOfBounds)
		_, err = inst.ReadMemory(65536, 1)
		assert.ErrorIs(t, err, exec.ErrOutOfBounds)
	})

	t.Run("grow", func(t *testing.T) {
		assert.Equal(t, vi32(1), invoke1(t, inst, "size"))
		assert.Equal(t, vi32(1), invoke1(t, inst, "grow", vi32(1)))
		assert.Equal(t, vi32(2), invoke1(t, inst, "size"))
		assert.Equal(t, vi32(-1), invoke1(t, inst, "grow", vi32(1)))
		assert.Equal(t, vi32(2), invoke1(t, inst, "grow", vi32(0)))

		// The new page is addressable and zeroed.
		assert.Equal(t, vi32(0), invoke1(t, inst, "load", vi32(2*65536-4)))
		assert.Equal(t, uint32(2), inst.Memory().Size())

		families, err := r.Gather()
		require.NoError(t, err)
		grows := 0.0
		for _, mf := range families {
			if mf.GetName() == "wasmrt_memory_grow_total" {
				for _, m := range mf.GetMetric() {
					grows += m.GetCounter().GetValue()
				}
			}
		}
		assert.Equal(t, 3.0, grows)
	})
}

func TestMemoryPageCap(t *testing.T) {
	b := newModule(t)
	b.memory(1, 0)
	b.function("grow", types(i32), types(i32), nil, code.LocalGet(0), code.MemoryGrow(), code.End())

	inst := b.mustInstantiate(host.NewBindings(), exec.WithMaxMemoryPages(3))
	assert.Equal(t, vi32(1), invoke1(t, inst, "grow", vi32(2)))
	assert.Equal(t, vi32(-1), invoke1(t, inst, "grow", vi32(1)))

	b = newModule(t)
	b.memory(4, 0)
	_, err := b.instantiate(host.NewBindings(), exec.WithMaxMemoryPages(3))
	assert.ErrorIs(t, err, exec.ErrAllocation)
}

func TestCallIndirect(t *testing.T) {
	b := newModule(t)
	b.global(wasm.GlobalVar{Type: i32, Mutable: true}, wasm.ConstI32Expr(0), "counter")

	bump := []code.Instruction{
		code.GlobalGet(0), code.I32Const(1), op(code.OpI32Add), code.GlobalSet(0),
	}
	callee := b.function("", nil, types(i32), nil, append(bump, code.I32Const(42), code.End())...)
	other := b.function("", types(i32), types(i32), nil, append(bump, code.LocalGet(0), code.End())...)
	b.function("dispatch", types(i32), types(i32), nil,
		code.LocalGet(0), code.CallIndirect(b.typeIndex(nil, types(i32))), code.End())
	b.table(4, 0, callee, other)

	inst := b.mustInstantiate(host.NewBindings())
	counter, err := inst.Global("counter")
	require.NoError(t, err)

	assert.Equal(t, vi32(42), invoke1(t, inst, "dispatch", vi32(0)))
	assert.Equal(t, int32(1), counter.GetI32())

	_, err = inst.Invoke("dispatch", vi32(1))
	assert.True(t, errors.Is(err, exec.TrapIndirectCallTypeMismatch))
	assert.Equal(t, int32(1), counter.GetI32(), "the callee must not run")

	_, err = inst.Invoke("dispatch", vi32(2))
	assert.True(t, errors.Is(err, exec.TrapUninitializedElement))

	_, err = inst.Invoke("dispatch", vi32(4))
	assert.True(t, errors.Is(err, exec.TrapUndefinedElement))

	_, err = inst.Invoke("dispatch", vi32(-1))
	assert.True(t, errors.Is(err, exec.TrapUndefinedElement))

	assert.Equal(t, int32(1), counter.GetI32())
}

func recursiveModule(t *testing.T) *moduleBuilder {
	b := newModule(t)

	// fac(n) = n == 0 ? 1 : n * fac(n-1)
	b.function("fac", types(i64), types(i64), nil,
		code.LocalGet(0),
		op(code.OpI64Eqz),
		code.If(code.BlockTypeI64),
		code.I64Const(1),
		code.Else(),
		code.LocalGet(0),
		code.LocalGet(0), code.I64Const(1), op(code.OpI64Sub),
		code.Call(0),
		op(code.OpI64Mul),
		code.End(),
		code.End())

	// down(n) recurses n times.
	b.function("down", types(i32), types(i32), nil,
		code.LocalGet(0),
		op(code.OpI32Eqz),
		code.If(code.BlockTypeI32),
		code.I32Const(0),
		code.Else(),
		code.LocalGet(0), code.I32Const(1), op(code.OpI32Sub),
		code.Call(1),
		code.End(),
		code.End())

	b.function("forever", nil, nil, nil, code.Call(2), code.End())
	return b
}

func TestRecursion(t *testing.T) {
	inst := recursiveModule(t).mustInstantiate(host.NewBindings())

	assert.Equal(t, vi64(1), invoke1(t, inst, "fac", vi64(0)))
	assert.Equal(t, vi64(2432902008176640000), invoke1(t, inst, "fac", vi64(20)))
	assert.Equal(t, vi32(0), invoke1(t, inst, "down", vi32(1000)))

	_, err := inst.Invoke("forever")
	assert.True(t, errors.Is(err, exec.TrapCallStackExhausted))
}

func TestCallDepthLimit(t *testing.T) {
	inst := recursiveModule(t).mustInstantiate(host.NewBindings(), exec.WithMaxCallDepth(100))

	assert.Equal(t, vi32(0), invoke1(t, inst, "down", vi32(50)))

	_, err := inst.Invoke("down", vi32(200))
	assert.True(t, errors.Is(err, exec.TrapCallStackExhausted))
	assert.Equal(t, 1, trapOf(t, err).FunctionIndex)

	// The machine is reset between invocations.
	assert.Equal(t, vi32(0), invoke1(t, inst, "down", vi32(99)))
}

func TestOperandStackLimit(t *testing.T) {
	inst := recursiveModule(t).mustInstantiate(host.NewBindings(), exec.WithMaxOperandStack(64))

	_, err := inst.Invoke("down", vi32(1000))
	assert.True(t, errors.Is(err, exec.TrapCallStackExhausted))
	assert.Equal(t, vi32(0), invoke1(t, inst, "down", vi32(3)))
}

func TestImports(t *testing.T) {
	bindings := host.NewBindings()
	bindings.DefineFunction("env", "add", wasm.FunctionSig{ParamTypes: types(i32, i32), ReturnTypes: types(i32)},
		func(_ *exec.Thread, args, results []uint64) error {
			results[0] = uint64(int32(args[0]) + int32(args[1]))
			return nil
		})
	errBoom := errors.New("boom")
	bindings.DefineFunction("env", "fail", wasm.FunctionSig{}, func(*exec.Thread, []uint64, []uint64) error {
		return errBoom
	})
	bindings.DefineFunction("env", "peek", wasm.FunctionSig{ParamTypes: types(i32), ReturnTypes: types(i32)},
		func(t *exec.Thread, args, results []uint64) error {
			results[0] = uint64(t.Memory().Uint32(uint32(args[0]), 0))
			return nil
		})
	base := exec.NewGlobalI32(true, 100)
	bindings.DefineGlobal("env", "base", &base)

	b := newModule(t)
	add := b.importFunction("env", "add", types(i32, i32), types(i32))
	fail := b.importFunction("env", "fail", nil, nil)
	peek := b.importFunction("env", "peek", types(i32), types(i32))
	b.importGlobal("env", "base", wasm.GlobalVar{Type: i32})
	b.global(wasm.GlobalVar{Type: i32}, wasm.GlobalGetExpr(0), "copy")
	b.memory(1, 0)
	b.data(8, []byte{0x2a, 0, 0, 0})

	b.function("add", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), code.Call(add), code.GlobalGet(0), op(code.OpI32Add), code.End())
	b.function("fail", nil, nil, nil, code.Call(fail), code.End())
	b.function("peek", types(i32), types(i32), nil, code.LocalGet(0), code.Call(peek), code.End())

	inst := b.mustInstantiate(bindings)

	assert.Equal(t, vi32(-1+100), invoke1(t, inst, "add", vi32(-3), vi32(2)))
	assert.Equal(t, vi32(42), invoke1(t, inst, "peek", vi32(8)))

	copied, err := inst.Global("copy")
	require.NoError(t, err)
	assert.Equal(t, int32(100), copied.GetI32())

	_, err = inst.Invoke("fail")
	assert.True(t, errors.Is(err, exec.TrapHostFault))
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, 0, trapOf(t, err).IP)

	_, err = inst.Invoke("peek", vi32(65535))
	assert.True(t, errors.Is(err, exec.TrapMemoryOutOfBounds))
}

func TestHostPanics(t *testing.T) {
	bindings := host.NewBindings()
	bindings.DefineFunction("env", "index", wasm.FunctionSig{ParamTypes: types(i32)},
		func(_ *exec.Thread, args, _ []uint64) error {
			var s []int
			_ = s[args[0]]
			return nil
		})
	bindings.DefineFunction("env", "halt", wasm.FunctionSig{}, func(*exec.Thread, []uint64, []uint64) error {
		panic(exec.TrapUnreachable)
	})

	b := newModule(t)
	index := b.importFunction("env", "index", types(i32), nil)
	halt := b.importFunction("env", "halt", nil, nil)
	b.function("index", types(i32), nil, nil, code.LocalGet(0), code.Call(index), code.End())
	b.function("halt", nil, nil, nil, code.Nop(), code.Call(halt), code.End())

	inst := b.mustInstantiate(bindings)

	_, err := inst.Invoke("index", vi32(3))
	assert.True(t, errors.Is(err, exec.TrapHostFault))
	assert.False(t, errors.Is(err, exec.TrapMemoryOutOfBounds))
	te := trapOf(t, err)
	var runtimeErr runtime.Error
	assert.True(t, errors.As(te.Err, &runtimeErr))
	assert.Equal(t, 2, te.FunctionIndex)
	assert.Equal(t, 1, te.IP)

	_, err = inst.Invoke("halt")
	assert.True(t, errors.Is(err, exec.TrapUnreachable))
	assert.Equal(t, 1, trapOf(t, err).IP)

	// The instance stays usable after a host panic.
	_, err = inst.Invoke("index", vi32(0))
	assert.True(t, errors.Is(err, exec.TrapHostFault))
}

func TestHostReentry(t *testing.T) {
	var inst *Instance
	bindings := host.NewBindings()
	bindings.DefineFunction("env", "twice", wasm.FunctionSig{ParamTypes: types(i32), ReturnTypes: types(i32)},
		func(_ *exec.Thread, args, results []uint64) error {
			r, err := inst.Invoke("double", exec.ValueI32(int32(args[0])))
			if err != nil {
				return err
			}
			results[0] = r[0].Bits()
			return nil
		})

	b := newModule(t)
	twice := b.importFunction("env", "twice", types(i32), types(i32))
	b.function("double", types(i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(0), op(code.OpI32Add), code.End())
	b.function("quad", types(i32), types(i32), nil,
		code.LocalGet(0), code.Call(twice), code.Call(twice), code.End())

	inst = b.mustInstantiate(bindings)
	assert.Equal(t, vi32(12), invoke1(t, inst, "quad", vi32(3)))
}

func TestSystemCalls(t *testing.T) {
	var stdout bytes.Buffer
	bindings := host.NewBindings()
	host.NewSVC(host.SVCConfig{Stdout: &stdout}).Bind(bindings)

	b := newModule(t)
	svc2 := b.importFunction(host.SVCModule, "svc2", types(i32, i32, i32), types(i32))
	svc1 := b.importFunction(host.SVCModule, "svc1", types(i32, i32), types(i32))
	b.memory(1, 0)
	b.data(0, []byte("hello\n"))
	b.function("main", nil, types(i32), nil,
		code.I32Const(host.SVCPrintString), code.I32Const(0), code.I32Const(6), code.Call(svc2), code.Drop(),
		code.I32Const(host.SVCExit), code.I32Const(3), code.Call(svc1),
		code.End())

	inst := b.mustInstantiate(bindings)
	_, err := inst.Invoke("main")

	var exit *host.ExitError
	require.True(t, errors.As(err, &exit), "got %v", err)
	assert.Equal(t, int32(3), exit.Code)
	assert.Equal(t, "hello\n", stdout.String())
}

func TestInstantiationErrors(t *testing.T) {
	t.Run("missing import", func(t *testing.T) {
		b := newModule(t)
		b.importFunction("env", "missing", nil, nil)
		_, err := b.instantiate(host.NewBindings())

		var ie *exec.InstantiationError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, exec.ImportNotFound, ie.Kind)
		assert.Equal(t, "env", ie.ModuleName)
		assert.Equal(t, "missing", ie.FieldName)
		assert.ErrorIs(t, err, exec.ErrImportNotFound)
	})

	t.Run("signature mismatch", func(t *testing.T) {
		bindings := host.NewBindings()
		bindings.DefineFunction("env", "f", wasm.FunctionSig{ParamTypes: types(i32)}, func(*exec.Thread, []uint64, []uint64) error {
			return nil
		})
		b := newModule(t)
		b.importFunction("env", "f", types(i64), nil)
		_, err := b.instantiate(bindings)
		assert.ErrorIs(t, err, exec.ErrImportTypeMismatch)
	})

	t.Run("global mismatch", func(t *testing.T) {
		bindings := host.NewBindings()
		g := exec.NewGlobalI64(true, 1)
		bindings.DefineGlobal("env", "g", &g)
		b := newModule(t)
		b.importGlobal("env", "g", wasm.GlobalVar{Type: i32})
		_, err := b.instantiate(bindings)
		assert.ErrorIs(t, err, exec.ErrImportTypeMismatch)
	})

	t.Run("data out of bounds", func(t *testing.T) {
		budget := exec.NewBudgetAllocator(exec.HeapAllocator{}, 4)
		b := newModule(t)
		b.memory(1, 0)
		b.data(65535, []byte{1, 2})
		_, err := b.instantiate(host.NewBindings(), exec.WithAllocator(budget))
		assert.ErrorIs(t, err, exec.ErrOutOfBoundsInit)
		assert.Equal(t, uint32(0), budget.Used())
	})

	t.Run("elements out of bounds", func(t *testing.T) {
		mem, err := exec.NewMemory(wasm.ResizableLimits{Initial: 1}, nil, 0)
		require.NoError(t, err)
		defer mem.Free()

		bindings := host.NewBindings()
		bindings.DefineMemory("env", "mem", mem)

		b := newModule(t)
		b.importMemory("env", "mem", 1)
		f := b.function("", nil, nil, nil, code.End())
		b.data(0, []byte("hello"))
		b.table(1, 0, f, f)

		_, err = b.instantiate(bindings)
		assert.ErrorIs(t, err, exec.ErrOutOfBoundsInit)

		// Nothing was written and the memory was released.
		assert.Equal(t, make([]byte, 5), mem.Bytes()[:5])
		assert.True(t, mem.Attach())
		mem.Detach()
	})

	t.Run("memory too large", func(t *testing.T) {
		budget := exec.NewBudgetAllocator(exec.HeapAllocator{}, 2)
		b := newModule(t)
		b.memory(3, 0)
		_, err := b.instantiate(host.NewBindings(), exec.WithAllocator(budget))
		assert.ErrorIs(t, err, exec.ErrAllocation)
	})

	t.Run("shared memory", func(t *testing.T) {
		mem, err := exec.NewMemory(wasm.ResizableLimits{Initial: 1}, nil, 0)
		require.NoError(t, err)
		defer mem.Free()

		bindings := host.NewBindings()
		bindings.DefineMemory("env", "mem", mem)

		b := newModule(t)
		b.importMemory("env", "mem", 1)
		first := b.mustInstantiate(bindings)

		_, err = b.instantiate(bindings)
		assert.ErrorIs(t, err, exec.ErrImportTypeMismatch)

		require.NoError(t, first.Close())
		second, err := b.instantiate(bindings)
		require.NoError(t, err)
		second.Close()
	})
}

func TestStart(t *testing.T) {
	t.Run("runs", func(t *testing.T) {
		b := newModule(t)
		b.global(wasm.GlobalVar{Type: i32, Mutable: true}, wasm.ConstI32Expr(0), "ready")
		start := b.function("", nil, nil, nil, code.I32Const(1), code.GlobalSet(0), code.End())
		b.start(start)

		inst := b.mustInstantiate(host.NewBindings())
		ready, err := inst.Global("ready")
		require.NoError(t, err)
		assert.Equal(t, int32(1), ready.GetI32())
	})

	t.Run("traps", func(t *testing.T) {
		budget := exec.NewBudgetAllocator(exec.HeapAllocator{}, 4)
		b := newModule(t)
		b.memory(1, 0)
		start := b.function("", nil, nil, nil, code.Unreachable(), code.End())
		b.start(start)

		r := prometheus.NewRegistry()
		m, err := metrics.New(r)
		require.NoError(t, err)

		_, err = b.instantiate(host.NewBindings(), exec.WithAllocator(budget), exec.WithMetrics(m))
		var ie *exec.InstantiationError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, exec.StartTrap, ie.Kind)
		assert.True(t, errors.Is(err, exec.TrapUnreachable))
		assert.Equal(t, uint32(0), budget.Used())
	})
}

func TestInvokeErrors(t *testing.T) {
	b := newModule(t)
	b.memory(1, 0)
	b.global(wasm.GlobalVar{Type: i64}, wasm.ConstI64Expr(7), "seven")
	b.function("add", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI32Add), code.End())
	inst := b.mustInstantiate(host.NewBindings())

	_, err := inst.Invoke("nope")
	assert.ErrorIs(t, err, ErrExportNotFound)
	_, err = inst.Invoke("memory")
	assert.ErrorIs(t, err, ErrExportNotFound)
	_, err = inst.Invoke("add", vi32(1))
	assert.ErrorIs(t, err, ErrArgumentMismatch)
	_, err = inst.Invoke("add", vi32(1), vi64(2))
	assert.ErrorIs(t, err, ErrArgumentMismatch)

	sig, err := inst.FunctionType("add")
	require.NoError(t, err)
	assert.Equal(t, types(i32, i32), sig.ParamTypes)

	seven, err := inst.Global("seven")
	require.NoError(t, err)
	assert.Equal(t, int64(7), seven.GetI64())
	_, err = inst.Global("add")
	assert.ErrorIs(t, err, ErrExportNotFound)

	require.NoError(t, inst.Close())
	_, err = inst.Invoke("add", vi32(1), vi32(2))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, inst.Close(), ErrClosed)
}

func TestTrace(t *testing.T) {
	b := newModule(t)
	b.function("add", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI32Add), code.End())
	b.function("div", types(i32, i32), types(i32), nil,
		code.LocalGet(0), code.LocalGet(1), op(code.OpI32DivU), code.End())

	var buf bytes.Buffer
	inst := b.mustInstantiate(host.NewBindings(), exec.WithTrace(&buf))

	assert.Equal(t, vi32(5), invoke1(t, inst, "add", vi32(2), vi32(3)))
	entries, err := trace.Decode(&buf)
	require.NoError(t, err)

	require.Len(t, entries, 7)
	enter, ok := entries[0].(*trace.EnterEntry)
	require.True(t, ok)
	assert.Equal(t, uint32(0), enter.FunctionIndex)

	var heights []int
	for _, e := range entries[1:5] {
		instr, ok := e.(*trace.InstructionEntry)
		require.True(t, ok)
		heights = append(heights, instr.StackHeight)
	}
	assert.Equal(t, []int{0, 1, 2, 1}, heights)
	assert.IsType(t, &trace.LeaveEntry{}, entries[5])
	assert.IsType(t, &trace.EndEntry{}, entries[6])

	buf.Reset()
	_, err = inst.Invoke("div", vi32(1), vi32(0))
	require.Error(t, err)
	entries, err = trace.Decode(&buf)
	require.NoError(t, err)

	trap, ok := entries[len(entries)-2].(*trace.TrapEntry)
	require.True(t, ok)
	assert.Equal(t, string(exec.TrapDivideByZero), trap.Trap)
	assert.Equal(t, 2, trap.IP)
}
