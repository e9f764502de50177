package interpreter

import (
	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
)

// A label is an entry on the control stack.
type label struct {
	cont   int // The index of the instruction to resume at when the label is targeted by a branch.
	height int // The absolute operand stack height at block entry.
	arity  int // The number of values carried by a branch to the label.
}

// An activation is an entry on the call stack.
type activation struct {
	fn     *function
	ip     int // The index of the next instruction.
	base   int // The index of the function's first local on the operand stack.
	labels int // The index of the function's own label on the control stack.
}

// A machine executes WASM code on behalf of an instance. All three stacks have a fixed capacity taken from the
// instance's configuration; calls into WASM functions never recurse on the Go stack.
//
// stack layout of an activation:
//
// params (len(fn.sig.ParamTypes))  <-- base
// locals (fn.numLocals - params)
// operands                         <-- base + fn.numLocals
type machine struct {
	inst    *Instance
	thread  *exec.Thread
	tracing bool

	stack  []uint64
	labels []label
	frames []activation

	results [1]uint64
}

func newMachine(inst *Instance) *machine {
	c := &inst.config
	return &machine{
		inst:   inst,
		stack:  make([]uint64, 0, c.MaxOperandStack),
		labels: make([]label, 0, c.MaxControlDepth),
		frames: make([]activation, 0, c.MaxCallDepth),
	}
}

func (m *machine) reset(thread *exec.Thread) {
	m.thread = thread
	_, m.tracing = thread.Trace()
	m.stack, m.labels, m.frames = m.stack[:0], m.labels[:0], m.frames[:0]
}

func (m *machine) push(v uint64) {
	m.stack = m.stack[:len(m.stack)+1]
	m.stack[len(m.stack)-1] = v
}

func (m *machine) pop() uint64 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *machine) pop2() (v2, v1 uint64) {
	v1, v2 = m.stack[len(m.stack)-2], m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-2]
	return v2, v1
}

func (m *machine) top() *activation {
	return &m.frames[len(m.frames)-1]
}

// enter pushes an activation for fn. The function's arguments must already be on the operand stack. enter traps if
// the function's worst-case operand, control, or call stack usage would not fit.
func (m *machine) enter(fn *function) {
	base := len(m.stack) - len(fn.sig.ParamTypes)
	top := base + fn.numLocals
	if top+fn.metrics.MaxStackDepth > cap(m.stack) || len(m.labels)+fn.metrics.MaxNesting > cap(m.labels) || len(m.frames) == cap(m.frames) {
		panic(exec.TrapCallStackExhausted)
	}

	m.thread.Enter(exec.Frame{
		ModuleName:        m.inst.name,
		FunctionIndex:     fn.index,
		FunctionSignature: fn.sig,
	})

	locals := m.stack[len(m.stack):top]
	for i := range locals {
		locals[i] = 0
	}
	m.stack = m.stack[:top]

	m.labels = append(m.labels, label{cont: len(fn.body) - 1, height: top, arity: len(fn.sig.ReturnTypes)})
	m.frames = append(m.frames, activation{fn: fn, base: base, labels: len(m.labels) - 1})
}

// ret pops the current activation, leaving its results where its arguments were.
func (m *machine) ret() {
	fr := m.top()

	nresults := len(fr.fn.sig.ReturnTypes)
	if len(m.stack)-nresults < fr.base+fr.fn.numLocals {
		panic(exec.TrapStackHeightMismatch)
	}
	copy(m.stack[fr.base:], m.stack[len(m.stack)-nresults:])
	m.stack = m.stack[:fr.base+nresults]
	m.labels = m.labels[:fr.labels]
	m.frames = m.frames[:len(m.frames)-1]

	m.thread.Leave()
}

// branch unwinds the control stack to the given label and continues at its continuation. A branch to the
// function's own label returns.
func (m *machine) branch(fr *activation, depth int) {
	target := len(m.labels) - 1 - depth
	if target == fr.labels {
		m.ret()
		return
	}

	l := m.labels[target]
	if len(m.stack)-l.arity < l.height {
		panic(exec.TrapStackHeightMismatch)
	}
	copy(m.stack[l.height:], m.stack[len(m.stack)-l.arity:])
	m.stack = m.stack[:l.height+l.arity]
	m.labels = m.labels[:target]
	fr.ip = l.cont
}

// end pops the innermost label, checking the operand stack height. Popping the function's own label returns.
func (m *machine) end(fr *activation) {
	l := m.labels[len(m.labels)-1]
	if len(m.stack) != l.height+l.arity {
		panic(exec.TrapStackHeightMismatch)
	}
	m.labels = m.labels[:len(m.labels)-1]
	if len(m.labels) == fr.labels {
		m.ret()
	}
}

// call calls the function with the given index in the instance's function index space.
func (m *machine) call(funcidx uint32) {
	imports := m.inst.imports
	if funcidx < uint32(len(imports)) {
		m.callImport(&imports[funcidx], funcidx)
		return
	}
	m.enter(&m.inst.functions[funcidx-uint32(len(imports))])
}

func (m *machine) callImport(f *importedFunction, funcidx uint32) {
	sig := f.GetSignature()
	nparams, nresults := len(sig.ParamTypes), len(sig.ReturnTypes)

	m.thread.Enter(exec.Frame{ModuleName: f.module, FunctionIndex: funcidx, FunctionSignature: sig})

	// Multi-value results are rejected at decode time.
	results := m.results[:nresults:nresults]
	if err := callHost(f, m.thread, m.stack[len(m.stack)-nparams:], results); err != nil {
		panic(exec.HostTrap(err))
	}

	m.thread.Leave()

	m.stack = m.stack[:len(m.stack)-nparams]
	for i, v := range results {
		if sig.ReturnTypes[i] == wasm.ValueTypeI32 {
			v = uint64(uint32(v))
		}
		m.push(v)
	}
}

// callHost runs a host function. A panic inside the host is a host fault, never a trap of the calling code.
func callHost(f exec.Function, t *exec.Thread, args, results []uint64) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = exec.HostPanic(x)
		}
	}()
	return f.UncheckedCall(t, args, results)
}

// invoke calls a function with the given arguments and runs it to completion.
func (m *machine) invoke(funcidx uint32, args []uint64) []uint64 {
	if len(args) > cap(m.stack) {
		panic(exec.TrapCallStackExhausted)
	}
	m.stack = append(m.stack, args...)

	m.call(funcidx)
	m.run(0)

	return append([]uint64(nil), m.stack...)
}

// run executes instructions until the call stack unwinds to the given depth.
func (m *machine) run(depth int) {
	for len(m.frames) > depth {
		fr := m.top()
		instr := &fr.fn.body[fr.ip]
		if m.tracing {
			m.thread.Instruction(fr.ip, instr, len(m.stack)-fr.base-fr.fn.numLocals)
		}
		fr.ip++
		m.step(fr, instr)
	}
}
