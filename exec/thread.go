package exec

import (
	"io"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
	"github.com/megos/wasmrt/wasm/trace"
)

// A Frame identifies a single WASM activation record for tracing.
type Frame struct {
	ModuleName        string
	FunctionIndex     uint32
	FunctionSignature wasm.FunctionSig
}

// A Thread carries the state of a single invocation: the call depth, the memory visible to host functions, and the
// tracer, if any.
type Thread struct {
	memory   *Memory
	trace    io.Writer
	traceErr error
	depth    int
	maxDepth int
}

// NewThread creates a new thread with the given memory and max depth. A zero maxDepth means
// DefaultMaxCallDepth.
func NewThread(memory *Memory, maxDepth int) *Thread {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	return &Thread{memory: memory, maxDepth: maxDepth}
}

// NewDebugThread creates a new thread that writes an execution trace to w.
func NewDebugThread(memory *Memory, maxDepth int, w io.Writer) *Thread {
	t := NewThread(memory, maxDepth)
	t.trace = w
	return t
}

// Memory returns the linear memory of the instance that owns the thread, if any.
func (t *Thread) Memory() *Memory {
	return t.memory
}

// Trace returns the writer for this thread's tracer, if any.
func (t *Thread) Trace() (io.Writer, bool) {
	if t.trace != nil {
		return t.trace, true
	}
	return nil, false
}

// Depth returns the number of active frames.
func (t *Thread) Depth() int {
	return t.depth
}

// MaxDepth returns the maximum call stack depth.
func (t *Thread) MaxDepth() int {
	return t.maxDepth
}

func (t *Thread) emit(e trace.Entry) {
	if t.traceErr == nil {
		t.traceErr = e.Encode(t.trace)
	}
}

// Enter pushes a new frame onto the thread's stack. Each call to Enter must be balanced with a call to Leave unless
// the thread traps.
func (t *Thread) Enter(f Frame) {
	if t.depth >= t.maxDepth {
		panic(TrapCallStackExhausted)
	}
	t.depth++

	if t.trace != nil {
		t.emit(&trace.EnterEntry{
			ModuleName:        f.ModuleName,
			FunctionIndex:     f.FunctionIndex,
			FunctionSignature: f.FunctionSignature,
		})
	}
}

// Leave pops the top of the thread's stack.
func (t *Thread) Leave() {
	t.depth--

	if t.trace != nil {
		t.emit(&trace.LeaveEntry{})
	}
}

// Instruction records the execution of an instruction.
func (t *Thread) Instruction(ip int, instr *code.Instruction, stackHeight int) {
	if t.trace != nil {
		t.emit(&trace.InstructionEntry{IP: ip, Instruction: *instr, StackHeight: stackHeight})
	}
}

// Trapped records a trap and unwinds the thread's stack.
func (t *Thread) Trapped(trap Trap, ip int) {
	t.depth = 0

	if t.trace != nil {
		t.emit(&trace.TrapEntry{Trap: string(trap), IP: ip})
	}
}

// Close closes the thread. It returns the first error encountered while writing the trace.
func (t *Thread) Close() error {
	if t.trace != nil {
		t.emit(&trace.EndEntry{})
	}
	return t.traceErr
}
