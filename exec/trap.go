package exec

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// A Trap represents a WASM trap. Traps are raised inside the interpreter with panic(Trap) and surface to callers as
// *TrapError values.
type Trap string

func (t Trap) Error() string {
	return string(t)
}

// TrapUndefinedElement indicates a call_indirect through an index past the end of the table.
var TrapUndefinedElement = Trap("undefined element")

// TrapUninitializedElement indicates a call_indirect through an empty table slot.
var TrapUninitializedElement = Trap("uninitialized element")

// TrapIndirectCallTypeMismatch indicates a mismatch between the expected and actual signature of a function.
var TrapIndirectCallTypeMismatch = Trap("indirect call type mismatch")

// TrapMemoryOutOfBounds indicates an out-of-bounds memory access.
var TrapMemoryOutOfBounds = Trap("out of bounds memory access")

// TrapIntegerOverflow indicates a signed division of the minimum integer by -1.
var TrapIntegerOverflow = Trap("integer overflow")

// TrapDivideByZero indicates an attempt to divide by zero.
var TrapDivideByZero = Trap("integer divide by zero")

// TrapCallStackExhausted indicates that a call, block, or operand would exceed a configured stack bound.
var TrapCallStackExhausted = Trap("call stack exhausted")

// TrapUnreachable indicates execution of the unreachable instruction.
var TrapUnreachable = Trap("unreachable executed")

// TrapStackHeightMismatch indicates that the operand stack did not have the expected height at the end of a block or
// function. Validated code never raises it.
var TrapStackHeightMismatch = Trap("stack height mismatch")

// TrapHostFault indicates that a host function failed.
var TrapHostFault = Trap("host fault")

// A TrapError reports a trap together with where it happened. FunctionIndex and IP are -1 if the trap was not raised
// by interpreted code.
type TrapError struct {
	Trap          Trap
	FunctionIndex int
	IP            int

	// Err is the error returned by a failing host function.
	Err error
}

func (e *TrapError) Error() string {
	var b strings.Builder
	b.WriteString("wasm trap: ")
	b.WriteString(string(e.Trap))
	if e.FunctionIndex >= 0 {
		fmt.Fprintf(&b, " in function %d at %d", e.FunctionIndex, e.IP)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

func (e *TrapError) Is(target error) bool {
	t, ok := target.(Trap)
	return ok && t == e.Trap
}

// TranslateRuntimeError is a utility function that translates between Go runtime errors and
// WASM traps.
func TranslateRuntimeError(err runtime.Error) (Trap, bool) {
	switch {
	case err == nil:
		return "", false
	case strings.HasPrefix(err.Error(), "runtime error: index out of range"):
		return TrapMemoryOutOfBounds, true
	case strings.HasPrefix(err.Error(), "runtime error: slice bounds out of range"):
		return TrapMemoryOutOfBounds, true
	case strings.HasPrefix(err.Error(), "runtime error: integer divide by zero"):
		return TrapDivideByZero, true
	default:
		return "", false
	}
}

// AsTrapError converts the result of a call to recover() into a *TrapError. Values that are neither traps nor
// translatable runtime errors are re-panicked. Panics raised by host functions are converted by HostPanic before
// they get here.
func AsTrapError(x interface{}) *TrapError {
	switch x := x.(type) {
	case nil:
		return nil
	case *TrapError:
		return x
	case Trap:
		return &TrapError{Trap: x, FunctionIndex: -1, IP: -1}
	case runtime.Error:
		if trap, ok := TranslateRuntimeError(x); ok {
			return &TrapError{Trap: trap, FunctionIndex: -1, IP: -1}
		}
	}
	panic(x)
}

// HostTrap converts an error returned by a host function into a trap. An error that is itself a trap keeps its kind;
// any other error is reported as TrapHostFault.
func HostTrap(err error) *TrapError {
	var te *TrapError
	if errors.As(err, &te) {
		return te
	}
	var trap Trap
	if errors.As(err, &trap) {
		return &TrapError{Trap: trap, FunctionIndex: -1, IP: -1}
	}
	return &TrapError{Trap: TrapHostFault, FunctionIndex: -1, IP: -1, Err: err}
}

// HostPanic converts a value recovered from a panicking host function into a trap. Traps keep their kind; any other
// value, Go runtime errors included, is reported as TrapHostFault.
func HostPanic(x interface{}) *TrapError {
	switch x := x.(type) {
	case *TrapError:
		return x
	case Trap:
		return &TrapError{Trap: x, FunctionIndex: -1, IP: -1}
	case error:
		return &TrapError{Trap: TrapHostFault, FunctionIndex: -1, IP: -1, Err: x}
	default:
		return &TrapError{Trap: TrapHostFault, FunctionIndex: -1, IP: -1, Err: fmt.Errorf("panic: %v", x)}
	}
}
