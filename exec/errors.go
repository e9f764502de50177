package exec

import (
	"errors"
	"fmt"
)

var (
	// ErrImportNotFound is returned by an ImportResolver that has no definition for an import.
	ErrImportNotFound = errors.New("import not found")
	// ErrImportTypeMismatch is returned by an ImportResolver whose definition does not match the import's type.
	ErrImportTypeMismatch = errors.New("import type mismatch")
	// ErrAllocation is returned when linear memory cannot be obtained from the allocator.
	ErrAllocation = errors.New("allocation failed")
	// ErrOutOfBoundsInit is returned when an element or data segment does not fit its table or memory.
	ErrOutOfBoundsInit = errors.New("segment out of bounds")
	// ErrOutOfBounds is returned by host memory accessors for a range outside the memory.
	ErrOutOfBounds = errors.New("out of bounds memory access")
	// ErrLimitExceeded is returned when growing memory would exceed its maximum size.
	ErrLimitExceeded = errors.New("memory limit exceeded")
)

// InstantiationErrorKind classifies instantiation failures.
type InstantiationErrorKind int

const (
	ImportNotFound InstantiationErrorKind = iota
	ImportTypeMismatch
	AllocationError
	OutOfBoundsInit
	StartTrap
)

var kindNames = [...]string{
	ImportNotFound:     "import not found",
	ImportTypeMismatch: "import type mismatch",
	AllocationError:    "allocation error",
	OutOfBoundsInit:    "out of bounds initialization",
	StartTrap:          "start function trapped",
}

var kindErrors = [...]error{
	ImportNotFound:     ErrImportNotFound,
	ImportTypeMismatch: ErrImportTypeMismatch,
	AllocationError:    ErrAllocation,
	OutOfBoundsInit:    ErrOutOfBoundsInit,
}

func (k InstantiationErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("InstantiationErrorKind(%d)", int(k))
}

// An InstantiationError reports why a module could not be instantiated. ModuleName and FieldName identify the
// offending import, if any. For StartTrap, Err is the *TrapError raised by the start function.
type InstantiationError struct {
	Kind       InstantiationErrorKind
	ModuleName string
	FieldName  string
	Err        error
}

func (e *InstantiationError) Error() string {
	msg := "wasm: instantiation failed: " + e.Kind.String()
	if e.ModuleName != "" || e.FieldName != "" {
		msg += fmt.Sprintf(" (%s.%s)", e.ModuleName, e.FieldName)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error for e's kind.
func (e *InstantiationError) Is(target error) bool {
	return int(e.Kind) < len(kindErrors) && kindErrors[e.Kind] != nil && kindErrors[e.Kind] == target
}
