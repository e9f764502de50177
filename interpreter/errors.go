package interpreter

import (
	"errors"
	"fmt"

	"github.com/megos/wasmrt/wasm"
)

var (
	// ErrExportNotFound is returned when an instance has no export with the requested name and kind.
	ErrExportNotFound = errors.New("export not found")
	// ErrArgumentMismatch is returned when invocation arguments do not match the function's parameters.
	ErrArgumentMismatch = errors.New("argument mismatch")
	// ErrClosed is returned by operations on a closed instance.
	ErrClosed = errors.New("instance is closed")
)

// An ExportNotFoundError reports a missing export or an export of the wrong kind.
type ExportNotFoundError struct {
	FieldName string
	Kind      wasm.External
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("%v %q not found", e.Kind, e.FieldName)
}

func (e *ExportNotFoundError) Is(target error) bool {
	return target == ErrExportNotFound
}

func argumentMismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArgumentMismatch, fmt.Sprintf(format, args...))
}
