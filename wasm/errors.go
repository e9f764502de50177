package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm/leb128"
)

// DecodeErrorKind identifies the class of a decoding failure. A DecodeErrorKind is itself an error so that callers
// can test for a kind with errors.Is.
type DecodeErrorKind string

const (
	BadMagic           DecodeErrorKind = "bad magic"
	UnsupportedVersion DecodeErrorKind = "unsupported version"
	Truncated          DecodeErrorKind = "truncated"
	MalformedInteger   DecodeErrorKind = "malformed integer"
	UnknownOpcode      DecodeErrorKind = "unknown opcode"
	UnsupportedFeature DecodeErrorKind = "unsupported feature"
	SectionOrder       DecodeErrorKind = "section order"
	InvalidSection     DecodeErrorKind = "invalid section"
	InvalidValueType   DecodeErrorKind = "invalid value type"
	Invalid            DecodeErrorKind = "invalid module"
)

func (k DecodeErrorKind) Error() string {
	return string(k)
}

// DecodeError describes a malformed or unsupported module binary.
type DecodeError struct {
	// Offset is the byte offset within the module binary at which the violation was detected. A negative offset
	// means the position is not known.
	Offset int64
	Kind   DecodeErrorKind
	// Opcode names the offending opcode or type, if any.
	Opcode string
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := string(e.Kind)
	if e.Opcode != "" {
		msg += " " + e.Opcode
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("wasm: offset %#x: %s", e.Offset, msg)
	}
	return "wasm: " + msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	k, ok := target.(DecodeErrorKind)
	return ok && k == e.Kind
}

// NewDecodeError returns a DecodeError of the given kind at the given offset.
func NewDecodeError(offset int64, kind DecodeErrorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Offset: offset, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// UnsupportedError returns an UnsupportedFeature error naming the offending opcode or type.
func UnsupportedError(offset int64, what, feature string) *DecodeError {
	return &DecodeError{Offset: offset, Kind: UnsupportedFeature, Opcode: what, Detail: feature}
}

type positioner interface {
	Offset() int64
}

// offsetOf returns the current position of r, or -1 if r does not track its position.
func offsetOf(r io.Reader) int64 {
	if p, ok := r.(positioner); ok {
		return p.Offset()
	}
	return -1
}

// errorAt returns a DecodeError of the given kind positioned at the start of the last byte consumed from r.
func errorAt(r io.Reader, kind DecodeErrorKind, format string, args ...interface{}) *DecodeError {
	off := offsetOf(r)
	if off > 0 {
		off--
	}
	return NewDecodeError(off, kind, format, args...)
}

// AsDecodeError converts err into a *DecodeError, classifying integer and I/O failures. If err does not already carry
// a position, offset is used.
func AsDecodeError(err error, offset int64) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		if de.Offset < 0 {
			de.Offset = offset
		}
		return de
	}

	switch {
	case errors.Is(err, leb128.ErrMalformed):
		return &DecodeError{Offset: offset, Kind: MalformedInteger, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return &DecodeError{Offset: offset, Kind: Truncated, Err: io.ErrUnexpectedEOF}
	default:
		return &DecodeError{Offset: offset, Kind: Invalid, Err: err}
	}
}

// ValidationError is returned by module-level checks that do not concern the encoding itself.
type ValidationError string

func (e ValidationError) Error() string {
	return fmt.Sprintf("wasm: validation error: %s", string(e))
}

var ErrEmptyInitExpr = errors.New("wasm: initializer expression produces no value")

// ErrNoNameSection is returned by Module.Names for a module without a name section.
var ErrNoNameSection = errors.New("wasm: module has no name section")

type InvalidInitExprOpError byte

func (e InvalidInitExprOpError) Error() string {
	return fmt.Sprintf("wasm: invalid opcode in initializer expression: %#x", byte(e))
}

// unsupportedAt returns an UnsupportedFeature error positioned at the start of the last byte consumed from r.
func unsupportedAt(r io.Reader, what, feature string) *DecodeError {
	e := errorAt(r, UnsupportedFeature, "%s", feature)
	e.Opcode = what
	return e
}
