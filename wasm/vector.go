package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm/leb128"
)

// entry is implemented by pointers to the elements of a vector.
type entry[T any] interface {
	*T
	Unmarshaler
	Marshaler
}

// vectorError positions err within r. Errors that are not already DecodeErrors are classified and labelled.
func vectorError(err error, r io.Reader, format string, args ...interface{}) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return AsDecodeError(err, offsetOf(r))
	}
	de = AsDecodeError(err, offsetOf(r))
	de.Detail = fmt.Sprintf(format, args...)
	return de
}

// readVector reads a count-prefixed vector of entries named what.
func readVector[T any, P entry[T]](r io.Reader, what string) ([]T, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, vectorError(err, r, "%s count", what)
	}

	entries := make([]T, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var e T
		if err := P(&e).UnmarshalWASM(r); err != nil {
			return nil, vectorError(err, r, "%s %d", what, i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func writeVector[T any, P entry[T]](w io.Writer, entries []T) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for i := range entries {
		if err := P(&entries[i]).MarshalWASM(w); err != nil {
			return err
		}
	}
	return nil
}

// readIndices reads a count-prefixed vector of u32 indices named what.
func readIndices(r io.Reader, what string) ([]uint32, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, vectorError(err, r, "%s count", what)
	}

	indices := make([]uint32, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		index, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, vectorError(err, r, "%s %d", what, i)
		}
		indices = append(indices, index)
	}
	return indices, nil
}

func writeIndices(w io.Writer, indices []uint32) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(indices))); err != nil {
		return err
	}
	for _, index := range indices {
		if _, err := leb128.WriteVarUint32(w, index); err != nil {
			return err
		}
	}
	return nil
}
