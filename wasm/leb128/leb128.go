// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leb128 provides functions for reading and writing integers in the LEB128 variable-length encoding used by
// the WebAssembly binary format.
//
// Decoding is strict: a 32-bit integer may occupy at most 5 bytes and a 64-bit integer at most 10, and the unused
// high bits of the final byte must be zero (unsigned) or copies of the sign bit (signed).
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrMalformed is returned (possibly wrapped) when an encoded integer is too long or carries significant bits beyond
// the width of the target type.
var ErrMalformed = errors.New("malformed LEB128 integer")

var (
	errTooLong    = fmt.Errorf("%w: integer representation too long", ErrMalformed)
	errTooLarge   = fmt.Errorf("%w: integer too large", ErrMalformed)
	errSignBits   = fmt.Errorf("%w: integer representation has invalid sign bits", ErrMalformed)
	errNoProgress = io.ErrNoProgress
)

type byteSource interface {
	ReadByte() (byte, error)
}

type readerSource struct {
	r   io.Reader
	buf [1]byte
}

func (s *readerSource) ReadByte() (byte, error) {
	n, err := s.r.Read(s.buf[:])
	switch {
	case n == 1:
		return s.buf[0], nil
	case err != nil:
		return 0, err
	default:
		return 0, errNoProgress
	}
}

type sliceSource struct {
	b []byte
	n int
}

func (s *sliceSource) ReadByte() (byte, error) {
	if s.n >= len(s.b) {
		return 0, io.EOF
	}
	b := s.b[s.n]
	s.n++
	return b, nil
}

func source(r io.Reader) byteSource {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return &readerSource{r: r}
}

func maxBytes(bits uint) int {
	return int((bits + 6) / 7)
}

func decodeUnsigned(s byteSource, bits uint) (uint64, error) {
	limit := maxBytes(bits)
	used := bits - 7*uint(limit-1)

	var result uint64
	for i := 0; ; i++ {
		b, err := s.ReadByte()
		if err != nil {
			if i != 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}

		if i == limit-1 {
			if b&0x80 != 0 {
				return 0, errTooLong
			}
			if b>>used != 0 {
				return 0, errTooLarge
			}
		}

		result |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

func decodeSigned(s byteSource, bits uint) (int64, error) {
	limit := maxBytes(bits)
	used := bits - 7*uint(limit-1)
	signMask := byte(0x7f) &^ (byte(1)<<(used-1) - 1)

	var result int64
	for i := 0; ; i++ {
		b, err := s.ReadByte()
		if err != nil {
			if i != 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}

		if i == limit-1 {
			if b&0x80 != 0 {
				return 0, errTooLong
			}
			if upper := b & signMask; upper != 0 && upper != signMask {
				return 0, errSignBits
			}
		}

		result |= int64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			if shift := 7 * uint(i+1); shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

// ReadVarUint32 reads a LEB128-encoded unsigned 32-bit integer from r.
func ReadVarUint32(r io.Reader) (uint32, error) {
	v, err := decodeUnsigned(source(r), 32)
	return uint32(v), err
}

// ReadVarUint64 reads a LEB128-encoded unsigned 64-bit integer from r.
func ReadVarUint64(r io.Reader) (uint64, error) {
	return decodeUnsigned(source(r), 64)
}

// ReadVarint32 reads a LEB128-encoded signed 32-bit integer from r.
func ReadVarint32(r io.Reader) (int32, error) {
	v, err := decodeSigned(source(r), 32)
	return int32(v), err
}

// ReadVarint64 reads a LEB128-encoded signed 64-bit integer from r.
func ReadVarint64(r io.Reader) (int64, error) {
	return decodeSigned(source(r), 64)
}

// GetVarUint32 decodes a LEB128-encoded unsigned 32-bit integer from the start of b. It returns the value and the
// number of bytes consumed.
func GetVarUint32(b []byte) (uint32, int, error) {
	s := sliceSource{b: b}
	v, err := decodeUnsigned(&s, 32)
	return uint32(v), s.n, eofToUnexpected(err)
}

// GetVarUint64 decodes a LEB128-encoded unsigned 64-bit integer from the start of b.
func GetVarUint64(b []byte) (uint64, int, error) {
	s := sliceSource{b: b}
	v, err := decodeUnsigned(&s, 64)
	return v, s.n, eofToUnexpected(err)
}

// GetVarint32 decodes a LEB128-encoded signed 32-bit integer from the start of b.
func GetVarint32(b []byte) (int32, int, error) {
	s := sliceSource{b: b}
	v, err := decodeSigned(&s, 32)
	return int32(v), s.n, eofToUnexpected(err)
}

// GetVarint33 decodes a LEB128-encoded signed 33-bit integer from the start of b. Block types use this encoding.
func GetVarint33(b []byte) (int64, int, error) {
	s := sliceSource{b: b}
	v, err := decodeSigned(&s, 33)
	return v, s.n, eofToUnexpected(err)
}

// GetVarint64 decodes a LEB128-encoded signed 64-bit integer from the start of b.
func GetVarint64(b []byte) (int64, int, error) {
	s := sliceSource{b: b}
	v, err := decodeSigned(&s, 64)
	return v, s.n, eofToUnexpected(err)
}

func eofToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// AppendVarUint64 appends the LEB128 encoding of v to b.
func AppendVarUint64(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if c&0x80 == 0 {
			return b
		}
	}
}

// AppendVarint64 appends the signed LEB128 encoding of v to b.
func AppendVarint64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		s := c & 0x40
		v >>= 7
		if (v != -1 || s == 0) && (v != 0 || s != 0) {
			c |= 0x80
		}
		b = append(b, c)
		if c&0x80 == 0 {
			return b
		}
	}
}

// WriteVarUint32 writes a LEB128-encoded unsigned 32-bit integer to w. It returns the number of bytes written.
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	var buf [5]byte
	return w.Write(AppendVarUint64(buf[:0], uint64(v)))
}

// WriteVarUint64 writes a LEB128-encoded unsigned 64-bit integer to w.
func WriteVarUint64(w io.Writer, v uint64) (int, error) {
	var buf [10]byte
	return w.Write(AppendVarUint64(buf[:0], v))
}

// WriteVarint32 writes a LEB128-encoded signed 32-bit integer to w.
func WriteVarint32(w io.Writer, v int32) (int, error) {
	return WriteVarint64(w, int64(v))
}

// WriteVarint64 writes a LEB128-encoded signed 64-bit integer to w.
func WriteVarint64(w io.Writer, v int64) (int, error) {
	var buf [10]byte
	return w.Write(AppendVarint64(buf[:0], v))
}
