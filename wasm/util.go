// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/megos/wasmrt/wasm/leb128"
)

// maxInitialCap bounds the capacity preallocated from a count read from the module, so that a corrupt count cannot
// force a large allocation before the data backing it has been read.
const maxInitialCap = 10 * 1024

func getInitialCap(count uint32) uint32 {
	if count > maxInitialCap {
		return maxInitialCap
	}
	return count
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readBytes(r io.Reader, n uint32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(getInitialCap(n)))
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func readBytesUint(r io.Reader) ([]byte, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	return readBytes(r, n)
}

func readUTF8StringUint(r io.Reader) (string, error) {
	b, err := readBytesUint(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errorAt(r, InvalidSection, "malformed UTF-8 encoding")
	}
	return string(b), nil
}

func writeBytesUint(w io.Writer, p []byte) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(p))); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func writeStringUint(w io.Writer, s string) error {
	return writeBytesUint(w, []byte(s))
}

// recorder keeps a copy of every byte read through it.
type recorder struct {
	r   io.Reader
	buf []byte
}

func (c *recorder) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.buf = append(c.buf, p[:n]...)
	return n, err
}

func (c *recorder) ReadByte() (byte, error) {
	b, err := readByte(c.r)
	if err == nil {
		c.buf = append(c.buf, b)
	}
	return b, err
}

func (c *recorder) Offset() int64 {
	return offsetOf(c.r)
}

// Constant expression opcodes.
const (
	opEnd       = 0x0b
	opGlobalGet = 0x23
	opI32Const  = 0x41
	opI64Const  = 0x42
	opF32Const  = 0x43
	opF64Const  = 0x44
	opRefNull   = 0xd0
	opRefFunc   = 0xd2
	opSIMD      = 0xfd
)

// readInitExpr reads a constant expression up to and including its terminating end opcode. Expressions that use
// unsupported value types are rejected here; the shape of the expression is checked during validation.
func readInitExpr(r io.Reader) ([]byte, error) {
	rec := recorder{r: r}
	for {
		op, err := readByte(&rec)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		switch op {
		case opEnd:
			return rec.buf, nil
		case opI32Const:
			_, err = leb128.ReadVarint32(&rec)
		case opI64Const:
			_, err = leb128.ReadVarint64(&rec)
		case opGlobalGet:
			_, err = leb128.ReadVarUint32(&rec)
		case opF32Const:
			return nil, unsupportedAt(r, "f32.const", "floating point")
		case opF64Const:
			return nil, unsupportedAt(r, "f64.const", "floating point")
		case opRefNull:
			return nil, unsupportedAt(r, "ref.null", "reference types")
		case opRefFunc:
			return nil, unsupportedAt(r, "ref.func", "reference types")
		case opSIMD:
			return nil, unsupportedAt(r, "v128.const", "SIMD")
		default:
			return nil, errorAt(r, Invalid, "%v", InvalidInitExprOpError(op))
		}
		if err != nil {
			return nil, err
		}
	}
}
