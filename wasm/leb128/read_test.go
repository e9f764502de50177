// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
)

var casesUint = []struct {
	v uint32
	b []byte
}{
	{b: []byte{0x08}, v: 8},
	{b: []byte{0x80, 0x7f}, v: 16256},
	{b: []byte{0x80, 0x80, 0x80, 0xfd, 0x07}, v: 2141192192},
	{b: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, v: math.MaxUint32},
}

var casesInt = []struct {
	v int64
	b []byte
}{
	{b: []byte{0xff, 0x00}, v: 127},
	{b: []byte{0x81, 0x7f}, v: -127},
	{b: []byte{0x80, 0x01}, v: 128},
	{b: []byte{0x80, 0x7f}, v: -128},
	{b: []byte{0x7f}, v: -1},
	{b: []byte{0x80, 0x80, 0x80, 0x80, 0x78}, v: math.MinInt32},
	{b: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}, v: math.MaxInt64},
	{b: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}, v: math.MinInt64},
}

func TestReadVarUint32(t *testing.T) {
	for _, c := range casesUint {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, err := ReadVarUint32(bytes.NewReader(c.b))
			if err != nil {
				t.Fatal(err)
			}
			if n != c.v {
				t.Fatalf("got = %d; want = %d", n, c.v)
			}

			v, read, err := GetVarUint32(c.b)
			if err != nil {
				t.Fatal(err)
			}
			if v != c.v || read != len(c.b) {
				t.Fatalf("got = (%d, %d); want = (%d, %d)", v, read, c.v, len(c.b))
			}
		})
	}
}

func TestReadVarint64(t *testing.T) {
	for _, c := range casesInt {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, err := ReadVarint64(bytes.NewReader(c.b))
			if err != nil {
				t.Fatal(err)
			}
			if n != c.v {
				t.Fatalf("got = %d; want = %d", n, c.v)
			}
		})
	}
}

func TestReadMalformed(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
		read func(b []byte) error
	}{
		{
			name: "u32 six bytes",
			b:    []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00},
			read: func(b []byte) error { _, _, err := GetVarUint32(b); return err },
		},
		{
			name: "u32 unused bits set",
			b:    []byte{0xff, 0xff, 0xff, 0xff, 0x1f},
			read: func(b []byte) error { _, _, err := GetVarUint32(b); return err },
		},
		{
			name: "s32 bad sign bits",
			b:    []byte{0xff, 0xff, 0xff, 0xff, 0x4f},
			read: func(b []byte) error { _, _, err := GetVarint32(b); return err },
		},
		{
			name: "s64 eleven bytes",
			b:    []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00},
			read: func(b []byte) error { _, _, err := GetVarint64(b); return err },
		},
		{
			name: "u64 unused bits set",
			b:    []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02},
			read: func(b []byte) error { _, err := ReadVarUint64(bytes.NewReader(b)); return err },
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.read(c.b)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed; got %v", err)
			}
		})
	}
}

func TestReadTruncated(t *testing.T) {
	if _, _, err := GetVarUint32([]byte{0x80, 0x80}); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF; got %v", err)
	}
	if _, err := ReadVarint32(bytes.NewReader([]byte{0xff})); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF; got %v", err)
	}
	if _, err := ReadVarUint32(bytes.NewReader(nil)); err != io.EOF {
		t.Fatalf("expected io.EOF; got %v", err)
	}
}

func TestRedundantEncodingAccepted(t *testing.T) {
	// Padded encodings within the byte limit are valid.
	v, n, err := GetVarUint32([]byte{0x83, 0x80, 0x80, 0x80, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 || n != 5 {
		t.Fatalf("got = (%d, %d); want = (3, 5)", v, n)
	}

	s, _, err := GetVarint32([]byte{0xff, 0xff, 0xff, 0xff, 0x7f})
	if err != nil {
		t.Fatal(err)
	}
	if s != -1 {
		t.Fatalf("got = %d; want = -1", s)
	}
}

func TestRoundTripBoundaries(t *testing.T) {
	signed := []int32{math.MinInt32, math.MinInt32 + 1, -65, -64, -63, -1, 0, 1, 63, 64, math.MaxInt32 - 1, math.MaxInt32}
	for _, n := range signed {
		b := AppendVarint64(nil, int64(n))
		v, read, err := GetVarint32(b)
		if err != nil {
			t.Fatalf("%d: %v", n, err)
		}
		if v != n || read != len(b) {
			t.Fatalf("wrote %v; read %v", n, v)
		}
	}

	unsigned := []uint32{0, 1, 127, 128, 16383, 16384, math.MaxUint32 - 1, math.MaxUint32}
	for _, n := range unsigned {
		b := AppendVarUint64(nil, uint64(n))
		v, read, err := GetVarUint32(b)
		if err != nil {
			t.Fatalf("%d: %v", n, err)
		}
		if v != n || read != len(b) {
			t.Fatalf("wrote %v; read %v", n, v)
		}
	}
}
