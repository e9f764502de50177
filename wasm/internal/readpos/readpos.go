// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package readpos tracks the number of bytes consumed from a reader so that decode errors can name the byte offset
// at which they occurred.
package readpos

import "io"

// ReadPos implements io.Reader and io.ByteReader and stores the current position in the stream.
type ReadPos struct {
	R      io.Reader
	CurPos int64
}

// New returns a ReadPos over r whose positions start at base.
func New(r io.Reader, base int64) *ReadPos {
	return &ReadPos{R: r, CurPos: base}
}

// Read implements io.Reader.
func (r *ReadPos) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	r.CurPos += int64(n)
	return n, err
}

// ReadByte implements io.ByteReader.
func (r *ReadPos) ReadByte() (byte, error) {
	if br, ok := r.R.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == nil {
			r.CurPos++
		}
		return b, err
	}

	var p [1]byte
	n, err := io.ReadFull(r.R, p[:])
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return 0, err
	}
	r.CurPos++
	return p[0], nil
}

// Offset returns the number of bytes consumed so far, relative to the stream's base.
func (r *ReadPos) Offset() int64 {
	return r.CurPos
}
