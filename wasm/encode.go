// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/megos/wasmrt/wasm/leb128"
)

func writeSection(w io.Writer, s Section) error {
	var buf bytes.Buffer
	if err := s.WritePayload(&buf); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(s.SectionID())}); err != nil {
		return err
	}
	return writeBytesUint(w, buf.Bytes())
}

// EncodeModule writes a provided module to w using WASM binary encoding. Sections are written in their canonical
// order; custom sections are written last.
func EncodeModule(w io.Writer, m *Module) error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:], Version)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	sections := []Section{
		m.Types,
		m.Import,
		m.Function,
		m.Table,
		m.Memory,
		m.Global,
		m.Export,
		m.Start,
		m.Elements,
		m.Code,
		m.Data,
	}
	for _, s := range sections {
		if isNilSection(s) {
			continue
		}
		if err := writeSection(w, s); err != nil {
			return err
		}
	}
	for _, c := range m.Customs {
		if err := writeSection(w, c); err != nil {
			return err
		}
	}
	return nil
}

func isNilSection(s Section) bool {
	switch s := s.(type) {
	case *SectionTypes:
		return s == nil
	case *SectionImports:
		return s == nil
	case *SectionFunctions:
		return s == nil
	case *SectionTables:
		return s == nil
	case *SectionMemories:
		return s == nil
	case *SectionGlobals:
		return s == nil
	case *SectionExports:
		return s == nil
	case *SectionStartFunction:
		return s == nil
	case *SectionElements:
		return s == nil
	case *SectionCode:
		return s == nil
	case *SectionData:
		return s == nil
	}
	return s == nil
}

// EncodeModuleBytes returns the WASM binary encoding of m.
func EncodeModuleBytes(m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeModule(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ConstI32Expr returns a constant expression that produces v.
func ConstI32Expr(v int32) []byte {
	return append(leb128.AppendVarint64([]byte{opI32Const}, int64(v)), opEnd)
}

// ConstI64Expr returns a constant expression that produces v.
func ConstI64Expr(v int64) []byte {
	return append(leb128.AppendVarint64([]byte{opI64Const}, v), opEnd)
}

// GlobalGetExpr returns a constant expression that reads the given global.
func GlobalGetExpr(globalidx uint32) []byte {
	return append(leb128.AppendVarUint64([]byte{opGlobalGet}, uint64(globalidx)), opEnd)
}
