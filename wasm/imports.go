// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"io"

	"github.com/megos/wasmrt/wasm/leb128"
)

// Import is the type of an imported definition: a FuncImport, MemoryImport or GlobalVarImport. Tables cannot be
// imported.
type Import interface {
	Kind() External
	Marshaler
	isImport()
}

// ImportEntry is one entry of the import section.
type ImportEntry struct {
	ModuleName string
	FieldName  string
	Type       Import
}

func (i ImportEntry) String() string {
	return i.ModuleName + "." + i.FieldName
}

// FuncImport imports a function whose signature is Types.Entries[Type].
type FuncImport struct {
	Type uint32
}

func (FuncImport) isImport()      {}
func (FuncImport) Kind() External { return ExternalFunction }

func (f FuncImport) MarshalWASM(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, f.Type)
	return err
}

type MemoryImport struct {
	Type Memory
}

func (MemoryImport) isImport()      {}
func (MemoryImport) Kind() External { return ExternalMemory }

func (m MemoryImport) MarshalWASM(w io.Writer) error {
	return m.Type.MarshalWASM(w)
}

type GlobalVarImport struct {
	Type GlobalVar
}

func (GlobalVarImport) isImport()      {}
func (GlobalVarImport) Kind() External { return ExternalGlobal }

func (g GlobalVarImport) MarshalWASM(w io.Writer) error {
	return g.Type.MarshalWASM(w)
}

// UnmarshalWASM decodes an import entry. Table entries index the importing instance's own functions, so a table
// import is rejected as unsupported.
func (i *ImportEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if i.ModuleName, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if i.FieldName, err = readUTF8StringUint(r); err != nil {
		return err
	}

	var kind External
	if err = kind.UnmarshalWASM(r); err != nil {
		return err
	}
	switch kind {
	case ExternalFunction:
		var f FuncImport
		f.Type, err = leb128.ReadVarUint32(r)
		i.Type = f
	case ExternalMemory:
		var m MemoryImport
		err = m.Type.UnmarshalWASM(r)
		i.Type = m
	case ExternalGlobal:
		var g GlobalVarImport
		err = g.Type.UnmarshalWASM(r)
		i.Type = g
	default:
		return unsupportedAt(r, "table import", "imported tables")
	}
	return err
}

func (i *ImportEntry) MarshalWASM(w io.Writer) error {
	if err := writeStringUint(w, i.ModuleName); err != nil {
		return err
	}
	if err := writeStringUint(w, i.FieldName); err != nil {
		return err
	}
	if err := i.Type.Kind().MarshalWASM(w); err != nil {
		return err
	}
	return i.Type.MarshalWASM(w)
}
