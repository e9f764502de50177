// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm/internal/readpos"
)

const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// Module represents a parsed WebAssembly module:
// http://webassembly.org/docs/modules/
//
// A Module is never modified after it has been decoded.
type Module struct {
	Version  uint32
	Sections []Section

	Types    *SectionTypes
	Import   *SectionImports
	Function *SectionFunctions
	Table    *SectionTables
	Memory   *SectionMemories
	Global   *SectionGlobals
	Export   *SectionExports
	Start    *SectionStartFunction
	Elements *SectionElements
	Code     *SectionCode
	Data     *SectionData
	Customs  []*SectionCustom
}

// Names decodes the module's name section. It returns ErrNoNameSection if the module has none.
func (m *Module) Names() (*NameSection, error) {
	s := m.Custom(CustomSectionName)
	if s == nil {
		return nil, ErrNoNameSection
	}

	var names NameSection
	if err := names.UnmarshalWASM(bytes.NewReader(s.Data)); err != nil {
		return nil, err
	}

	return &names, nil
}

// Custom returns a custom section with a specific name, if it exists.
func (m *Module) Custom(name string) *SectionCustom {
	for _, s := range m.Customs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ImportedFunctionTypes returns the type indices of the module's imported functions, in import order.
func (m *Module) ImportedFunctionTypes() []uint32 {
	var types []uint32
	if m.Import != nil {
		for _, e := range m.Import.Entries {
			if f, ok := e.Type.(FuncImport); ok {
				types = append(types, f.Type)
			}
		}
	}
	return types
}

// FunctionCount returns the size of the module's function index space.
func (m *Module) FunctionCount() int {
	n := len(m.ImportedFunctionTypes())
	if m.Function != nil {
		n += len(m.Function.Types)
	}
	return n
}

// FunctionType returns the signature of the function with the given index in the function index space.
func (m *Module) FunctionType(funcidx uint32) (FunctionSig, bool) {
	imported := m.ImportedFunctionTypes()

	var typeidx uint32
	switch {
	case funcidx < uint32(len(imported)):
		typeidx = imported[funcidx]
	case m.Function != nil && funcidx-uint32(len(imported)) < uint32(len(m.Function.Types)):
		typeidx = m.Function.Types[funcidx-uint32(len(imported))]
	default:
		return FunctionSig{}, false
	}
	if m.Types == nil || typeidx >= uint32(len(m.Types.Entries)) {
		return FunctionSig{}, false
	}
	return m.Types.Entries[typeidx], true
}

// NewModule creates a new empty module. It has no start function.
func NewModule() *Module {
	return &Module{
		Types:    &SectionTypes{},
		Import:   &SectionImports{},
		Function: &SectionFunctions{},
		Table:    &SectionTables{},
		Memory:   &SectionMemories{},
		Global:   &SectionGlobals{},
		Export:   &SectionExports{},
		Elements: &SectionElements{},
		Code:     &SectionCode{},
		Data:     &SectionData{},
	}
}

// DecodeModule decodes the structure of a WASM module. Function bodies are not inspected; see the validate package.
// Every error returned by DecodeModule is a *DecodeError.
func DecodeModule(r io.Reader) (*Module, error) {
	reader := readpos.New(r, 0)
	m := &Module{}
	magic, err := readU32(reader)
	if err != nil {
		return nil, &DecodeError{Offset: reader.CurPos, Kind: Truncated, Detail: "module header", Err: err}
	}
	if magic != Magic {
		return nil, NewDecodeError(0, BadMagic, "magic header not detected: %#08x", magic)
	}
	if m.Version, err = readU32(reader); err != nil {
		return nil, &DecodeError{Offset: reader.CurPos, Kind: Truncated, Detail: "module header", Err: err}
	}
	if m.Version != Version {
		return nil, NewDecodeError(4, UnsupportedVersion, "unknown binary version %d", m.Version)
	}

	err = newSectionsReader(m).readSections(reader)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// MustDecode decodes a WASM module and panics on failure.
func MustDecode(r io.Reader) *Module {
	m, err := DecodeModule(r)
	if err != nil {
		panic(fmt.Errorf("decoding module: %w", err))
	}
	return m
}
