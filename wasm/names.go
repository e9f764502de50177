// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm/leb128"
)

// A list of well-known custom sections
const (
	CustomSectionName = "name"
)

var (
	_ Marshaler   = (*NameSection)(nil)
	_ Unmarshaler = (*NameSection)(nil)
)

// NameType is the type of name subsection.
type NameType byte

const (
	NameModule   = NameType(0)
	NameFunction = NameType(1)
	NameLocal    = NameType(2)
)

type NameSubsection interface {
	Marshaler
	Unmarshaler

	Type() NameType
}

type ModuleNameSubsection struct {
	Name string
}

func (s *ModuleNameSubsection) Type() NameType {
	return NameModule
}

func (s *ModuleNameSubsection) UnmarshalWASM(r io.Reader) error {
	var err error
	s.Name, err = readUTF8StringUint(r)
	return err
}

func (s *ModuleNameSubsection) MarshalWASM(w io.Writer) error {
	return writeStringUint(w, s.Name)
}

type Naming struct {
	Index uint32
	Name  string
}

type FunctionNamesSubsection struct {
	Names []Naming
}

func (s *FunctionNamesSubsection) Type() NameType {
	return NameFunction
}

func (s *FunctionNamesSubsection) UnmarshalWASM(r io.Reader) error {
	var err error
	s.Names, err = readNameMap(r)
	return err
}

func (s *FunctionNamesSubsection) MarshalWASM(w io.Writer) error {
	return writeNameMap(w, s.Names)
}

type LocalNames struct {
	Index uint32
	Names []Naming
}

type LocalNamesSubsection struct {
	Funcs []LocalNames
}

func (s *LocalNamesSubsection) Type() NameType {
	return NameLocal
}

func (s *LocalNamesSubsection) UnmarshalWASM(r io.Reader) error {
	size, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	funcs := make([]LocalNames, int(size))
	for i := range funcs {
		ind, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}

		names, err := readNameMap(r)
		if err != nil {
			return err
		}
		funcs[i] = LocalNames{Index: ind, Names: names}
	}
	s.Funcs = funcs

	return nil
}

func (s *LocalNamesSubsection) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s.Funcs))); err != nil {
		return err
	}

	for _, func_ := range s.Funcs {
		if _, err := leb128.WriteVarUint32(w, func_.Index); err != nil {
			return err
		}
		if err := writeNameMap(w, func_.Names); err != nil {
			return err
		}
	}
	return nil
}

// NameSection is a custom section that stores names of modules, functions and locals for debugging purposes.
// See https://github.com/WebAssembly/design/blob/master/BinaryEncoding.md#name-section for more details.
type NameSection struct {
	Entries []NameSubsection
}

func (s *NameSection) UnmarshalWASM(r io.Reader) error {
	var entries []NameSubsection
	for {
		typ, err := leb128.ReadVarUint32(r)
		if err == io.EOF {
			s.Entries = entries
			return nil
		} else if err != nil {
			return err
		}

		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}

		var sub NameSubsection
		switch NameType(typ) {
		case NameModule:
			sub = &ModuleNameSubsection{}
		case NameFunction:
			sub = &FunctionNamesSubsection{}
		case NameLocal:
			sub = &LocalNamesSubsection{}
		default:
			// Extended name subsections are skipped.
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return fmt.Errorf("reading name subsection %x: %w", typ, err)
			}
			continue
		}

		if err = sub.UnmarshalWASM(io.LimitReader(r, int64(size))); err != nil {
			return err
		}

		entries = append(entries, sub)
	}
}

func (s *NameSection) MarshalWASM(w io.Writer) error {
	for _, sub := range s.Entries {
		var buf bytes.Buffer
		if err := sub.MarshalWASM(&buf); err != nil {
			return err
		}

		if _, err := leb128.WriteVarUint32(w, uint32(sub.Type())); err != nil {
			return err
		}
		if err := writeBytesUint(w, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func readNameMap(r io.Reader) ([]Naming, error) {
	size, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}

	nameMap := make([]Naming, int(size))
	for i := range nameMap {
		ind, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		name, err := readUTF8StringUint(r)
		if err != nil {
			return nil, err
		}
		nameMap[i] = Naming{Index: ind, Name: name}
	}
	return nameMap, nil
}

func writeNameMap(w io.Writer, nameMap []Naming) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(nameMap))); err != nil {
		return err
	}
	for _, v := range nameMap {
		if _, err := leb128.WriteVarUint32(w, v.Index); err != nil {
			return err
		}
		if err := writeStringUint(w, v.Name); err != nil {
			return err
		}
	}
	return nil
}

// FunctionNames returns a map from function index to name, or nil if the section carries no function names.
func (s *NameSection) FunctionNames() map[uint32]string {
	for _, e := range s.Entries {
		if fn, ok := e.(*FunctionNamesSubsection); ok {
			names := make(map[uint32]string, len(fn.Names))
			for _, n := range fn.Names {
				names[n.Index] = n.Name
			}
			return names
		}
	}
	return nil
}
