// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/megos/wasmrt/wasm/internal/readpos"
	"github.com/megos/wasmrt/wasm/leb128"
)

// Section is a decoded module section.
type Section interface {
	SectionID() SectionID
	// GetRawSection returns the embedded record of the section's position and bytes.
	GetRawSection() *RawSection
	// ReadPayload decodes the section from r, which holds exactly the payload.
	ReadPayload(r io.Reader) error
	// WritePayload encodes the payload without its ID or size.
	WritePayload(w io.Writer) error
}

// SectionID identifies a section in the binary format.
type SectionID uint8

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11

	// Sections introduced by proposals this decoder rejects.
	sectionIDDataCount SectionID = 12
	sectionIDTag       SectionID = 13
)

var sectionNames = [...]string{
	SectionIDCustom:    "custom",
	SectionIDType:      "type",
	SectionIDImport:    "import",
	SectionIDFunction:  "function",
	SectionIDTable:     "table",
	SectionIDMemory:    "memory",
	SectionIDGlobal:    "global",
	SectionIDExport:    "export",
	SectionIDStart:     "start",
	SectionIDElement:   "element",
	SectionIDCode:      "code",
	SectionIDData:      "data",
	sectionIDDataCount: "data count",
	sectionIDTag:       "tag",
}

func (s SectionID) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("section(%d)", uint8(s))
}

// RawSection records where a section's payload lies in the module binary.
type RawSection struct {
	Start int64
	End   int64

	ID    SectionID
	Bytes []byte
}

func (s *RawSection) SectionID() SectionID {
	return s.ID
}

func (s *RawSection) GetRawSection() *RawSection {
	return s
}

type sectionsReader struct {
	last SectionID // the last known section read
	m    *Module
}

func newSectionsReader(m *Module) *sectionsReader {
	return &sectionsReader{m: m}
}

func (sr *sectionsReader) readSections(r *readpos.ReadPos) error {
	for {
		done, err := sr.readSection(r)
		if err != nil || done {
			return err
		}
	}
}

// checkID rejects section IDs that are unknown, unsupported or out of order.
func (sr *sectionsReader) checkID(id SectionID, offset int64) error {
	switch {
	case id == sectionIDDataCount:
		return UnsupportedError(offset, "data count section", "bulk memory")
	case id == sectionIDTag:
		return UnsupportedError(offset, "tag section", "exception handling")
	case id > SectionIDData:
		return NewDecodeError(offset, InvalidSection, "malformed section id %d", uint8(id))
	case id == SectionIDCustom:
		return nil
	case id <= sr.last:
		return NewDecodeError(offset, SectionOrder, "%s section must occur at most once and before the %s section",
			id, sr.last)
	}
	sr.last = id
	return nil
}

// newSection returns the section to decode a payload with the given ID into, attached to m.
func (m *Module) newSection(id SectionID) Section {
	switch id {
	case SectionIDType:
		m.Types = &SectionTypes{}
		return m.Types
	case SectionIDImport:
		m.Import = &SectionImports{}
		return m.Import
	case SectionIDFunction:
		m.Function = &SectionFunctions{}
		return m.Function
	case SectionIDTable:
		m.Table = &SectionTables{}
		return m.Table
	case SectionIDMemory:
		m.Memory = &SectionMemories{}
		return m.Memory
	case SectionIDGlobal:
		m.Global = &SectionGlobals{}
		return m.Global
	case SectionIDExport:
		m.Export = &SectionExports{}
		return m.Export
	case SectionIDStart:
		m.Start = &SectionStartFunction{}
		return m.Start
	case SectionIDElement:
		m.Elements = &SectionElements{}
		return m.Elements
	case SectionIDCode:
		m.Code = &SectionCode{}
		return m.Code
	case SectionIDData:
		m.Data = &SectionData{}
		return m.Data
	default:
		cs := &SectionCustom{}
		m.Customs = append(m.Customs, cs)
		return cs
	}
}

// readSection reads one section from r. It reports done once r is exhausted.
func (sr *sectionsReader) readSection(r *readpos.ReadPos) (done bool, err error) {
	idOffset := r.CurPos
	b, err := r.ReadByte()
	switch {
	case err == io.EOF:
		return true, nil
	case err != nil:
		return false, AsDecodeError(err, idOffset)
	}
	id := SectionID(b)
	if err := sr.checkID(id, idOffset); err != nil {
		return false, err
	}

	size, err := leb128.ReadVarUint32(r)
	if err != nil {
		return false, AsDecodeError(err, r.CurPos)
	}
	raw := RawSection{ID: id, Start: r.CurPos, End: r.CurPos + int64(size)}

	Logger().Debug("reading section",
		zap.Stringer("id", id),
		zap.Int64("offset", idOffset),
		zap.Uint32("size", size))

	payload, err := readBytes(r, size)
	if err != nil {
		return false, &DecodeError{Offset: r.CurPos, Kind: Truncated, Detail: fmt.Sprintf("%s section", id), Err: err}
	}
	raw.Bytes = payload

	sec := sr.m.newSection(id)
	pr := readpos.New(bytes.NewReader(payload), raw.Start)
	if err = sec.ReadPayload(pr); err != nil {
		de := AsDecodeError(err, pr.CurPos)
		Logger().Debug("section decode failed", zap.Stringer("id", id), zap.Error(de))
		return false, de
	}
	if pr.CurPos != raw.End {
		return false, NewDecodeError(pr.CurPos, InvalidSection, "%s section size mismatch: %d bytes unread",
			id, raw.End-pr.CurPos)
	}
	*sec.GetRawSection() = raw

	if id == SectionIDCode {
		for i := range sr.m.Code.Bodies {
			sr.m.Code.Bodies[i].Module = sr.m
		}
	}
	sr.m.Sections = append(sr.m.Sections, sec)
	return false, nil
}

// SectionCustom is a named section whose contents the decoder does not interpret.
type SectionCustom struct {
	RawSection
	Name string
	Data []byte
}

func (s *SectionCustom) SectionID() SectionID {
	return SectionIDCustom
}

func (s *SectionCustom) ReadPayload(r io.Reader) (err error) {
	if s.Name, err = readUTF8StringUint(r); err != nil {
		return vectorError(err, r, "custom section name")
	}
	s.Data, err = io.ReadAll(r)
	return err
}

func (s *SectionCustom) WritePayload(w io.Writer) error {
	if err := writeStringUint(w, s.Name); err != nil {
		return err
	}
	_, err := w.Write(s.Data)
	return err
}

// SectionTypes holds the module's function signatures.
type SectionTypes struct {
	RawSection
	Entries []FunctionSig
}

func (*SectionTypes) SectionID() SectionID { return SectionIDType }

func (s *SectionTypes) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[FunctionSig](r, "type")
	return err
}

func (s *SectionTypes) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// SectionImports holds the module's imports. Imported functions, memories and globals precede the module's own
// definitions in their index spaces.
type SectionImports struct {
	RawSection
	Entries []ImportEntry
}

func (*SectionImports) SectionID() SectionID { return SectionIDImport }

func (s *SectionImports) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[ImportEntry](r, "import")
	return err
}

func (s *SectionImports) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// SectionFunctions holds the type index of every function defined in the code section.
type SectionFunctions struct {
	RawSection
	Types []uint32
}

func (*SectionFunctions) SectionID() SectionID { return SectionIDFunction }

func (s *SectionFunctions) ReadPayload(r io.Reader) (err error) {
	s.Types, err = readIndices(r, "function")
	return err
}

func (s *SectionFunctions) WritePayload(w io.Writer) error {
	return writeIndices(w, s.Types)
}

type SectionTables struct {
	RawSection
	Entries []Table
}

func (*SectionTables) SectionID() SectionID { return SectionIDTable }

func (s *SectionTables) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[Table](r, "table")
	return err
}

func (s *SectionTables) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

type SectionMemories struct {
	RawSection
	Entries []Memory
}

func (*SectionMemories) SectionID() SectionID { return SectionIDMemory }

func (s *SectionMemories) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[Memory](r, "memory")
	return err
}

func (s *SectionMemories) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// SectionGlobals holds the module's own globals.
type SectionGlobals struct {
	RawSection
	Globals []GlobalEntry
}

func (*SectionGlobals) SectionID() SectionID { return SectionIDGlobal }

func (s *SectionGlobals) ReadPayload(r io.Reader) (err error) {
	s.Globals, err = readVector[GlobalEntry](r, "global")
	return err
}

func (s *SectionGlobals) WritePayload(w io.Writer) error {
	return writeVector(w, s.Globals)
}

// GlobalEntry defines a global. Init is the raw constant expression, including its terminating end opcode.
type GlobalEntry struct {
	Type GlobalVar
	Init []byte
}

func (g *GlobalEntry) UnmarshalWASM(r io.Reader) (err error) {
	if err = g.Type.UnmarshalWASM(r); err != nil {
		return err
	}
	g.Init, err = readInitExpr(r)
	return err
}

func (g *GlobalEntry) MarshalWASM(w io.Writer) error {
	if err := g.Type.MarshalWASM(w); err != nil {
		return err
	}
	_, err := w.Write(g.Init)
	return err
}

// SectionExports holds the module's exports in declaration order.
type SectionExports struct {
	RawSection
	Entries []ExportEntry
}

func (*SectionExports) SectionID() SectionID { return SectionIDExport }

func (s *SectionExports) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[ExportEntry](r, "export")
	return err
}

func (s *SectionExports) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// Export returns the export entry with the given name, if any.
func (s *SectionExports) Export(name string) (ExportEntry, bool) {
	if s != nil {
		for _, e := range s.Entries {
			if e.FieldStr == name {
				return e, true
			}
		}
	}
	return ExportEntry{}, false
}

// ExportEntry exports the definition at Index in the index space of Kind under the name FieldStr.
type ExportEntry struct {
	FieldStr string
	Kind     External
	Index    uint32
}

func (e *ExportEntry) UnmarshalWASM(r io.Reader) (err error) {
	if e.FieldStr, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if err = e.Kind.UnmarshalWASM(r); err != nil {
		return err
	}
	e.Index, err = leb128.ReadVarUint32(r)
	return err
}

func (e *ExportEntry) MarshalWASM(w io.Writer) error {
	if err := writeStringUint(w, e.FieldStr); err != nil {
		return err
	}
	if err := e.Kind.MarshalWASM(w); err != nil {
		return err
	}
	_, err := leb128.WriteVarUint32(w, e.Index)
	return err
}

type SectionStartFunction struct {
	RawSection
	Index uint32
}

func (*SectionStartFunction) SectionID() SectionID { return SectionIDStart }

func (s *SectionStartFunction) ReadPayload(r io.Reader) (err error) {
	s.Index, err = leb128.ReadVarUint32(r)
	return err
}

func (s *SectionStartFunction) WritePayload(w io.Writer) error {
	_, err := leb128.WriteVarUint32(w, s.Index)
	return err
}

type SectionElements struct {
	RawSection
	Entries []ElementSegment
}

func (*SectionElements) SectionID() SectionID { return SectionIDElement }

func (s *SectionElements) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[ElementSegment](r, "element segment")
	return err
}

func (s *SectionElements) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// readSegmentFlags reads the leading field of an element or data segment. Only active segments for table or memory 0
// are supported; any other value selects a bulk memory or reference types encoding.
func readSegmentFlags(r io.Reader, kind string) (uint32, error) {
	flags, err := leb128.ReadVarUint32(r)
	if err != nil {
		return 0, err
	}
	if flags != 0 {
		return 0, unsupportedAt(r, fmt.Sprintf("%s segment flags %d", kind, flags), "bulk memory")
	}
	return flags, nil
}

// ElementSegment places the functions in Elems into table Index starting at the i32 computed by Offset.
type ElementSegment struct {
	Index  uint32
	Offset []byte
	Elems  []uint32
}

func (s *ElementSegment) UnmarshalWASM(r io.Reader) (err error) {
	if s.Index, err = readSegmentFlags(r, "element"); err != nil {
		return err
	}
	if s.Offset, err = readInitExpr(r); err != nil {
		return err
	}
	s.Elems, err = readIndices(r, "element function")
	return err
}

func (s *ElementSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
		return err
	}
	if _, err := w.Write(s.Offset); err != nil {
		return err
	}
	return writeIndices(w, s.Elems)
}

// SectionCode holds the bodies of the functions declared by the function section, in the same order.
type SectionCode struct {
	RawSection
	Bodies []FunctionBody
}

func (*SectionCode) SectionID() SectionID { return SectionIDCode }

func (s *SectionCode) ReadPayload(r io.Reader) (err error) {
	if s.Bodies, err = readVector[FunctionBody](r, "function body"); err != nil {
		return err
	}
	Logger().Debug("read function bodies", zap.Int("count", len(s.Bodies)))
	return nil
}

func (s *SectionCode) WritePayload(w io.Writer) error {
	return writeVector(w, s.Bodies)
}

type FunctionBody struct {
	Module *Module
	Locals []LocalEntry
	Code   []byte

	// Offset is the position of the first byte of Code within the module binary.
	Offset int64
}

func (f *FunctionBody) UnmarshalWASM(r io.Reader) error {
	size, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	base := offsetOf(r)
	if base < 0 {
		base = 0
	}
	body, err := readBytes(r, size)
	if err != nil {
		return err
	}

	br := readpos.New(bytes.NewReader(body), base)
	if f.Locals, err = readVector[LocalEntry](br, "local"); err != nil {
		return err
	}
	f.Offset = br.CurPos
	f.Code = body[br.CurPos-base:]
	return nil
}

func (f *FunctionBody) MarshalWASM(w io.Writer) error {
	var body bytes.Buffer
	if err := writeVector(&body, f.Locals); err != nil {
		return err
	}
	body.Write(f.Code)
	return writeBytesUint(w, body.Bytes())
}

// LocalEntry declares Count locals of type Type.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

func (l *LocalEntry) UnmarshalWASM(r io.Reader) (err error) {
	if l.Count, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	return l.Type.UnmarshalWASM(r)
}

func (l *LocalEntry) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, l.Count); err != nil {
		return err
	}
	return l.Type.MarshalWASM(w)
}

type SectionData struct {
	RawSection
	Entries []DataSegment
}

func (*SectionData) SectionID() SectionID { return SectionIDData }

func (s *SectionData) ReadPayload(r io.Reader) (err error) {
	s.Entries, err = readVector[DataSegment](r, "data segment")
	return err
}

func (s *SectionData) WritePayload(w io.Writer) error {
	return writeVector(w, s.Entries)
}

// DataSegment copies Data into memory Index starting at the i32 computed by Offset.
type DataSegment struct {
	Index  uint32
	Offset []byte
	Data   []byte
}

func (s *DataSegment) UnmarshalWASM(r io.Reader) (err error) {
	if s.Index, err = readSegmentFlags(r, "data"); err != nil {
		return err
	}
	if s.Offset, err = readInitExpr(r); err != nil {
		return err
	}
	s.Data, err = readBytesUint(r)
	return err
}

func (s *DataSegment) MarshalWASM(w io.Writer) error {
	if _, err := leb128.WriteVarUint32(w, s.Index); err != nil {
		return err
	}
	if _, err := w.Write(s.Offset); err != nil {
		return err
	}
	return writeBytesUint(w, s.Data)
}
