// Package trace defines the binary execution trace written by a thread when tracing is enabled, and a printer for it.
package trace

import (
	"io"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
	"github.com/megos/wasmrt/wasm/leb128"
)

// EntryKind describes the type of a trace entry.
type EntryKind byte

const (
	// EntryEnter is an enter trace entry.
	EntryEnter = 0x01
	// EntryLeave is an leave trace entry.
	EntryLeave = 0x02
	// EntryInstruction is an instruction trace entry.
	EntryInstruction = 0x03
	// EntryEnd is an end trace entry.
	EntryEnd = 0x04
	// EntryTrap is a trap trace entry.
	EntryTrap = 0x05
)

// A Entry represents a single entry in an execution trace.
type Entry interface {
	// Kind returns the kind of the trace entry.
	Kind() EntryKind
	// Encode encodes the trace entry to the given writer.
	Encode(w io.Writer) error

	decode(r io.Reader) error
}

// A Decoder decodes trace entries from an io.Reader.
type Decoder struct {
	r     io.Reader
	entry Entry
	err   error
}

// NewDecoder creates a new decoder that reads from the given io.Reader.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Entry returns the trace entry decoded by the last call to Next, if any.
func (t *Decoder) Entry() Entry {
	return t.entry
}

// Error returns the error encoutered during decoding, if any.
func (t *Decoder) Error() error {
	return t.err
}

// Next decodes the next entry in the trace. Next returns false if an error occurs or if the end of the trace has been
// reached and true otherwise.
func (t *Decoder) Next() bool {
	var buf [1]byte
	if _, t.err = io.ReadFull(t.r, buf[:]); t.err != nil {
		if t.entry != nil && t.entry.Kind() == EntryEnd {
			t.err = nil
		}
		return false
	}

	var entry Entry
	switch buf[0] {
	case EntryEnter:
		entry = &EnterEntry{}
	case EntryLeave:
		entry = &LeaveEntry{}
	case EntryInstruction:
		entry = &InstructionEntry{}
	case EntryTrap:
		entry = &TrapEntry{}
	case EntryEnd:
		entry = &EndEntry{}
	default:
		t.err = wasm.NewDecodeError(-1, wasm.Invalid, "unknown trace entry kind %#x", buf[0])
		return false
	}
	if t.err = entry.decode(t.r); t.err != nil {
		return false
	}
	t.entry = entry
	return true
}

// Decode decodes an execution trace from the given reader.
func Decode(r io.Reader) ([]Entry, error) {
	decoder := NewDecoder(r)

	var trace []Entry
	for decoder.Next() {
		trace = append(trace, decoder.Entry())
	}
	if err := decoder.Error(); err != nil {
		return nil, err
	}
	return trace, nil
}

const maxString = 1 << 16

func writeString(w io.Writer, s string) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	if n > maxString {
		return "", wasm.NewDecodeError(-1, wasm.Invalid, "trace string too long (%d bytes)", n)
	}
	buf := make([]byte, int(n))
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

type EnterEntry struct {
	ModuleName        string           `json:"moduleName"`
	FunctionIndex     uint32           `json:"functionIndex"`
	FunctionSignature wasm.FunctionSig `json:"functionSignature"`
}

func (t *EnterEntry) Kind() EntryKind {
	return EntryEnter
}

// Encode encodes an enter trace entry to the given writer.
//
// An enter trace entry is encoded as follows:
//
//	0x01 | Module Name vec(byte) | FunctionIndex u32 | FunctionSignature
//
// The signature is encoded in its WASM format. The function index is LEB128-encoded.
func (t *EnterEntry) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{EntryEnter}); err != nil {
		return err
	}
	if err := writeString(w, t.ModuleName); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, t.FunctionIndex); err != nil {
		return err
	}
	return t.FunctionSignature.MarshalWASM(w)
}

func (t *EnterEntry) decode(r io.Reader) error {
	moduleName, err := readString(r)
	if err != nil {
		return err
	}

	functionIndex, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	if err := t.FunctionSignature.UnmarshalWASM(r); err != nil {
		return err
	}

	t.ModuleName = moduleName
	t.FunctionIndex = functionIndex
	return nil
}

type LeaveEntry struct{}

func (t *LeaveEntry) Kind() EntryKind {
	return EntryLeave
}

// Encode encodes a leave trace entry to the given writer.
func (t *LeaveEntry) Encode(w io.Writer) error {
	_, err := w.Write([]byte{EntryLeave})
	return err
}

func (t *LeaveEntry) decode(r io.Reader) error {
	return nil
}

// InstructionEntry records the execution of a single instruction together with the operand stack height before it
// ran.
type InstructionEntry struct {
	IP          int              `json:"ip"`
	Instruction code.Instruction `json:"instruction"`
	StackHeight int              `json:"stackHeight"`
}

func (t *InstructionEntry) Kind() EntryKind {
	return EntryInstruction
}

// Encode encodes an instruction trace entry to the given writer.
//
// An instruction trace entry is encoded as follows:
//
//	0x03 | IP u32 | Instruction | StackHeight u32
//
// The instruction is encoded in its WASM format.
func (t *InstructionEntry) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{EntryInstruction}); err != nil {
		return err
	}
	if _, err := leb128.WriteVarUint32(w, uint32(t.IP)); err != nil {
		return err
	}
	if err := t.Instruction.Encode(w); err != nil {
		return err
	}
	_, err := leb128.WriteVarUint32(w, uint32(t.StackHeight))
	return err
}

func (t *InstructionEntry) decode(r io.Reader) error {
	ip, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	var instr code.Instruction
	if err := instr.Decode(r); err != nil {
		return err
	}

	height, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	t.IP, t.Instruction, t.StackHeight = int(ip), instr, int(height)
	return nil
}

// TrapEntry records a trap. The frames entered since the last leave are abandoned.
type TrapEntry struct {
	Trap string `json:"trap"`
	IP   int    `json:"ip"`
}

func (t *TrapEntry) Kind() EntryKind {
	return EntryTrap
}

// Encode encodes a trap trace entry to the given writer.
//
//	0x05 | Trap vec(byte) | IP u32
func (t *TrapEntry) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{EntryTrap}); err != nil {
		return err
	}
	if err := writeString(w, t.Trap); err != nil {
		return err
	}
	_, err := leb128.WriteVarUint32(w, uint32(t.IP))
	return err
}

func (t *TrapEntry) decode(r io.Reader) error {
	trap, err := readString(r)
	if err != nil {
		return err
	}
	ip, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	t.Trap, t.IP = trap, int(ip)
	return nil
}

type EndEntry struct{}

func (t *EndEntry) Kind() EntryKind {
	return EntryEnd
}

// Encode encodes an end trace entry to the given writer.
func (t *EndEntry) Encode(w io.Writer) error {
	_, err := w.Write([]byte{EntryEnd})
	return err
}

func (t *EndEntry) decode(r io.Reader) error {
	return nil
}
