package trace

import (
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm/code"
)

// Names resolves function indices to names for printing. A nil Names prints indices.
type Names interface {
	FunctionName(moduleName string, index uint32) (string, bool)
}

// ModuleNames adapts a module's name section.
type ModuleNames map[uint32]string

func (n ModuleNames) FunctionName(moduleName string, index uint32) (string, bool) {
	name, ok := n[index]
	return name, ok
}

type frame struct {
	moduleName    string
	functionIndex uint32
}

type Printer struct {
	names  Names
	frames []frame
}

func NewPrinter(names Names) *Printer {
	return &Printer{names: names}
}

func (p *Printer) functionName(f frame) string {
	if p.names != nil {
		if name, ok := p.names.FunctionName(f.moduleName, f.functionIndex); ok {
			return "$" + name
		}
	}
	return fmt.Sprintf("%v", f.functionIndex)
}

func (p *Printer) where() (string, string) {
	if len(p.frames) == 0 {
		return "", ""
	}
	f := p.frames[len(p.frames)-1]
	return f.moduleName, p.functionName(f)
}

func (p *Printer) indent(w io.Writer) error {
	for i := 1; i < len(p.frames); i++ {
		if _, err := io.WriteString(w, "  "); err != nil {
			return err
		}
	}
	return nil
}

// Print prints a textual representation of the given trace entry to the given io.Writer.
func (p *Printer) Print(w io.Writer, entry Entry) error {
	switch entry := entry.(type) {
	case *EnterEntry:
		p.frames = append(p.frames, frame{moduleName: entry.ModuleName, functionIndex: entry.FunctionIndex})

		moduleName, functionName := p.where()
		if err := p.indent(w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "enter(%q, %v, %v)\n", moduleName, functionName, entry.FunctionSignature)
		return err
	case *LeaveEntry:
		moduleName, functionName := p.where()
		if err := p.indent(w); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "leave(%q, %v)\n", moduleName, functionName); err != nil {
			return err
		}
		if len(p.frames) > 0 {
			p.frames = p.frames[:len(p.frames)-1]
		}
	case *InstructionEntry:
		instruction := entry.Instruction.String()
		if len(p.frames) > 0 && entry.Instruction.Opcode == code.OpCall {
			f := frame{moduleName: p.frames[len(p.frames)-1].moduleName, functionIndex: entry.Instruction.Funcidx()}
			instruction = "call " + p.functionName(f)
		}
		if err := p.indent(w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%04x: %v; [%d]\n", entry.IP, instruction, entry.StackHeight)
		return err
	case *TrapEntry:
		moduleName, functionName := p.where()
		if err := p.indent(w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "trap(%q, %v, %04x): %s\n", moduleName, functionName, entry.IP, entry.Trap)
		p.frames = p.frames[:0]
		return err
	case *EndEntry:
		_, err := fmt.Fprintln(w, "end")
		return err
	}
	return nil
}

// PrintTrace decodes the trace in r and prints each entry to w.
func PrintTrace(w io.Writer, r io.Reader, names Names) error {
	decoder, printer := NewDecoder(r), NewPrinter(names)
	for decoder.Next() {
		if err := printer.Print(w, decoder.Entry()); err != nil {
			return err
		}
	}
	return decoder.Error()
}
