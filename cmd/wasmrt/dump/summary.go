package dump

import (
	"fmt"
	"io"

	"github.com/megos/wasmrt/wasm"
)

func limitsString(l wasm.ResizableLimits) string {
	if l.HasMaximum() {
		return fmt.Sprintf("%d..%d", l.Initial, l.Maximum)
	}
	return fmt.Sprintf("%d..", l.Initial)
}

func importTypeString(m *wasm.Module, i wasm.Import) string {
	switch i := i.(type) {
	case wasm.FuncImport:
		if i.Type < uint32(len(m.Types.Entries)) {
			return m.Types.Entries[i.Type].String()
		}
		return fmt.Sprintf("(func (type %d))", i.Type)
	case wasm.MemoryImport:
		return "(memory " + limitsString(i.Type.Limits) + ")"
	case wasm.GlobalVarImport:
		return "(global " + i.Type.String() + ")"
	default:
		return i.Kind().String()
	}
}

// dumpSummary writes a short description of each section of m.
func dumpSummary(w io.Writer, m *wasm.Module, names map[uint32]string) error {
	pw := &printer{w: w}

	pw.printf("types:\n")
	for i, t := range m.Types.Entries {
		pw.printf("  %d: %v\n", i, t)
	}

	pw.printf("imports:\n")
	for _, e := range m.Import.Entries {
		pw.printf("  %v: %v %v\n", e, e.Type.Kind(), importTypeString(m, e.Type))
	}

	pw.printf("functions:\n")
	imported := len(m.ImportedFunctionTypes())
	for i := range m.Function.Types {
		funcidx := uint32(imported + i)
		sig, _ := m.FunctionType(funcidx)
		pw.printf("  %d: %v", funcidx, sig)
		if name, ok := names[funcidx]; ok {
			pw.printf(" $%s", name)
		}
		pw.printf(" (%d bytes)\n", len(m.Code.Bodies[i].Code))
	}

	for _, t := range m.Table.Entries {
		pw.printf("table: %v %v, %d element segments\n", t.ElementType, limitsString(t.Limits), len(m.Elements.Entries))
	}
	for _, mem := range m.Memory.Entries {
		pw.printf("memory: %v pages, %d data segments\n", limitsString(mem.Limits), len(m.Data.Entries))
	}

	if len(m.Global.Globals) != 0 {
		pw.printf("globals:\n")
		for i, g := range m.Global.Globals {
			pw.printf("  %d: %v\n", i, g.Type)
		}
	}

	pw.printf("exports:\n")
	for _, e := range m.Export.Entries {
		pw.printf("  %q: %v %d\n", e.FieldStr, e.Kind, e.Index)
	}

	if m.Start != nil {
		pw.printf("start: %d\n", m.Start.Index)
	}
	return pw.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}
