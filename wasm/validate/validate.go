// Package validate checks the module-level rules a decoded module must satisfy before it can be instantiated, and
// type-checks every function body.
package validate

import (
	"fmt"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
)

const (
	// MaxPages is the largest memory size, in 64KiB pages, addressable with 32-bit offsets.
	MaxPages = 65536

	// MaxLocals bounds the number of locals, parameters included, declared by a single function.
	MaxLocals = 50000
)

type validator struct {
	*code.StaticScope

	module *wasm.Module
}

func invalid(format string, args ...interface{}) error {
	return &wasm.DecodeError{Offset: -1, Kind: wasm.Invalid, Err: wasm.ValidationError(fmt.Sprintf(format, args...))}
}

// ValidateModule checks m. Errors are *wasm.DecodeError values of kind wasm.Invalid, or the decoding error of the
// first malformed function body, positioned within the module binary.
func ValidateModule(m *wasm.Module) error {
	v := validator{
		StaticScope: code.NewStaticScope(m),
		module:      m,
	}
	return v.validateModule()
}

func (v *validator) validateModule() error {
	for _, check := range []func() error{
		v.validateImports,
		v.validateFunctions,
		v.validateTables,
		v.validateMemories,
		v.validateGlobals,
		v.validateElements,
		v.validateData,
		v.validateStart,
		v.validateExports,
		v.validateCode,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) functionTypes() []uint32 {
	if v.module.Function == nil {
		return nil
	}
	return v.module.Function.Types
}

func (v *validator) bodies() []wasm.FunctionBody {
	if v.module.Code == nil {
		return nil
	}
	return v.module.Code.Bodies
}

func (v *validator) validateFunctions() error {
	types, bodies := v.functionTypes(), v.bodies()
	if len(types) != len(bodies) {
		return invalid("function and code section have inconsistent lengths (%d and %d)", len(types), len(bodies))
	}

	for i, typeidx := range types {
		if _, ok := v.GetType(typeidx); !ok {
			return invalid("function %d: unknown type %d", len(v.ImportedFunctions)+i, typeidx)
		}
	}
	return nil
}

func (v *validator) validateCode() error {
	types, bodies := v.functionTypes(), v.bodies()
	for i, typeidx := range types {
		sig, _ := v.GetType(typeidx)
		body := &bodies[i]

		locals := uint64(len(sig.ParamTypes))
		for _, l := range body.Locals {
			locals += uint64(l.Count)
		}
		if locals > MaxLocals {
			return &wasm.DecodeError{
				Offset: body.Offset,
				Kind:   wasm.Invalid,
				Err:    wasm.ValidationError(fmt.Sprintf("function %d declares too many locals (%d)", len(v.ImportedFunctions)+i, locals)),
			}
		}

		v.SetFunction(sig, *body)
		if _, err := code.DecodeFunction(body, v, sig.ReturnTypes); err != nil {
			return err
		}
	}
	return nil
}

func validateLimits(what string, limits wasm.ResizableLimits, max uint32) error {
	if limits.HasMaximum() && limits.Initial > limits.Maximum {
		return invalid("%s: size minimum must not be greater than maximum", what)
	}
	if limits.Initial > max || limits.HasMaximum() && limits.Maximum > max {
		return invalid("%s: size must be at most %d", what, max)
	}
	return nil
}

func (v *validator) validateTables() error {
	if v.Tables > 1 {
		return invalid("multiple tables")
	}
	if v.module.Table == nil || len(v.module.Table.Entries) == 0 {
		return nil
	}
	return validateLimits("table", v.module.Table.Entries[0].Limits, ^uint32(0))
}

func (v *validator) validateMemories() error {
	if v.Memories > 1 {
		return invalid("multiple memories")
	}
	if v.module.Memory == nil || len(v.module.Memory.Entries) == 0 {
		return nil
	}
	return validateLimits("memory", v.module.Memory.Entries[0].Limits, MaxPages)
}

func (v *validator) validateGlobals() error {
	if v.module.Global == nil {
		return nil
	}

	for i, g := range v.module.Global.Globals {
		if err := v.validateInitExpr(g.Init, g.Type.Type); err != nil {
			return fmt.Errorf("global %d: %w", len(v.ImportedGlobals)+i, err)
		}
	}
	return nil
}

func (v *validator) validateElements() error {
	if v.module.Elements == nil {
		return nil
	}
	for i, elem := range v.module.Elements.Entries {
		if !v.HasTable(elem.Index) {
			return invalid("element segment %d: unknown table %d", i, elem.Index)
		}
		if err := v.validateInitExpr(elem.Offset, wasm.ValueTypeI32); err != nil {
			return fmt.Errorf("element segment %d: %w", i, err)
		}
		for _, funcidx := range elem.Elems {
			if _, ok := v.GetFunctionSignature(funcidx); !ok {
				return invalid("element segment %d: unknown function %d", i, funcidx)
			}
		}
	}
	return nil
}

func (v *validator) validateData() error {
	if v.module.Data == nil {
		return nil
	}
	for i, data := range v.module.Data.Entries {
		if !v.HasMemory(data.Index) {
			return invalid("data segment %d: unknown memory %d", i, data.Index)
		}
		if err := v.validateInitExpr(data.Offset, wasm.ValueTypeI32); err != nil {
			return fmt.Errorf("data segment %d: %w", i, err)
		}
	}
	return nil
}

func (v *validator) validateStart() error {
	if v.module.Start == nil {
		return nil
	}
	sig, ok := v.GetFunctionSignature(v.module.Start.Index)
	if !ok {
		return invalid("start: unknown function %d", v.module.Start.Index)
	}
	if len(sig.ParamTypes) != 0 || len(sig.ReturnTypes) != 0 {
		return invalid("start function must have type [] -> [], not %v", sig)
	}
	return nil
}

func (v *validator) validateImports() error {
	if v.module.Import == nil {
		return nil
	}
	for _, i := range v.module.Import.Entries {
		switch t := i.Type.(type) {
		case wasm.FuncImport:
			if _, ok := v.GetType(t.Type); !ok {
				return invalid("import %v: unknown type %d", i, t.Type)
			}
		case wasm.MemoryImport:
			if err := validateLimits(fmt.Sprintf("import %v", i), t.Type.Limits, MaxPages); err != nil {
				return err
			}
		case wasm.GlobalVarImport:
			// OK
		default:
			return invalid("import %v: unsupported import kind", i)
		}
	}
	return nil
}

func (v *validator) validateExports() error {
	if v.module.Export == nil {
		return nil
	}

	names := map[string]bool{}
	for _, e := range v.module.Export.Entries {
		if names[e.FieldStr] {
			return invalid("duplicate export name %q", e.FieldStr)
		}
		names[e.FieldStr] = true

		ok := true
		switch e.Kind {
		case wasm.ExternalFunction:
			_, ok = v.GetFunctionSignature(e.Index)
		case wasm.ExternalTable:
			ok = v.HasTable(e.Index)
		case wasm.ExternalMemory:
			ok = v.HasMemory(e.Index)
		case wasm.ExternalGlobal:
			_, ok = v.GetGlobalType(e.Index)
		}
		if !ok {
			return invalid("export %q: unknown %v %d", e.FieldStr, e.Kind, e.Index)
		}
	}
	return nil
}

// validateInitExpr checks a constant expression. Only constants and reads of imported immutable globals are
// permitted.
func (v *validator) validateInitExpr(expr []byte, expected wasm.ValueType) error {
	decoded, err := code.Decode(expr, constScope{importedGlobals: v.ImportedGlobals}, []wasm.ValueType{expected})
	if err != nil {
		// Positions within an initializer are not module offsets.
		de := wasm.AsDecodeError(err, -1)
		de.Offset = -1
		return de
	}
	for _, instr := range decoded.Instructions {
		switch instr.Opcode {
		case code.OpI32Const, code.OpI64Const, code.OpEnd:
			// OK
		case code.OpGlobalGet:
			if v.ImportedGlobals[int(instr.Globalidx())].Mutable {
				return invalid("constant expression reads mutable global %d", instr.Globalidx())
			}
		default:
			return invalid("constant expression required")
		}
	}
	return nil
}

// constScope exposes only the imported globals to constant expressions.
type constScope struct {
	importedGlobals []wasm.GlobalVar
}

func (constScope) GetLocalType(localidx uint32) (wasm.ValueType, bool) {
	return 0, false
}

func (s constScope) GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool) {
	if globalidx < uint32(len(s.importedGlobals)) {
		return s.importedGlobals[int(globalidx)], true
	}
	return wasm.GlobalVar{}, false
}

func (constScope) GetFunctionSignature(funcidx uint32) (wasm.FunctionSig, bool) {
	return wasm.FunctionSig{}, false
}

func (constScope) GetType(typeidx uint32) (wasm.FunctionSig, bool) {
	return wasm.FunctionSig{}, false
}

func (constScope) HasTable(tableidx uint32) bool {
	return false
}

func (constScope) HasMemory(memoryidx uint32) bool {
	return false
}
