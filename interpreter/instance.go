package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
)

// An Instance is an instantiated WASM module. An Instance is not safe for concurrent use: it must not be invoked
// from more than one goroutine at a time. Host functions may re-enter the instance that called them.
type Instance struct {
	name   string
	config exec.Config

	types     []wasm.FunctionSig
	imports   []importedFunction
	functions []function
	globals   []*exec.Global
	table     *exec.Table

	memory     *exec.Memory
	ownsMemory bool

	exports map[string]wasm.ExportEntry

	idle   *machine
	closed bool
}

// Instantiate creates an instance of m. Imports are resolved through imports, which may be nil if m has none.
// Instantiation is atomic: on failure, any memory allocated for the instance has been released and no instance is
// returned. Errors that occur while linking are *exec.InstantiationError values.
func Instantiate(m *wasm.Module, imports exec.ImportResolver, opts ...exec.Option) (*Instance, error) {
	config, err := exec.NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	inst, err := instantiate(m, imports, config)

	result := "ok"
	if err != nil {
		result = "failed"
		var ie *exec.InstantiationError
		if errors.As(err, &ie) {
			result = strings.ReplaceAll(ie.Kind.String(), " ", "_")
		}
	}
	config.Metrics.Instantiation(result)

	return inst, err
}

func moduleName(m *wasm.Module) string {
	names, err := m.Names()
	if err != nil {
		return ""
	}
	for _, e := range names.Entries {
		if n, ok := e.(*wasm.ModuleNameSubsection); ok {
			return n.Name
		}
	}
	return ""
}

func instantiate(m *wasm.Module, imports exec.ImportResolver, config exec.Config) (_ *Instance, err error) {
	functions, err := compileFunctions(m)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		name:      moduleName(m),
		config:    config,
		functions: functions,
		exports:   map[string]wasm.ExportEntry{},
	}
	if m.Types != nil {
		inst.types = m.Types.Entries
	}

	log := Logger().With(zap.String("module", inst.name))
	defer func() {
		if err != nil {
			log.Debug("instantiation failed", zap.Error(err))
			inst.release()
		}
	}()

	if err := inst.resolveImports(m, imports); err != nil {
		return nil, err
	}
	log.Debug("resolved imports", zap.Int("functions", len(inst.imports)), zap.Int("globals", len(inst.globals)))

	if err := inst.initializeGlobals(m); err != nil {
		return nil, err
	}

	if err := inst.allocate(m); err != nil {
		return nil, err
	}
	log.Debug("allocated instance", zap.Uint32("memoryPages", inst.memorySize()))

	elementOffsets, dataOffsets, err := inst.checkSegments(m)
	if err != nil {
		return nil, err
	}
	inst.initializeSegments(m, elementOffsets, dataOffsets)

	if m.Export != nil {
		for _, e := range m.Export.Entries {
			inst.exports[e.FieldStr] = e
		}
	}

	if m.Start != nil {
		log.Debug("running start function", zap.Uint32("function", m.Start.Index))
		if _, err := inst.call(m.Start.Index, nil); err != nil {
			return nil, &exec.InstantiationError{Kind: exec.StartTrap, Err: err}
		}
	}

	log.Debug("instantiated module")
	return inst, nil
}

func importError(kind exec.InstantiationErrorKind, entry *wasm.ImportEntry, err error) error {
	return &exec.InstantiationError{Kind: kind, ModuleName: entry.ModuleName, FieldName: entry.FieldName, Err: err}
}

func resolveError(entry *wasm.ImportEntry, err error) error {
	if errors.Is(err, exec.ErrImportTypeMismatch) {
		return importError(exec.ImportTypeMismatch, entry, err)
	}
	return importError(exec.ImportNotFound, entry, err)
}

func (inst *Instance) resolveImports(m *wasm.Module, imports exec.ImportResolver) error {
	if m.Import == nil {
		return nil
	}

	for i := range m.Import.Entries {
		entry := &m.Import.Entries[i]
		if imports == nil {
			return importError(exec.ImportNotFound, entry, exec.ErrImportNotFound)
		}

		switch t := entry.Type.(type) {
		case wasm.FuncImport:
			if t.Type >= uint32(len(inst.types)) {
				return importError(exec.ImportTypeMismatch, entry, fmt.Errorf("invalid type index %d", t.Type))
			}
			sig := inst.types[int(t.Type)]
			f, err := imports.ResolveFunction(entry.ModuleName, entry.FieldName, sig)
			if err != nil {
				return resolveError(entry, err)
			}
			if actual := f.GetSignature(); !actual.Equals(sig) {
				return importError(exec.ImportTypeMismatch, entry, fmt.Errorf("%w: have %v, want %v", exec.ErrImportTypeMismatch, actual, sig))
			}
			inst.imports = append(inst.imports, importedFunction{Function: f, module: entry.ModuleName, name: entry.FieldName})

		case wasm.MemoryImport:
			mem, err := imports.ResolveMemory(entry.ModuleName, entry.FieldName, t.Type)
			if err != nil {
				return resolveError(entry, err)
			}
			if !mem.Matches(t.Type) {
				return importError(exec.ImportTypeMismatch, entry, exec.ErrImportTypeMismatch)
			}
			if !mem.Attach() {
				return importError(exec.ImportTypeMismatch, entry, fmt.Errorf("%w: memory is already in use by another instance", exec.ErrImportTypeMismatch))
			}
			inst.memory = mem

		case wasm.GlobalVarImport:
			g, err := imports.ResolveGlobal(entry.ModuleName, entry.FieldName, t.Type)
			if err != nil {
				return resolveError(entry, err)
			}
			if g.Type() != t.Type {
				return importError(exec.ImportTypeMismatch, entry, exec.ErrImportTypeMismatch)
			}
			inst.globals = append(inst.globals, g)

		default:
			return importError(exec.ImportTypeMismatch, entry, fmt.Errorf("unsupported import kind %v", entry.Type.Kind()))
		}
	}
	return nil
}

func (inst *Instance) initializeGlobals(m *wasm.Module) error {
	if m.Global == nil {
		return nil
	}

	imported := inst.globals
	globals := make([]exec.Global, len(m.Global.Globals))
	for i, entry := range m.Global.Globals {
		v, err := exec.EvalConstantExpression(imported, entry.Init)
		if err != nil {
			return fmt.Errorf("global %d: %w", len(imported)+i, err)
		}
		if v.Type != entry.Type.Type {
			return fmt.Errorf("global %d: initializer has type %v, want %v", len(imported)+i, v.Type, entry.Type.Type)
		}
		globals[i] = exec.NewGlobal(entry.Type, v)
		inst.globals = append(inst.globals, &globals[i])
	}
	return nil
}

func (inst *Instance) allocate(m *wasm.Module) error {
	if m.Memory != nil && len(m.Memory.Entries) != 0 {
		mem, err := exec.NewMemory(m.Memory.Entries[0].Limits, inst.config.Allocator, inst.config.MaxMemoryPages)
		if err != nil {
			return &exec.InstantiationError{Kind: exec.AllocationError, Err: err}
		}
		inst.memory, inst.ownsMemory = mem, true
	}

	if m.Table != nil && len(m.Table.Entries) != 0 {
		limits := m.Table.Entries[0].Limits
		max := limits.Maximum
		if !limits.HasMaximum() {
			max = ^uint32(0)
		}
		inst.table = exec.NewTable(limits.Initial, max)
	}
	return nil
}

func (inst *Instance) segmentOffset(expr []byte) (uint64, error) {
	v, err := exec.EvalConstantExpression(inst.globals, expr)
	if err != nil {
		return 0, err
	}
	if v.Type != wasm.ValueTypeI32 {
		return 0, fmt.Errorf("offset has type %v, want i32", v.Type)
	}
	return uint64(uint32(v.I32())), nil
}

func outOfBoundsInit(format string, args ...interface{}) error {
	return &exec.InstantiationError{
		Kind: exec.OutOfBoundsInit,
		Err:  fmt.Errorf("%w: %s", exec.ErrOutOfBoundsInit, fmt.Sprintf(format, args...)),
	}
}

// checkSegments evaluates every segment offset and checks that every segment fits before any is written.
func (inst *Instance) checkSegments(m *wasm.Module) (elements, data []uint64, err error) {
	if m.Elements != nil {
		elements = make([]uint64, len(m.Elements.Entries))
		for i, segment := range m.Elements.Entries {
			offset, err := inst.segmentOffset(segment.Offset)
			if err != nil {
				return nil, nil, fmt.Errorf("element segment %d: %w", i, err)
			}
			if inst.table == nil || offset+uint64(len(segment.Elems)) > uint64(inst.table.Size()) {
				return nil, nil, outOfBoundsInit("element segment %d does not fit in table", i)
			}
			elements[i] = offset
		}
	}

	if m.Data != nil {
		data = make([]uint64, len(m.Data.Entries))
		for i, segment := range m.Data.Entries {
			offset, err := inst.segmentOffset(segment.Offset)
			if err != nil {
				return nil, nil, fmt.Errorf("data segment %d: %w", i, err)
			}
			if inst.memory == nil || offset+uint64(len(segment.Data)) > inst.memory.Len() {
				return nil, nil, outOfBoundsInit("data segment %d does not fit in memory", i)
			}
			data[i] = offset
		}
	}
	return elements, data, nil
}

func (inst *Instance) initializeSegments(m *wasm.Module, elements, data []uint64) {
	for i, offset := range elements {
		for j, funcidx := range m.Elements.Entries[i].Elems {
			inst.table.Set(uint32(offset)+uint32(j), funcidx)
		}
	}
	for i, offset := range data {
		copy(inst.memory.Bytes()[offset:], m.Data.Entries[i].Data)
	}
}

// release returns the instance's memory to its allocator, or detaches an imported memory.
func (inst *Instance) release() {
	if inst.memory != nil {
		if inst.ownsMemory {
			inst.memory.Free()
		} else {
			inst.memory.Detach()
		}
		inst.memory = nil
	}
	inst.idle = nil
}

func (inst *Instance) memorySize() uint32 {
	if inst.memory == nil {
		return 0
	}
	return inst.memory.Size()
}

func (inst *Instance) signature(funcidx uint32) wasm.FunctionSig {
	if funcidx < uint32(len(inst.imports)) {
		return inst.imports[funcidx].GetSignature()
	}
	return inst.functions[funcidx-uint32(len(inst.imports))].sig
}

func (inst *Instance) newThread() *exec.Thread {
	if inst.config.Trace != nil {
		return exec.NewDebugThread(inst.memory, inst.config.MaxCallDepth, inst.config.Trace)
	}
	return exec.NewThread(inst.memory, inst.config.MaxCallDepth)
}

func (inst *Instance) acquire() *machine {
	if m := inst.idle; m != nil {
		inst.idle = nil
		return m
	}
	return newMachine(inst)
}

// call runs a function to completion on a fresh thread. Traps are recovered here and nowhere else.
func (inst *Instance) call(funcidx uint32, args []uint64) (results []uint64, err error) {
	thread := inst.newThread()
	m := inst.acquire()
	m.reset(thread)

	defer func() {
		if x := recover(); x != nil {
			te := *exec.AsTrapError(x)
			if te.FunctionIndex < 0 && len(m.frames) != 0 {
				fr := m.top()
				te.FunctionIndex, te.IP = int(fr.fn.index), fr.ip-1
			}
			thread.Trapped(te.Trap, te.IP)
			inst.config.Metrics.Trap(string(te.Trap))
			Logger().Debug("trap",
				zap.String("module", inst.name),
				zap.String("trap", string(te.Trap)),
				zap.Int("function", te.FunctionIndex),
				zap.Int("ip", te.IP),
				zap.Error(te.Err))
			results, err = nil, &te
		}
		if terr := thread.Close(); terr != nil {
			Logger().Warn("writing trace", zap.Error(terr))
		}
		m.thread = nil
		inst.idle = m
	}()

	return m.invoke(funcidx, args), nil
}

func (inst *Instance) export(name string, kind wasm.External) (wasm.ExportEntry, error) {
	e, ok := inst.exports[name]
	if !ok || e.Kind != kind {
		return wasm.ExportEntry{}, &ExportNotFoundError{FieldName: name, Kind: kind}
	}
	return e, nil
}

// FunctionType returns the signature of the exported function with the given name.
func (inst *Instance) FunctionType(name string) (wasm.FunctionSig, error) {
	e, err := inst.export(name, wasm.ExternalFunction)
	if err != nil {
		return wasm.FunctionSig{}, err
	}
	return inst.signature(e.Index), nil
}

// Invoke calls the exported function with the given name. Traps are returned as *exec.TrapError values.
func (inst *Instance) Invoke(name string, args ...exec.Value) ([]exec.Value, error) {
	if inst.closed {
		return nil, ErrClosed
	}

	e, err := inst.export(name, wasm.ExternalFunction)
	if err != nil {
		return nil, err
	}

	sig := inst.signature(e.Index)
	if len(args) != len(sig.ParamTypes) {
		return nil, argumentMismatch("%v expects %d arguments, got %d", name, len(sig.ParamTypes), len(args))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		if a.Type != sig.ParamTypes[i] {
			return nil, argumentMismatch("%v: argument %d has type %v, want %v", name, i, a.Type, sig.ParamTypes[i])
		}
		raw[i] = a.Bits()
	}

	inst.config.Metrics.Invocation()
	results, err := inst.call(e.Index, raw)
	if err != nil {
		return nil, err
	}

	values := make([]exec.Value, len(sig.ReturnTypes))
	for i, t := range sig.ReturnTypes {
		values[i] = exec.ValueOf(t, results[i])
	}
	return values, nil
}

// ReadMemory returns a copy of length bytes of the instance's memory starting at offset.
func (inst *Instance) ReadMemory(offset, length uint32) ([]byte, error) {
	if inst.memory == nil {
		return nil, exec.ErrOutOfBounds
	}
	return inst.memory.ReadAt(offset, length)
}

// WriteMemory copies data into the instance's memory starting at offset.
func (inst *Instance) WriteMemory(offset uint32, data []byte) error {
	if inst.memory == nil {
		return exec.ErrOutOfBounds
	}
	return inst.memory.WriteAt(offset, data)
}

// Memory returns the instance's linear memory, if any.
func (inst *Instance) Memory() *exec.Memory {
	return inst.memory
}

// Global returns the exported global with the given name.
func (inst *Instance) Global(name string) (*exec.Global, error) {
	e, err := inst.export(name, wasm.ExternalGlobal)
	if err != nil {
		return nil, err
	}
	return inst.globals[int(e.Index)], nil
}

// Name returns the module name recorded in the module's name section, if any.
func (inst *Instance) Name() string {
	return inst.name
}

// Close releases the instance's memory. The instance cannot be used afterwards.
func (inst *Instance) Close() error {
	if inst.closed {
		return ErrClosed
	}
	inst.release()
	inst.closed = true
	return nil
}
