package host

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
)

// Bindings is an import resolver backed by a table of host definitions keyed by module and field name. Bindings are
// not safe for concurrent modification.
type Bindings struct {
	functions map[string]exec.Function
	memories  map[string]*exec.Memory
	globals   map[string]*exec.Global
}

var _ exec.ImportResolver = (*Bindings)(nil)

// NewBindings returns an empty binding table.
func NewBindings() *Bindings {
	return &Bindings{
		functions: map[string]exec.Function{},
		memories:  map[string]*exec.Memory{},
		globals:   map[string]*exec.Global{},
	}
}

func key(module, name string) string {
	return module + "." + name
}

// Define binds an arbitrary function implementation.
func (b *Bindings) Define(module, name string, f exec.Function) {
	b.functions[key(module, name)] = f
}

// DefineFunction binds a host function with the given signature.
func (b *Bindings) DefineFunction(module, name string, sig wasm.FunctionSig, fn exec.HostFunc) {
	b.Define(module, name, exec.NewHostFunction(key(module, name), sig, fn))
}

// DefineModule binds every exported method of v under the given module name. See NewModuleFunctions for the
// supported method shapes.
func (b *Bindings) DefineModule(module string, v interface{}) error {
	fns, err := NewModuleFunctions(module, v)
	if err != nil {
		return err
	}
	for name, f := range fns {
		b.Define(module, name, f)
	}
	return nil
}

// DefineGlobal binds a global.
func (b *Bindings) DefineGlobal(module, name string, g *exec.Global) {
	b.globals[key(module, name)] = g
}

// DefineMemory binds a linear memory. The memory can be imported by at most one live instance.
func (b *Bindings) DefineMemory(module, name string, m *exec.Memory) {
	b.memories[key(module, name)] = m
}

func (b *Bindings) defined(k string) bool {
	_, f := b.functions[k]
	_, m := b.memories[k]
	_, g := b.globals[k]
	return f || m || g
}

func (b *Bindings) missing(module, name, kind string) error {
	k := key(module, name)
	if b.defined(k) {
		return fmt.Errorf("%w: %v is not a %v", exec.ErrImportTypeMismatch, k, kind)
	}
	Logger().Debug("unresolved import", zap.String("module", module), zap.String("name", name), zap.String("kind", kind))
	return fmt.Errorf("%w: %v", exec.ErrImportNotFound, k)
}

func (b *Bindings) ResolveFunction(module, name string, sig wasm.FunctionSig) (exec.Function, error) {
	f, ok := b.functions[key(module, name)]
	if !ok {
		return nil, b.missing(module, name, "function")
	}
	if actual := f.GetSignature(); !actual.Equals(sig) {
		return nil, fmt.Errorf("%w: %v has type %v, import expects %v", exec.ErrImportTypeMismatch, key(module, name), actual, sig)
	}
	return f, nil
}

func (b *Bindings) ResolveMemory(module, name string, t wasm.Memory) (*exec.Memory, error) {
	m, ok := b.memories[key(module, name)]
	if !ok {
		return nil, b.missing(module, name, "memory")
	}
	if !m.Matches(t) {
		return nil, fmt.Errorf("%w: memory %v does not satisfy limits %v", exec.ErrImportTypeMismatch, key(module, name), t.Limits)
	}
	return m, nil
}

func (b *Bindings) ResolveGlobal(module, name string, t wasm.GlobalVar) (*exec.Global, error) {
	g, ok := b.globals[key(module, name)]
	if !ok {
		return nil, b.missing(module, name, "global")
	}
	if g.Type() != t {
		return nil, fmt.Errorf("%w: global %v has type %v, import expects %v", exec.ErrImportTypeMismatch, key(module, name), g.Type(), t)
	}
	return g, nil
}
