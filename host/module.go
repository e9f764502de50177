package host

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
)

var (
	threadType = reflect.TypeOf((*exec.Thread)(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
)

func wasmType(kind reflect.Kind) (wasm.ValueType, bool) {
	switch kind {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValueTypeI64, true
	default:
		return 0, false
	}
}

func isExported(n string) bool {
	r, _ := utf8.DecodeRuneInString(n)
	return unicode.IsUpper(r)
}

func exportName(n string) string {
	runes := []rune(n)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// reflectFunction adapts a Go method to exec.Function.
type reflectFunction struct {
	name      string
	sig       wasm.FunctionSig
	method    reflect.Value
	hasThread bool
	hasError  bool
}

func newReflectFunction(name string, method reflect.Value) (*reflectFunction, error) {
	t := method.Type()
	f := &reflectFunction{name: name, method: method}

	in := 0
	if t.NumIn() > 0 && t.In(0) == threadType {
		f.hasThread, in = true, 1
	}
	for ; in < t.NumIn(); in++ {
		vt, ok := wasmType(t.In(in).Kind())
		if !ok {
			return nil, fmt.Errorf("%v: cannot export method with parameter type %v", name, t.In(in))
		}
		f.sig.ParamTypes = append(f.sig.ParamTypes, vt)
	}

	out := t.NumOut()
	if out > 0 && t.Out(out-1) == errorType {
		f.hasError, out = true, out-1
	}
	if out > 1 {
		return nil, fmt.Errorf("%v: cannot export method with %d results", name, out)
	}
	if out == 1 {
		vt, ok := wasmType(t.Out(0).Kind())
		if !ok {
			return nil, fmt.Errorf("%v: cannot export method with return type %v", name, t.Out(0))
		}
		f.sig.ReturnTypes = []wasm.ValueType{vt}
	}
	f.sig.Form = wasm.TypeFunc
	return f, nil
}

func (f *reflectFunction) GetSignature() wasm.FunctionSig {
	return f.sig
}

func (f *reflectFunction) UncheckedCall(thread *exec.Thread, args, results []uint64) error {
	t := f.method.Type()

	vargs := make([]reflect.Value, 0, t.NumIn())
	if f.hasThread {
		vargs = append(vargs, reflect.ValueOf(thread))
	}
	for i, v := range args {
		pt := t.In(len(vargs))
		switch pt.Kind() {
		case reflect.Int32:
			vargs = append(vargs, reflect.ValueOf(int32(v)).Convert(pt))
		case reflect.Uint32:
			vargs = append(vargs, reflect.ValueOf(uint32(v)).Convert(pt))
		case reflect.Int64:
			vargs = append(vargs, reflect.ValueOf(int64(v)).Convert(pt))
		case reflect.Uint64:
			vargs = append(vargs, reflect.ValueOf(v).Convert(pt))
		default:
			return fmt.Errorf("%v: invalid argument %d", f.name, i)
		}
	}

	vresults := f.method.Call(vargs)

	if f.hasError {
		last := vresults[len(vresults)-1]
		vresults = vresults[:len(vresults)-1]
		if err, _ := last.Interface().(error); err != nil {
			return err
		}
	}

	for i, v := range vresults {
		switch v.Kind() {
		case reflect.Uint32, reflect.Uint64:
			results[i] = v.Uint()
		case reflect.Int32:
			results[i] = uint64(uint32(v.Int()))
		default:
			results[i] = uint64(v.Int())
		}
	}
	return nil
}

// NewModuleFunctions reflects over the exported methods of v and returns a host function for each, keyed by the
// method name with its first letter lowered. A method may take an *exec.Thread as its first parameter, followed by
// any number of int32, uint32, int64 or uint64 parameters, and may return at most one such value optionally followed
// by an error.
func NewModuleFunctions(module string, v interface{}) (map[string]exec.Function, error) {
	if v == nil {
		return nil, errors.New("host module value must not be nil")
	}

	value := reflect.ValueOf(v)
	t := value.Type()

	fns := map[string]exec.Function{}
	for i, n := 0, t.NumMethod(); i < n; i++ {
		m := t.Method(i)
		if !isExported(m.Name) {
			continue
		}
		name := exportName(m.Name)
		f, err := newReflectFunction(key(module, name), value.Method(i))
		if err != nil {
			return nil, err
		}
		fns[name] = f
	}
	return fns, nil
}

// FunctionNames returns the sorted names of the functions bound under module.
func (b *Bindings) FunctionNames(module string) []string {
	prefix := module + "."
	var names []string
	for k := range b.functions {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			names = append(names, k[len(prefix):])
		}
	}
	sort.Strings(names)
	return names
}
