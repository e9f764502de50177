package load

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
)

func encode(t *testing.T, bodyCode []byte) []byte {
	m := wasm.NewModule()
	m.Types.Entries = []wasm.FunctionSig{{Form: wasm.TypeFunc, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32}}}
	m.Function.Types = []uint32{0}
	m.Code.Bodies = []wasm.FunctionBody{{Code: bodyCode}}
	m.Export.Entries = []wasm.ExportEntry{{FieldStr: "f", Kind: wasm.ExternalFunction}}

	bin, err := wasm.EncodeModuleBytes(m)
	require.NoError(t, err)
	return bin
}

func instructions(t *testing.T, instrs ...code.Instruction) []byte {
	var buf bytes.Buffer
	require.NoError(t, code.Encode(&buf, instrs))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	bin := encode(t, instructions(t, code.I32Const(42), code.End()))

	m, err := Decode(bin)
	require.NoError(t, err)
	assert.Len(t, m.Code.Bodies, 1)
	e, ok := m.Export.Export("f")
	assert.True(t, ok)
	assert.Equal(t, wasm.ExternalFunction, e.Kind)
}

func TestDecodeRejectsFloatInDeadCode(t *testing.T) {
	// unreachable; f64.const; end
	body := []byte{code.OpUnreachable, 0x44, 0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, code.OpEnd}
	bin := encode(t, body)

	m, err := Decode(bin)
	assert.Nil(t, m)

	var de *wasm.DecodeError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, wasm.UnsupportedFeature, de.Kind)
	assert.Equal(t, "f64.const", de.Opcode)
	assert.Equal(t, int64(bytes.Index(bin, body[1:6])), de.Offset)
}

func TestDecodeValidationFailure(t *testing.T) {
	// The function must return an i32.
	m, err := Decode(encode(t, instructions(t, code.End())))
	assert.Nil(t, m)
	assert.True(t, errors.Is(err, wasm.Invalid), "got %v", err)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		bin  []byte
		kind wasm.DecodeErrorKind
	}{
		{"bad magic", []byte{0, 'a', 's', 'x', 1, 0, 0, 0}, wasm.BadMagic},
		{"version", []byte{0, 'a', 's', 'm', 2, 0, 0, 0}, wasm.UnsupportedVersion},
		{"truncated", []byte{0, 'a', 's', 'm'}, wasm.Truncated},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, err := Decode(c.bin)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, c.kind), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.wasm")
	require.NoError(t, os.WriteFile(path, encode(t, instructions(t, code.I32Const(1), code.End())), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.wasm"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
