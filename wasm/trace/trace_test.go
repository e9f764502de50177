package trace

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/code"
)

func encodeAll(t *testing.T, entries ...Entry) *bytes.Buffer {
	var buf bytes.Buffer
	for _, e := range entries {
		require.NoError(t, e.Encode(&buf))
	}
	return &buf
}

func sampleTrace() []Entry {
	sig := wasm.FunctionSig{Form: wasm.TypeFunc, ParamTypes: []wasm.ValueType{wasm.ValueTypeI32}, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI64}}
	return []Entry{
		&EnterEntry{ModuleName: "m", FunctionIndex: 3, FunctionSignature: sig},
		&InstructionEntry{IP: 0, Instruction: code.LocalGet(0), StackHeight: 0},
		&InstructionEntry{IP: 1, Instruction: code.Call(1), StackHeight: 1},
		&EnterEntry{ModuleName: "m", FunctionIndex: 1, FunctionSignature: wasm.FunctionSig{Form: wasm.TypeFunc}},
		&LeaveEntry{},
		&InstructionEntry{IP: 2, Instruction: code.I32Const(-5), StackHeight: 1},
		&TrapEntry{Trap: "integer divide by zero", IP: 2},
		&EndEntry{},
	}
}

func TestRoundTrip(t *testing.T) {
	entries := sampleTrace()
	decoded, err := Decode(encodeAll(t, entries...))
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestDecodeErrors(t *testing.T) {
	// A trace that does not finish with an end entry is truncated.
	entries := sampleTrace()
	_, err := Decode(encodeAll(t, entries[:3]...))
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader([]byte{0x7f}))
	assert.True(t, errors.Is(err, wasm.Invalid))

	decoded, err := Decode(bytes.NewReader(nil))
	assert.Error(t, err)
	assert.Nil(t, decoded)
}

func TestPrintTrace(t *testing.T) {
	var out bytes.Buffer
	names := ModuleNames{1: "helper"}
	require.NoError(t, PrintTrace(&out, encodeAll(t, sampleTrace()...), names))

	expected := `enter("m", 3, (func (param i32) (result i64)))
0000: local.get 0; [0]
0001: call $helper; [1]
  enter("m", $helper, (func))
  leave("m", $helper)
0002: i32.const -5; [1]
trap("m", 3, 0002): integer divide by zero
end
`
	assert.Equal(t, expected, out.String())
}
