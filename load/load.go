package load

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/validate"
)

// Decode decodes and validates a module binary. No module is returned if either step fails.
func Decode(bin []byte) (*wasm.Module, error) {
	return LoadModule(bytes.NewReader(bin))
}

// LoadModule decodes and validates the module binary read from r.
func LoadModule(r io.Reader) (*wasm.Module, error) {
	m, err := wasm.DecodeModule(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	if err := validate.ValidateModule(m); err != nil {
		wasm.Logger().Debug("module failed validation", zap.Error(err))
		return nil, err
	}
	return m, nil
}

// LoadFile decodes and validates the module binary at path.
func LoadFile(path string) (*wasm.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadModule(f)
}
