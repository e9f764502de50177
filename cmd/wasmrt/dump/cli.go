package dump

import (
	"bufio"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/megos/wasmrt/load"
	"github.com/megos/wasmrt/wasm"
	"github.com/megos/wasmrt/wasm/trace"
)

// functionNames maps function indices to the names recorded in the module's name section. Imported functions that
// have no recorded name are named after their import.
func functionNames(m *wasm.Module) trace.ModuleNames {
	n := trace.ModuleNames{}

	funcIdx := uint32(0)
	for _, import_ := range m.Import.Entries {
		if _, ok := import_.Type.(wasm.FuncImport); ok {
			n[funcIdx] = import_.FieldName
			funcIdx++
		}
	}
	if names, err := m.Names(); err == nil {
		for index, name := range names.FunctionNames() {
			n[index] = name
		}
	}
	return n
}

func Command() *cobra.Command {
	var traceFile string
	var stats bool

	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Dump WebAssembly modules and traces",
		Long:  "Dump a summary of a WebAssembly module, its per-function statistics, or an execution trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			mod, err := load.LoadFile(args[0])
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()

			switch {
			case traceFile != "":
				f, err := os.Open(traceFile)
				if err != nil {
					return err
				}
				defer f.Close()

				return trace.PrintTrace(w, bufio.NewReader(f), functionNames(mod))
			case stats:
				return dumpStats(w, mod, functionNames(mod))
			default:
				return dumpSummary(w, mod, functionNames(mod))
			}
		},
	}

	command.PersistentFlags().StringVarP(&traceFile, "trace", "t", "", "dump an execution trace from the specified file")
	command.PersistentFlags().BoolVarP(&stats, "stats", "s", false, "dump per-function statistics in CSV format")

	return command
}
