package validate

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/megos/wasmrt/load"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path to module]",
		Short: "Validate WebAssembly modules",
		Long:  "Decode and validate a WebAssembly module, reporting the offset of the first error",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			m, err := load.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("%v: %w", args[0], err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%v: ok (%d types, %d imports, %d functions, %d exports)\n",
				args[0], len(m.Types.Entries), len(m.Import.Entries), len(m.Function.Types), len(m.Export.Entries))
			return err
		},
	}
}
