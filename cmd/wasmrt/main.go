package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/megos/wasmrt/cmd/wasmrt/dump"
	"github.com/megos/wasmrt/cmd/wasmrt/run"
	"github.com/megos/wasmrt/cmd/wasmrt/validate"
	"github.com/megos/wasmrt/host"
	"github.com/megos/wasmrt/interpreter"
	"github.com/megos/wasmrt/wasm"
)

var version = "<unknown>"

func newLogger(level string) (*zap.Logger, error) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if l == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(l)
	return config.Build()
}

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var logLevel string
	var logger *zap.Logger

	rootCommand := &cobra.Command{
		Use:           "wasmrt",
		Short:         "wasmrt WebAssembly runtime",
		Long:          "wasmrt - an integer-only WebAssembly runtime for megos programs",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			logger = l
			wasm.SetLogger(l.Named("wasm"))
			interpreter.SetLogger(l.Named("interpreter"))
			host.SetLogger(l.Named("host"))

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				pprof.StartCPUProfile(f)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cpuProfile != "" {
				pprof.StopCPUProfile()
			}

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				defer f.Close()
				runtime.GC()
				pprof.WriteHeapProfile(f)
			}

			if logger != nil {
				logger.Sync()
			}
			return nil
		},
	}

	rootCommand.AddCommand(dump.Command())
	rootCommand.AddCommand(run.Command())
	rootCommand.AddCommand(validate.Command())

	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCommand.PersistentFlags().StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	rootCommand.PersistentFlags().StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	rootCommand.PersistentFlags().MarkHidden("cpu")
	rootCommand.PersistentFlags().MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		var exit *host.ExitError
		if errors.As(err, &exit) {
			os.Exit(int(exit.Code))
		}

		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
