package run

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/host"
	"github.com/megos/wasmrt/interpreter"
	"github.com/megos/wasmrt/load"
	"github.com/megos/wasmrt/metrics"
	"github.com/megos/wasmrt/wasm"
)

// defaultEntryPoints are tried in order when no function is named on the command line.
var defaultEntryPoints = []string{"_start", "main"}

func entryPoint(inst *interpreter.Instance, name string) (string, wasm.FunctionSig, error) {
	if name != "" {
		sig, err := inst.FunctionType(name)
		return name, sig, err
	}
	for _, name := range defaultEntryPoints {
		if sig, err := inst.FunctionType(name); err == nil {
			return name, sig, nil
		}
	}
	return "", wasm.FunctionSig{}, errors.New("module exports neither _start nor main; use --invoke")
}

// parseArgs converts command line arguments to values of the parameter types of sig.
func parseArgs(sig wasm.FunctionSig, args []string) ([]exec.Value, error) {
	if len(args) != len(sig.ParamTypes) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(sig.ParamTypes), len(args))
	}

	values := make([]exec.Value, len(args))
	for i, s := range args {
		switch sig.ParamTypes[i] {
		case wasm.ValueTypeI32:
			v, err := parseInt(s, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			values[i] = exec.ValueI32(int32(v))
		case wasm.ValueTypeI64:
			v, err := parseInt(s, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			values[i] = exec.ValueI64(v)
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %v", i, sig.ParamTypes[i])
		}
	}
	return values, nil
}

// parseInt accepts signed values and unsigned values up to the width's maximum.
func parseInt(s string, bits int) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, bits); err == nil {
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func Command() *cobra.Command {
	var invoke string
	var configPath string
	var trace string
	var showMetrics bool
	var seed int64

	command := &cobra.Command{
		Use:   "run [path to module] [args...]",
		Short: "Run WebAssembly programs",
		Long:  "Run a WebAssembly program with the megos system call interface.",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) < 1 {
				return errors.New("expected at least one argument")
			}

			mod, err := load.LoadFile(args[0])
			if err != nil {
				return err
			}

			var opts []exec.Option
			if configPath != "" {
				config, err := exec.LoadConfig(configPath)
				if err != nil {
					return err
				}
				opts = append(opts, exec.WithConfig(config))
			}

			if trace != "" {
				traceFile, err := os.Create(trace)
				if err != nil {
					return err
				}
				defer traceFile.Close()

				w := bufio.NewWriter(traceFile)
				defer w.Flush()

				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt)
				go func() {
					for range c {
						w.Flush()
						os.Exit(-1)
					}
				}()

				opts = append(opts, exec.WithTrace(w))
			}

			if showMetrics {
				registry := prometheus.NewRegistry()
				m, merr := metrics.New(registry)
				if merr != nil {
					return merr
				}
				opts = append(opts, exec.WithMetrics(m))
				defer func() {
					if merr := writeMetrics(cmd.ErrOrStderr(), registry); err == nil {
						err = merr
					}
				}()
			}

			bindings := host.NewBindings()
			host.NewSVC(host.SVCConfig{Stdout: cmd.OutOrStdout(), Seed: seed}).Bind(bindings)

			inst, err := interpreter.Instantiate(mod, bindings, opts...)
			if err != nil {
				return err
			}
			defer inst.Close()

			name, sig, err := entryPoint(inst, invoke)
			if err != nil {
				return err
			}
			values, err := parseArgs(sig, args[1:])
			if err != nil {
				return err
			}

			results, err := inst.Invoke(name, values...)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	command.PersistentFlags().StringVarP(&invoke, "invoke", "i", "", "the exported function to call (default _start or main)")
	command.PersistentFlags().StringVarP(&configPath, "config", "c", "", "read engine limits from the specified YAML file")
	command.PersistentFlags().StringVarP(&trace, "trace", "t", "", "write an execution trace to the specified file")
	command.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print runtime metrics to stderr on exit")
	command.PersistentFlags().Int64Var(&seed, "seed", 0, "seed for the Rand system call")

	return command
}
