package host

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/megos/wasmrt/exec"
	"github.com/megos/wasmrt/wasm"
)

// SVCModule is the import module name of the system call interface.
const SVCModule = "megos"

// System call function numbers. Calls to any other number return -1.
const (
	SVCExit        = 0
	SVCPrintString = 1
	SVCMonotonic   = 2
	SVCTime        = 3
	SVCUsleep      = 4
	SVCRand        = 100
	SVCSrand       = 101
)

// maxSVCArgs is the number of arguments taken by the widest entry point, svc6.
const maxSVCArgs = 6

// ExitError is returned, wrapped in a trap, when a program calls the Exit service.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// SVCConfig configures the system call module. Zero fields take their defaults.
type SVCConfig struct {
	// Stdout receives PrintString output. Defaults to os.Stdout.
	Stdout io.Writer
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Sleep blocks the caller. Defaults to time.Sleep.
	Sleep func(d time.Duration)
	// Seed seeds the random number generator.
	Seed int64
}

// SVC implements the megos system call module. Programs import svc0 through svc6; the first argument of each is the
// function number and the remaining arguments are passed to the service.
type SVC struct {
	stdout io.Writer
	now    func() time.Time
	sleep  func(d time.Duration)
	rand   *rand.Rand
	start  time.Time
}

// NewSVC creates a system call module.
func NewSVC(cfg SVCConfig) *SVC {
	s := &SVC{stdout: cfg.Stdout, now: cfg.Now, sleep: cfg.Sleep}
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	s.rand = rand.New(rand.NewSource(cfg.Seed))
	s.start = s.now()
	return s
}

// Bind defines svc0 through svc6 in b.
func (s *SVC) Bind(b *Bindings) {
	for n := 0; n <= maxSVCArgs; n++ {
		params := make([]wasm.ValueType, n+1)
		for i := range params {
			params[i] = wasm.ValueTypeI32
		}
		sig := wasm.FunctionSig{ParamTypes: params, ReturnTypes: []wasm.ValueType{wasm.ValueTypeI32}}
		b.DefineFunction(SVCModule, fmt.Sprintf("svc%d", n), sig, s.call)
	}
}

func (s *SVC) call(t *exec.Thread, args, results []uint64) error {
	var params [maxSVCArgs]uint32
	for i, a := range args[1:] {
		params[i] = uint32(a)
	}

	r, err := s.Dispatch(t, uint32(args[0]), params[:len(args)-1])
	if err != nil {
		return err
	}
	results[0] = uint64(uint32(r))
	return nil
}

func (s *SVC) arg(params []uint32, i int) uint32 {
	if i < len(params) {
		return params[i]
	}
	return 0
}

// Dispatch performs system call fn.
func (s *SVC) Dispatch(t *exec.Thread, fn uint32, params []uint32) (int32, error) {
	Logger().Debug("svc", zap.Uint32("function", fn), zap.Uint32s("params", params))

	switch fn {
	case SVCExit:
		return 0, &ExitError{Code: int32(s.arg(params, 0))}
	case SVCPrintString:
		return s.printString(t, s.arg(params, 0), s.arg(params, 1))
	case SVCMonotonic:
		return int32(s.now().Sub(s.start).Microseconds()), nil
	case SVCTime:
		return int32(s.now().Unix()), nil
	case SVCUsleep:
		s.sleep(time.Duration(s.arg(params, 0)) * time.Microsecond)
		return 0, nil
	case SVCRand:
		return s.rand.Int31(), nil
	case SVCSrand:
		s.rand.Seed(int64(s.arg(params, 0)))
		return 0, nil
	default:
		return -1, nil
	}
}

func (s *SVC) printString(t *exec.Thread, ptr, length uint32) (int32, error) {
	mem := t.Memory()
	if mem == nil {
		return -1, nil
	}
	b, err := mem.ReadAt(ptr, length)
	if err != nil {
		return 0, exec.TrapMemoryOutOfBounds
	}
	if _, err := s.stdout.Write(b); err != nil {
		return 0, err
	}
	return 0, nil
}
