package exec

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/megos/wasmrt/metrics"
)

const (
	DefaultMaxCallDepth    = 1024
	DefaultMaxOperandStack = 65536
	DefaultMaxControlDepth = 4096
	DefaultMaxMemoryPages  = MaxPages
)

// Config holds the resource limits and collaborators of an instance. The zero value is not usable; start from
// NewConfig or LoadConfig.
type Config struct {
	MaxCallDepth    int    `yaml:"max_call_depth"`
	MaxOperandStack int    `yaml:"max_operand_stack"`
	MaxControlDepth int    `yaml:"max_control_depth"`
	MaxMemoryPages  uint32 `yaml:"max_memory_pages"`

	// AllocatorKind selects the allocator when Allocator is nil: "heap" (the default) or "mmap".
	AllocatorKind string `yaml:"allocator"`
	// PageBudget, if non-zero, bounds the pages outstanding across every memory created with this configuration.
	PageBudget uint32 `yaml:"page_budget"`

	Allocator Allocator        `yaml:"-"`
	Metrics   *metrics.Metrics `yaml:"-"`
	Trace     io.Writer        `yaml:"-"`
}

// An Option configures an instance.
type Option func(c *Config)

func WithMaxCallDepth(n int) Option {
	return func(c *Config) { c.MaxCallDepth = n }
}

func WithMaxOperandStack(n int) Option {
	return func(c *Config) { c.MaxOperandStack = n }
}

func WithMaxControlDepth(n int) Option {
	return func(c *Config) { c.MaxControlDepth = n }
}

// WithMaxMemoryPages lowers the hard cap on the size of linear memory.
func WithMaxMemoryPages(pages uint32) Option {
	return func(c *Config) { c.MaxMemoryPages = pages }
}

func WithAllocator(a Allocator) Option {
	return func(c *Config) { c.Allocator = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithTrace enables execution tracing to w.
func WithTrace(w io.Writer) Option {
	return func(c *Config) { c.Trace = w }
}

// WithConfig replaces the configuration built so far with c.
func WithConfig(c Config) Option {
	return func(dest *Config) { *dest = c }
}

func defaultConfig() Config {
	return Config{
		MaxCallDepth:    DefaultMaxCallDepth,
		MaxOperandStack: DefaultMaxOperandStack,
		MaxControlDepth: DefaultMaxControlDepth,
		MaxMemoryPages:  DefaultMaxMemoryPages,
		AllocatorKind:   "heap",
	}
}

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) (Config, error) {
	c := defaultConfig()
	for _, o := range opts {
		o(&c)
	}
	if err := c.check(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a YAML configuration file. Fields missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration.
func ParseConfig(data []byte) (Config, error) {
	c := defaultConfig()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.check(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) check() error {
	switch {
	case c.MaxCallDepth <= 0:
		return fmt.Errorf("config: max_call_depth must be positive")
	case c.MaxOperandStack <= 0:
		return fmt.Errorf("config: max_operand_stack must be positive")
	case c.MaxControlDepth <= 0:
		return fmt.Errorf("config: max_control_depth must be positive")
	case c.MaxMemoryPages == 0 || c.MaxMemoryPages > MaxPages:
		return fmt.Errorf("config: max_memory_pages must be between 1 and %d", MaxPages)
	}

	if c.Allocator == nil {
		switch c.AllocatorKind {
		case "", "heap":
			c.Allocator = HeapAllocator{}
		case "mmap":
			c.Allocator = NewMmapAllocator()
		default:
			return fmt.Errorf("config: unknown allocator %q", c.AllocatorKind)
		}
		if c.PageBudget != 0 {
			c.Allocator = NewBudgetAllocator(c.Allocator, c.PageBudget)
		}
	}
	return nil
}
