// Package metrics exposes engine activity as Prometheus counters. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "wasmrt"

type Metrics struct {
	invocations    prometheus.Counter
	traps          *prometheus.CounterVec
	instantiations *prometheus.CounterVec
	memoryGrow     *prometheus.CounterVec
}

// New creates the engine's counters and registers them with r.
func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "number of exported function invocations",
		}),
		traps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_total",
			Help:      "number of traps by kind",
		}, []string{"kind"}),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instantiations_total",
			Help:      "number of module instantiations by result",
		}, []string{"result"}),
		memoryGrow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_grow_total",
			Help:      "number of memory.grow executions by result",
		}, []string{"result"}),
	}
	err := multierr.Combine(
		r.Register(m.invocations),
		r.Register(m.traps),
		r.Register(m.instantiations),
		r.Register(m.memoryGrow),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Invocation() {
	if m != nil {
		m.invocations.Inc()
	}
}

func (m *Metrics) Trap(kind string) {
	if m != nil {
		m.traps.WithLabelValues(kind).Inc()
	}
}

// Instantiation records the outcome of an instantiation: "ok" or the failure kind.
func (m *Metrics) Instantiation(result string) {
	if m != nil {
		m.instantiations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) MemoryGrow(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.memoryGrow.WithLabelValues(result).Inc()
}
