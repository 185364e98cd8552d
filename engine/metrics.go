package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "wasm_jsapi"

// Result label values.
const (
	resultOK    = "ok"
	resultError = "error"
)

type metrics struct {
	compiles           *prometheus.CounterVec
	compileDuration    prometheus.Histogram
	functionsValidated prometheus.Counter
	instantiations     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compile_total",
			Help:      "Module compilations by result.",
		}, []string{"result"}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "compile_duration_seconds",
			Help:      "Time from compile request to settled result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		functionsValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "functions_validated_total",
			Help:      "Function bodies that passed validation.",
		}),
		instantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "instantiate_total",
			Help:      "Module instantiations by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m
	}

	m.compiles = register(reg, m.compiles)
	m.compileDuration = register(reg, m.compileDuration)
	m.functionsValidated = register(reg, m.functionsValidated)
	m.instantiations = register(reg, m.instantiations)
	return m
}

// register adds c to reg, reusing an identical collector registered by an
// earlier engine.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		Logger().Warn("register metric failed", zap.Error(err))
	}
	return c
}

func (m *metrics) compileDone(start time.Time, err error) {
	m.compileDuration.Observe(time.Since(start).Seconds())
	m.compiles.WithLabelValues(resultLabel(err)).Inc()
}

func (m *metrics) instantiateDone(err error) {
	m.instantiations.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
