package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/engine"
)

// Option configures a Runtime.
type Option func(*engine.Config)

// WithWorkers bounds concurrent function validation. 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *engine.Config) { c.Workers = n }
}

// WithQueueSize bounds pending validation units.
func WithQueueSize(n int) Option {
	return func(c *engine.Config) { c.QueueSize = n }
}

// WithBackend selects the wazero backend.
func WithBackend(b engine.Backend) Option {
	return func(c *engine.Config) { c.Backend = b }
}

// WithLogger sets the logger used by the runtime and its engine.
func WithLogger(l *zap.Logger) Option {
	return func(c *engine.Config) { c.Logger = l }
}

// WithRegisterer registers compile and instantiate metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *engine.Config) { c.Registerer = r }
}

// WithMemoryLimitPages caps each instance's memory, in 64KB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *engine.Config) { c.MemoryLimitPages = pages }
}
