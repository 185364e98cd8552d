package engine

import (
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Backend selects how wazero lowers compiled modules.
type Backend string

const (
	// BackendAuto uses the compiler where wazero supports it and the
	// interpreter elsewhere.
	BackendAuto        Backend = ""
	BackendInterpreter Backend = "interpreter"
	BackendCompiler    Backend = "compiler"
)

// ParseBackend maps a flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendAuto, "auto":
		return BackendAuto, nil
	case BackendInterpreter, BackendCompiler:
		return Backend(s), nil
	}
	return "", fmt.Errorf("unknown backend %q (want auto, interpreter or compiler)", s)
}

// Config holds configuration for engine creation. The zero value is usable.
type Config struct {
	// Logger overrides the package logger for this engine.
	Logger *zap.Logger

	// Registerer receives the engine's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	Backend Backend

	// Workers bounds concurrent function validation. 0 means GOMAXPROCS.
	Workers int

	// QueueSize bounds pending validation units. 0 means unbounded.
	QueueSize int

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return Logger()
}

func (c Config) runtimeConfig(cache wazero.CompilationCache) wazero.RuntimeConfig {
	var rc wazero.RuntimeConfig
	switch c.Backend {
	case BackendInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	case BackendCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	default:
		rc = wazero.NewRuntimeConfig()
	}
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	return rc.WithCompilationCache(cache).WithCloseOnContextDone(true)
}
