package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/errors"
	"github.com/wippyai/wasm-jsapi/wasm"
)

// Engine compiles modules. Function bodies are validated on a shared worker
// pool; valid modules are lowered by wazero into a compilation cache that
// every instance runtime shares.
type Engine struct {
	pool    pond.Pool
	cache   wazero.CompilationCache
	runtime wazero.Runtime
	metrics *metrics
	log     *zap.Logger
	cfg     Config
	closed  atomic.Bool
}

// Compiled is a validated module lowered by the backend. It is immutable
// and safe for concurrent instantiation.
type Compiled struct {
	// Module is the decoded module. Callers must not modify it.
	Module   *wasm.Module
	compiled wazero.CompiledModule
	// backend is the module binary without custom sections, as handed
	// to wazero.
	backend []byte
}

// BackendError is a module the backend refused after it passed
// validation. It renders as the backend's own message.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	var poolOpts []pond.Option
	if c.QueueSize > 0 {
		poolOpts = append(poolOpts, pond.WithQueueSize(c.QueueSize))
	}

	cache := wazero.NewCompilationCache()
	e := &Engine{
		cfg:     c,
		log:     c.logger(),
		pool:    pond.NewPool(c.workers(), poolOpts...),
		cache:   cache,
		runtime: wazero.NewRuntimeWithConfig(ctx, c.runtimeConfig(cache)),
		metrics: newMetrics(c.Registerer),
	}
	e.log.Debug("engine created",
		zap.Int("workers", c.workers()),
		zap.String("backend", string(c.Backend)))
	return e, nil
}

// Validate decodes data and validates the module and every function body
// on the caller's goroutine.
func (e *Engine) Validate(data []byte) error {
	_, err := wasm.ParseModuleValidate(data)
	return err
}

// Compile decodes and validates data, then lowers it through the backend.
// Function bodies are validated concurrently; when several fail, the error
// of the lowest function index is returned. Cancelling ctx abandons the
// wait and returns ctx.Err().
func (e *Engine) Compile(ctx context.Context, data []byte) (c *Compiled, err error) {
	if e.closed.Load() {
		return nil, errors.NotInitialized(errors.PhaseCompile, "engine")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	// Cancelled compiles are not counted.
	defer func() {
		if ctx.Err() == nil || err == nil {
			e.metrics.compileDone(start, err)
		}
	}()

	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := e.validateFunctions(ctx, m); err != nil {
		return nil, err
	}

	// The name section is advisory here but strict in wazero.
	backend, err := wasm.StripCustomSections(data)
	if err != nil {
		return nil, err
	}
	cm, err := e.runtime.CompileModule(ctx, backend)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BackendError{Err: err}
	}

	e.log.Debug("module compiled",
		zap.Int("bytes", len(data)),
		zap.Int("functions", len(m.Code)),
		zap.Duration("elapsed", time.Since(start)))

	return &Compiled{Module: m, compiled: cm, backend: backend}, nil
}

// validateFunctions splits the code section into units and validates them
// on the pool. Units stop early once a lower-indexed failure is known.
func (e *Engine) validateFunctions(ctx context.Context, m *wasm.Module) error {
	n := len(m.Code)
	if n == 0 {
		return nil
	}

	imported := uint32(m.NumImportedFuncs())
	unit := e.unitSize(n)
	errs := make([]error, n)

	var lowest atomic.Int64
	lowest.Store(int64(n))

	group := e.pool.NewGroup()
	for lo := 0; lo < n; lo += unit {
		hi := min(lo+unit, n)
		group.Submit(func() {
			for i := lo; i < hi; i++ {
				if int64(i) > lowest.Load() || ctx.Err() != nil {
					return
				}
				if err := m.ValidateFunction(imported + uint32(i)); err != nil {
					errs[i] = err
					storeMin(&lowest, int64(i))
					return
				}
				e.metrics.functionsValidated.Inc()
			}
		})
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- group.Wait() }()

	select {
	case err := <-waitErr:
		if stderrors.Is(err, pond.ErrPoolStopped) {
			return errors.NotInitialized(errors.PhaseCompile, "engine")
		}
		if err != nil {
			return fmt.Errorf("validate functions: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if i := lowest.Load(); i < int64(n) {
		return errs[i]
	}
	return nil
}

func (e *Engine) unitSize(n int) int {
	return max(n/(e.cfg.workers()*4), 1)
}

func storeMin(v *atomic.Int64, x int64) {
	for {
		cur := v.Load()
		if x >= cur || v.CompareAndSwap(cur, x) {
			return
		}
	}
}

// NewRuntime creates an isolated wazero runtime sharing the engine's
// compilation cache. Each instance gets its own so host modules named by
// different imports objects never collide.
func (e *Engine) NewRuntime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, e.cfg.runtimeConfig(e.cache))
}

// Close stops the pool and releases the backend. Instances created by the
// engine must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.pool.StopAndWait()

	var firstErr error
	if err := e.runtime.Close(ctx); err != nil {
		firstErr = fmt.Errorf("close runtime: %w", err)
	}
	if err := e.cache.Close(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close compilation cache: %w", err)
	}
	if firstErr != nil {
		e.log.Warn("engine close failed", zap.Error(firstErr))
	}
	return firstErr
}

// Close releases the backend's compiled code.
func (c *Compiled) Close(ctx context.Context) error {
	return c.compiled.Close(ctx)
}
