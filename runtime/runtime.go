package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/errors"
)

// Runtime is the entry point of the API: it validates, compiles and
// instantiates modules. It is safe for concurrent use.
type Runtime struct {
	engine *engine.Engine
	log    *zap.Logger
}

// New creates a runtime backed by a new engine.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	var cfg engine.Config
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := engine.New(ctx, &cfg)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	log := cfg.Logger
	if log == nil {
		log = engine.Logger()
	}
	return &Runtime{engine: eng, log: log}, nil
}

// Close releases all runtime resources.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Validate reports whether data is a valid module. It never panics.
func (r *Runtime) Validate(data []byte) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("validate panicked", zap.Any("panic", p))
			ok = false
		}
	}()
	return r.engine.Validate(data) == nil
}

// NewModule compiles data synchronously, like new WebAssembly.Module().
func (r *Runtime) NewModule(data []byte) (*Module, error) {
	return r.compile(context.Background(), errors.ContextModule, bytes.Clone(data))
}

// Compile compiles data in the background, like WebAssembly.compile().
// data is copied before Compile returns; the caller may reuse it.
func (r *Runtime) Compile(ctx context.Context, data []byte) *Promise[*Module] {
	data = bytes.Clone(data)
	return async(func() (*Module, error) {
		return r.compile(ctx, errors.ContextCompile, data)
	})
}

// CompileStreaming reads src to the end and compiles the result.
func (r *Runtime) CompileStreaming(ctx context.Context, src io.Reader) *Promise[*Module] {
	return async(func() (*Module, error) {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, errors.Compile(errors.ContextCompileStreaming, err)
		}
		return r.compile(ctx, errors.ContextCompileStreaming, data)
	})
}

// Instantiate links imports and instantiates m in the background, like
// WebAssembly.instantiate(module, imports).
func (r *Runtime) Instantiate(ctx context.Context, m *Module, imports Imports) *Promise[*Instance] {
	return async(func() (*Instance, error) {
		return r.instantiate(ctx, errors.ContextInstantiate, m, imports)
	})
}

// NewInstance instantiates m synchronously, like new WebAssembly.Instance().
func (r *Runtime) NewInstance(ctx context.Context, m *Module, imports Imports) (*Instance, error) {
	return r.instantiate(ctx, errors.ContextInstance, m, imports)
}

// Instantiated is the result of InstantiateBytes.
type Instantiated struct {
	Module   *Module
	Instance *Instance
}

// InstantiateBytes compiles data and instantiates the result, like
// WebAssembly.instantiate(bytes, imports).
func (r *Runtime) InstantiateBytes(ctx context.Context, data []byte, imports Imports) *Promise[*Instantiated] {
	data = bytes.Clone(data)
	return async(func() (*Instantiated, error) {
		mod, err := r.compile(ctx, errors.ContextInstantiate, data)
		if err != nil {
			return nil, err
		}
		inst, err := r.instantiate(ctx, errors.ContextInstantiate, mod, imports)
		if err != nil {
			return nil, err
		}
		return &Instantiated{Module: mod, Instance: inst}, nil
	})
}

func (r *Runtime) compile(ctx context.Context, entry string, data []byte) (*Module, error) {
	c, err := r.engine.Compile(ctx, data)
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		r.log.Debug("compile failed", zap.String("entry", entry), zap.Error(err))
		return nil, errors.Compile(entry, err)
	}
	return &Module{compiled: c}, nil
}

func (r *Runtime) instantiate(ctx context.Context, entry string, m *Module, imports Imports) (*Instance, error) {
	if m == nil || m.compiled == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "module is nil")
	}

	hosts, err := resolveImports(entry, m.compiled.Module, imports)
	if err != nil {
		r.log.Debug("link failed", zap.String("entry", entry), zap.Error(err))
		return nil, err
	}

	inst, err := r.engine.Instantiate(ctx, m.compiled, hosts)
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		var e *errors.Error
		if stderrors.As(err, &e) && e.Phase == errors.PhaseLinking {
			return nil, errors.Link(entry, err.Error(), err)
		}
		return nil, errors.Runtime(entry, err)
	}
	return &Instance{module: m, inst: inst}, nil
}

// passThrough reports errors that are not about the module: cancellation
// and use after Close.
func passThrough(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == errors.KindNotInitialized
}
