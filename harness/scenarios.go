package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-jsapi/builder"
	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/runtime"
)

// Scenario is a named regression check against a runtime.
type Scenario struct {
	Name string
	Fn   func(ctx context.Context, rt *runtime.Runtime) error
}

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Passed reports whether the scenario succeeded.
func (r Result) Passed() bool { return r.Err == nil }

// Scenarios returns the built-in regression scenarios in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "basicCompile", Fn: BasicCompile},
		{Name: "badFunctionInTheMiddle", Fn: BadFunctionInTheMiddle},
		{Name: "importWithoutCode", Fn: ImportWithoutCode},
	}
}

// Run executes scenarios in order. A failing scenario does not stop the
// ones after it.
func Run(ctx context.Context, rt *runtime.Runtime, scenarios ...Scenario) []Result {
	log := engine.Logger()
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		start := time.Now()
		err := s.Fn(ctx, rt)
		r := Result{Name: s.Name, Err: err, Duration: time.Since(start)}
		if err != nil {
			log.Info("scenario failed", zap.String("scenario", s.Name), zap.Error(err))
		} else {
			log.Debug("scenario passed", zap.String("scenario", s.Name), zap.Duration("took", r.Duration))
		}
		results = append(results, r)
	}
	return results
}

// BasicCompile checks a module exporting f returning i32.const 42 and the
// empty buffer, each compiled three times.
func BasicCompile(ctx context.Context, rt *runtime.Runtime) error {
	b := builder.New()
	sig := b.AddType(builder.SigIV)
	b.AddFunction("f", sig).AddBody(builder.I32Const(42)...).ExportFunc()
	buf := b.ToBuffer()

	if !rt.Validate(buf) {
		return fmt.Errorf("validate: expected true")
	}
	mod, err := rt.NewModule(buf)
	if err != nil {
		return fmt.Errorf("new module: %w", err)
	}
	mod.Close(ctx)
	for i := range 3 {
		if err := AssertCompiles(ctx, rt, buf); err != nil {
			return fmt.Errorf("compile #%d: %w", i, err)
		}
	}

	empty := []byte{}
	if rt.Validate(empty) {
		return fmt.Errorf("validate empty: expected false")
	}
	if _, err := rt.NewModule(empty); err == nil {
		return fmt.Errorf("new module empty: expected CompileError")
	}
	for i := range 3 {
		if err := AssertCompileError(ctx, rt, empty, "BufferSource argument is empty"); err != nil {
			return fmt.Errorf("compile empty #%d: %w", i, err)
		}
	}
	return nil
}

// BadFunctionInTheMiddle checks that an empty body among valid ones is
// reported by name with the offset of its end opcode.
func BadFunctionInTheMiddle(ctx context.Context, rt *runtime.Runtime) error {
	b := builder.New()
	sig := b.AddType(builder.SigIV)
	for i := range 10 {
		b.AddFunction(fmt.Sprintf("a%d", i), sig).AddBody(builder.I32Const(42)...)
	}
	b.AddFunction("bad", sig)
	for i := range 10 {
		b.AddFunction(fmt.Sprintf("b%d", i), sig).AddBody(builder.I32Const(42)...)
	}

	return AssertCompileError(ctx, rt, b.ToBuffer(),
		`Compiling wasm function "bad" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+94`)
}

// ImportWithoutCode checks a module with a single function import and no
// code section instantiates against an identity host function.
func ImportWithoutCode(ctx context.Context, rt *runtime.Runtime) error {
	b := builder.New()
	sig := b.AddType(builder.SigII)
	b.AddImport("m", "q", sig)

	identity := runtime.Func(func(_ context.Context, args []uint64) ([]uint64, error) {
		return args, nil
	})
	return AssertInstantiates(ctx, rt, b.ToBuffer(), runtime.Imports{"m": {"q": identity}})
}
