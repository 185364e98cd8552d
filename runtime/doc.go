// Package runtime provides the WebAssembly JavaScript API surface in Go.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	if !rt.Validate(wasmBytes) {
//	    log.Fatal("invalid module")
//	}
//
//	mod, err := rt.Compile(ctx, wasmBytes).Await(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := rt.Instantiate(ctx, mod, runtime.Imports{
//	    "m": {"q": func(x int32) int32 { return x }},
//	}).Await(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
// # Entry Points
//
//	Validate(bytes)                 - bool, never fails
//	NewModule(bytes)                - synchronous compile
//	Compile(ctx, bytes)             - background compile, returns a Promise
//	CompileStreaming(ctx, reader)   - read then compile
//	Instantiate(ctx, module, imp)   - background link and instantiate
//	NewInstance(ctx, module, imp)   - synchronous link and instantiate
//	InstantiateBytes(ctx, b, imp)   - compile and instantiate
//
// # Errors
//
// Compile failures are *errors.APIError values of kind CompileError whose
// message starts with the entry point:
//
//	WebAssembly.compile(): BufferSource argument is empty
//	WebAssembly.Module(): BufferSource argument is empty
//
// Unresolvable imports are LinkErrors, traps are RuntimeErrors:
//
//	WebAssembly.instantiate(): Import #0 "m": module is not an object or function
//
// Context cancellation is returned unwrapped.
//
// # Imports
//
// Function imports accept Func values or typed Go functions whose
// parameters and results are int32/uint32, int64/uint64, float32 or
// float64, with an optional leading context.Context and trailing error.
// Memory, table and global imports are not supported.
//
// # Thread Safety
//
// Runtime, Module and Promise are safe for concurrent use. Instance is NOT
// thread-safe and should be used by a single goroutine.
package runtime
