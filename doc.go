// Package wasmjsapi provides a Go implementation of the WebAssembly
// JavaScript API compilation surface: validate, compile, the synchronous
// Module constructor and instantiate.
//
// Modules are decoded and validated in-tree so compile errors carry the
// same messages a browser engine reports, then lowered and executed by
// wazero.
//
// # Architecture Overview
//
//	wasmjsapi/           Root package with the Memory interface
//	├── runtime/         Public API: Runtime, Module, Instance, Promise
//	├── engine/          Compilation pipeline, worker pool, wazero backend
//	├── wasm/            Binary decoding, encoding and validation
//	├── builder/         Programmatic module construction
//	├── harness/         Compile/instantiate assertions and scenarios
//	├── errors/          Structured errors and JS-API error kinds
//	└── cmd/run/         Command line runner and interactive TUI
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Compile(ctx, wasmBytes).Await(ctx)
//	if err != nil {
//	    log.Fatal(err) // WebAssembly.compile(): ...
//	}
//
//	inst, err := rt.Instantiate(ctx, mod, runtime.Imports{
//	    "m": {"q": runtime.Func(func(ctx context.Context, args []uint64) ([]uint64, error) {
//	        return args, nil
//	    })},
//	}).Await(ctx)
//	if err != nil {
//	    log.Fatal(err) // WebAssembly.instantiate(): Import #0 ...
//	}
//	defer inst.Close(ctx)
//
// # Errors
//
// Failures are reported as *errors.APIError with the kind CompileError,
// LinkError or RuntimeError. Messages are prefixed with the entry point
// that raised them, e.g.
//
//	WebAssembly.compile(): BufferSource argument is empty
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT thread-safe
// and should be used by a single goroutine, or access must be synchronized.
package wasmjsapi
