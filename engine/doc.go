// Package engine provides the compilation pipeline behind the runtime
// package.
//
// # Architecture
//
//	Engine    - Decodes, validates and lowers modules; owns the worker pool
//	Compiled  - A validated module plus its backend compiled code
//	Instance  - A running module in its own wazero runtime
//
// # Compilation Flow
//
//  1. The module is decoded on the caller's goroutine (wasm.ParseModule)
//  2. Module-level checks run (index spaces, limits, exports)
//  3. Function bodies are split into units and validated on a pond pool;
//     the failure with the lowest function index is reported
//  4. wazero lowers the bytes, minus custom sections, into a compilation
//     cache shared by every runtime the engine creates
//
// Validation errors keep the engine message format, for example
//
//	Compiling wasm function "bad" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+94
//
// # Instantiation
//
// Each Instance gets a fresh wazero runtime. Function imports are defined as
// host modules in that runtime before the guest is instantiated, so two
// instances of one module can be linked against different import objects.
//
// # Metrics
//
// When Config.Registerer is set the engine exports Prometheus metrics under
// the wasm_jsapi namespace: compile_total, compile_duration_seconds,
// functions_validated_total and instantiate_total.
//
// # Thread Safety
//
// Engine and Compiled are safe for concurrent use.
// Instance is NOT thread-safe and should be used by a single goroutine.
//
// Most users should use the runtime package for a simpler API.
package engine
