// Package errors provides structured error types for the wasm-jsapi library.
//
// Internal failures are categorized by Phase (where the error occurred) and
// Kind (error category), with an optional path and cause chain:
//
//	err := errors.New(errors.PhaseLinking, errors.KindMissingImport).
//		Path("m", "q").
//		Detail("function import requires a callable").
//		Build()
//
// Errors that leave the public API are APIError values. They carry the
// JS-API class (CompileError, LinkError, RuntimeError) and the entry point
// that raised them, and render exactly like engine messages:
//
//	err := errors.Compile(errors.ContextCompile, cause)
//	// WebAssembly.compile(): Compiling wasm function "bad" failed: ...
//
//	if errors.Is(err, errors.ErrCompile) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
