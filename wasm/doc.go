// Package wasm decodes, encodes and validates WebAssembly core modules.
//
// The decoder tracks the absolute offset of every byte it consumes so that
// failures can be reported the way browser engines report them, as
// "<message> @+<offset>":
//
//	_, err := wasm.ParseModule(data)
//	// expected magic word 00 61 73 6d, found 01 02 03 04 @+0
//
// Validation runs in two stages. Module.Validate checks the module-level
// structure (index spaces, exports, limits, constant expressions) and
// Module.ValidateFunction type-checks a single function body against the
// operand and control stacks:
//
//	m, _ := wasm.ParseModule(data)
//	if err := m.Validate(); err != nil {
//	    return err
//	}
//	for i := range m.Code {
//	    idx := uint32(m.NumImportedFuncs() + i)
//	    if err := m.ValidateFunction(idx); err != nil {
//	        // Compiling wasm function "bad" failed: expected 1 elements
//	        // on the stack for fallthru to @1, found 0 @+94
//	        return err
//	    }
//	}
//
// Function bodies are independent of each other once the module is
// decoded, so ValidateFunction may be called concurrently.
//
// # Supported Features
//
//	- MVP value types, control flow, calls, locals, globals, memory access
//	- Multi-value block types
//	- Sign extension and saturating float-to-int conversions
//	- Reference types (funcref, externref, ref.null, ref.is_null, ref.func)
//	- memory.copy and memory.fill
//
// # Encoding
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics, including the
// function names of the "name" custom section.
package wasm
