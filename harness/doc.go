// Package harness asserts the compile contract of a runtime and carries
// the regression scenarios built on it.
//
// Assertions return errors instead of failing a test, so they can run
// from tests, the CLI, or any other driver:
//
//	if err := harness.AssertCompileError(ctx, rt, nil, "BufferSource argument is empty"); err != nil {
//	    t.Fatal(err)
//	}
//
// Run executes scenarios in order and reports one Result per scenario.
package harness
