package harness

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasm-jsapi/errors"
	"github.com/wippyai/wasm-jsapi/runtime"
)

const compilePrefix = errors.ContextCompile + ": "

// MismatchError reports a rejection whose message differs from the
// expected one.
type MismatchError struct {
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("compile error mismatch:\n  want: %s\n  got:  %s", e.Want, e.Got)
}

// ErrUnexpectedSuccess is returned when a compile that should fail
// resolves.
var ErrUnexpectedSuccess = stderrors.New("compile succeeded, expected a CompileError")

// AssertCompiles compiles buf and fails if the promise rejects.
func AssertCompiles(ctx context.Context, rt *runtime.Runtime, buf []byte) error {
	mod, err := rt.Compile(ctx, buf).Await(ctx)
	if err != nil {
		return fmt.Errorf("expected compile to succeed: %w", err)
	}
	return mod.Close(ctx)
}

// AssertCompileError compiles buf and expects a CompileError whose message
// is exactly "WebAssembly.compile(): " followed by detail. A rejection that
// is not a CompileError is returned unchanged.
func AssertCompileError(ctx context.Context, rt *runtime.Runtime, buf []byte, detail string) error {
	mod, err := rt.Compile(ctx, buf).Await(ctx)
	if err == nil {
		mod.Close(ctx)
		return ErrUnexpectedSuccess
	}
	if kind, ok := errors.KindOf(err); !ok || kind != errors.CompileError {
		return err
	}
	if want := compilePrefix + detail; err.Error() != want {
		return &MismatchError{Want: want, Got: err.Error()}
	}
	return nil
}

// AssertInstantiates compiles buf and instantiates it with imports.
func AssertInstantiates(ctx context.Context, rt *runtime.Runtime, buf []byte, imports runtime.Imports) error {
	res, err := rt.InstantiateBytes(ctx, buf, imports).Await(ctx)
	if err != nil {
		return fmt.Errorf("expected instantiate to succeed: %w", err)
	}
	return res.Instance.Close(ctx)
}
