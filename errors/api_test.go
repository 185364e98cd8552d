package errors

import (
	"errors"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	cause := errors.New(`Compiling wasm function "bad" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+94`)

	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "compile",
			err:  Compile(ContextCompile, cause),
			want: `WebAssembly.compile(): Compiling wasm function "bad" failed: expected 1 elements on the stack for fallthru to @1, found 0 @+94`,
		},
		{
			name: "empty buffer",
			err:  Compile(ContextCompile, errors.New("BufferSource argument is empty")),
			want: "WebAssembly.compile(): BufferSource argument is empty",
		},
		{
			name: "link",
			err:  Link(ContextInstantiate, `Import #0 "m": module is not an object or function`, nil),
			want: `WebAssembly.instantiate(): Import #0 "m": module is not an object or function`,
		},
		{
			name: "no context",
			err:  &APIError{Kind: RuntimeError, Message: "unreachable"},
			want: "unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	cause := errors.New("trap")
	compile := Compile(ContextModule, cause)
	link := Link(ContextInstance, "x", nil)
	rt := Runtime("", cause)

	if !errors.Is(compile, ErrCompile) || errors.Is(compile, ErrLink) {
		t.Error("compile error kind mismatch")
	}
	if !errors.Is(link, ErrLink) || errors.Is(link, ErrRuntime) {
		t.Error("link error kind mismatch")
	}
	if !errors.Is(rt, ErrRuntime) || errors.Is(rt, ErrCompile) {
		t.Error("runtime error kind mismatch")
	}
	if !errors.Is(link, &APIError{}) {
		t.Error("kindless target should match any APIError")
	}
	if !errors.Is(compile, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if errors.Is(cause, ErrCompile) {
		t.Error("plain error should not match")
	}
}

func TestKindOf(t *testing.T) {
	wrapped := Wrap(PhaseRuntime, KindTrap, Runtime("", errors.New("oops")), "call")
	kind, ok := KindOf(wrapped)
	if !ok || kind != RuntimeError {
		t.Errorf("got %q %v, want RuntimeError true", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("plain error has no API kind")
	}
}
