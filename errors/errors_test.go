package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLinking,
				Kind:   KindMissingImport,
				Path:   []string{"m", "q"},
				Detail: "function import requires a callable",
			},
			contains: []string{"[linking]", "missing_import", "m.q", "requires a callable"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[decode]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindTrap,
				Detail: "call f",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[runtime]", "trap", "call f", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseCompile, KindInvalidData, cause, "lower module")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if got := errors.Unwrap(err); got != cause {
		t.Errorf("Unwrap: got %v, want %v", got, cause)
	}
}

func TestError_Is(t *testing.T) {
	err := InvalidInput(PhaseLoad, "empty path")

	if !errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindInvalidInput}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindNotFound}) {
		t.Error("different kind should not match")
	}
	if errors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindInvalidInput}) {
		t.Error("different phase should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseInstantiate, KindInstantiation).
		Path("env", "memory").
		Value(3).
		Cause(cause).
		Detail("memory %s", "too small").
		Build()

	if err.Phase != PhaseInstantiate || err.Kind != KindInstantiation {
		t.Errorf("phase/kind: got %s/%s", err.Phase, err.Kind)
	}
	if strings.Join(err.Path, ".") != "env.memory" {
		t.Errorf("path: got %v", err.Path)
	}
	if err.Value != 3 {
		t.Errorf("value: got %v", err.Value)
	}
	if err.Detail != "memory too small" {
		t.Errorf("detail: got %q", err.Detail)
	}
	if err.Cause != cause {
		t.Errorf("cause: got %v", err.Cause)
	}

	plain := New(PhaseValidate, KindInvalidData).Detail("memory too small").Build()
	if plain.Detail != "memory too small" {
		t.Errorf("detail without args: got %q", plain.Detail)
	}

	formatted := New(PhaseValidate, KindInvalidData).Detail("%d%% used", 100).Build()
	if formatted.Detail != "100% used" {
		t.Errorf("formatted detail: got %q", formatted.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
		want  string
	}{
		{"unsupported", Unsupported(PhaseLinking, "table imports"), PhaseLinking, KindUnsupported, "table imports"},
		{"out of bounds", OutOfBounds(PhaseRuntime, []string{"memory"}, 70000, 65536), PhaseRuntime, KindOutOfBounds, "index 70000 out of bounds (length 65536)"},
		{"not initialized", NotInitialized(PhaseRuntime, "instance"), PhaseRuntime, KindNotInitialized, "instance not initialized"},
		{"not found", NotFound(PhaseRuntime, "export", "run"), PhaseRuntime, KindNotFound, `export "run" not found`},
		{"instantiation", Instantiation(errors.New("x")), PhaseInstantiate, KindInstantiation, "instantiate module"},
		{"load", Load("read file", errors.New("x")), PhaseLoad, KindInvalidData, "read file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("phase: got %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("kind: got %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Detail != tt.want {
				t.Errorf("detail: got %q, want %q", tt.err.Detail, tt.want)
			}
		})
	}
}

func TestMissingImportsError(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		err := &MissingImportsError{}
		if !strings.Contains(err.Error(), "no imports specified") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("grouped by module", func(t *testing.T) {
		err := &MissingImportsError{}
		err.Add("m", "q", "function", "")
		err.Add("env", "memory", "memory", "memory import is not supported")
		err.Add("m", "r", "function", "function import requires a callable")

		msg := err.Error()
		for _, s := range []string{
			"missing 3 import(s)",
			"  m:\n    - q (function)\n    - r (function): function import requires a callable",
			"  env:\n    - memory (memory): memory import is not supported",
		} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q does not contain %q", msg, s)
			}
		}
		if strings.Index(msg, "  m:") > strings.Index(msg, "  env:") {
			t.Error("modules should keep first-seen order")
		}
	})

	t.Run("is", func(t *testing.T) {
		var err error = &MissingImportsError{}
		if !errors.Is(err, &MissingImportsError{}) {
			t.Error("errors.Is should match MissingImportsError")
		}
		var target *MissingImportsError
		wrapped := Link(ContextInstantiate, "Import #0 \"m\": module is not an object or function", err)
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find MissingImportsError through a LinkError")
		}
	})

	t.Run("causes", func(t *testing.T) {
		err := &MissingImportsError{}
		err.Add("m", "q", "function", "")
		err.AddCause("env", "memory", "memory", "memory import is not supported",
			Unsupported(PhaseLinking, "memory imports"))
		err.AddCause("x", "y", "function", "module is not an object or function",
			NotFound(PhaseLinking, "import module", "x"))

		if got := len(err.Unwrap()); got != 2 {
			t.Fatalf("Unwrap: got %d causes, want 2", got)
		}
		if !errors.Is(err, &Error{Phase: PhaseLinking, Kind: KindUnsupported}) {
			t.Error("errors.Is should reach the unsupported cause")
		}
		if !errors.Is(err, &Error{Phase: PhaseLinking, Kind: KindNotFound}) {
			t.Error("errors.Is should reach the not found cause")
		}
		if errors.Is(err, &Error{Phase: PhaseLinking, Kind: KindTypeMismatch}) {
			t.Error("errors.Is matched a cause that was never added")
		}
	})
}
