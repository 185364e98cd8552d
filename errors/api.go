package errors

import stderrors "errors"

// APIKind is the JS-API error class an error is reported as.
type APIKind string

const (
	CompileError APIKind = "CompileError"
	LinkError    APIKind = "LinkError"
	RuntimeError APIKind = "RuntimeError"
)

// Entry points used as message prefixes.
const (
	ContextCompile          = "WebAssembly.compile()"
	ContextCompileStreaming = "WebAssembly.compileStreaming()"
	ContextModule           = "WebAssembly.Module()"
	ContextInstantiate      = "WebAssembly.instantiate()"
	ContextInstance         = "WebAssembly.Instance()"
)

// APIError is an error surfaced through the public compile and instantiate
// API. Error() renders "<Context>: <Message>".
type APIError struct {
	Cause   error
	Kind    APIKind
	Context string
	Message string
}

// Targets for errors.Is matching by kind only.
var (
	ErrCompile = &APIError{Kind: CompileError}
	ErrLink    = &APIError{Kind: LinkError}
	ErrRuntime = &APIError{Kind: RuntimeError}
)

func (e *APIError) Error() string {
	if e.Context == "" {
		return e.Message
	}
	return e.Context + ": " + e.Message
}

// Unwrap returns the decoder, validator or backend error.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is matches another APIError of the same kind. A target without a kind
// matches any APIError.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// Compile wraps cause as a CompileError raised by the given entry point.
func Compile(context string, cause error) *APIError {
	return &APIError{Kind: CompileError, Context: context, Message: cause.Error(), Cause: cause}
}

// Link creates a LinkError with an explicit message.
func Link(context, message string, cause error) *APIError {
	return &APIError{Kind: LinkError, Context: context, Message: message, Cause: cause}
}

// Runtime wraps cause as a RuntimeError.
func Runtime(context string, cause error) *APIError {
	return &APIError{Kind: RuntimeError, Context: context, Message: cause.Error(), Cause: cause}
}

// KindOf returns the API kind of the first APIError in err's chain.
func KindOf(err error) (APIKind, bool) {
	var api *APIError
	if stderrors.As(err, &api) {
		return api.Kind, true
	}
	return "", false
}
