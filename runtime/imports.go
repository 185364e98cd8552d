package runtime

import (
	"fmt"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/errors"
	"github.com/wippyai/wasm-jsapi/wasm"
)

// Imports maps import module names to their members, like the imports
// object passed to WebAssembly.instantiate. Function members are Func
// values or typed Go functions (see Func).
type Imports map[string]map[string]any

// resolveImports matches every import of m against imports. All failures
// are collected in a MissingImportsError; the returned LinkError carries
// the message of the first one, as engines stop at the first bad import.
func resolveImports(entry string, m *wasm.Module, imports Imports) ([]engine.HostFunc, error) {
	if len(m.Imports) > 0 && imports == nil {
		return nil, errors.Link(entry, "Imports argument must be present and must be an object", nil)
	}

	var (
		hosts   []engine.HostFunc
		first   string
		missing = &errors.MissingImportsError{}
		seen    = make(map[[2]string]bool)
	)
	fail := func(imp wasm.Import, msg string, cause error) {
		if first == "" {
			first = msg
		}
		missing.AddCause(imp.Module, imp.Name, wasm.KindName(imp.Desc.Kind), msg, cause)
	}

	for i, imp := range m.Imports {
		members, ok := imports[imp.Module]
		if !ok || members == nil {
			fail(imp, fmt.Sprintf("Import #%d %q: module is not an object or function", i, imp.Module),
				errors.NotFound(errors.PhaseLinking, "import module", imp.Module))
			continue
		}
		if imp.Desc.Kind != wasm.KindFunc {
			kind := wasm.KindName(imp.Desc.Kind)
			fail(imp, fmt.Sprintf("Import #%d %q %q: %s import is not supported", i, imp.Module, imp.Name, kind),
				errors.Unsupported(errors.PhaseLinking, kind+" imports"))
			continue
		}

		ft := m.Types[imp.Desc.TypeIdx]
		fn, callable, err := adaptFunc(members[imp.Name], ft)
		switch {
		case !callable:
			fail(imp, fmt.Sprintf("Import #%d %q %q: function import requires a callable", i, imp.Module, imp.Name),
				errors.New(errors.PhaseLinking, errors.KindMissingImport).Path(imp.Module, imp.Name).Build())
			continue
		case err != nil:
			fail(imp, fmt.Sprintf("Import #%d %q %q: imported function does not match the expected type", i, imp.Module, imp.Name), err)
			continue
		}

		key := [2]string{imp.Module, imp.Name}
		if seen[key] {
			continue
		}
		seen[key] = true
		hosts = append(hosts, hostFunc(fn, imp.Module, imp.Name, ft))
	}

	if first != "" {
		return nil, errors.Link(entry, first, missing)
	}
	return hosts, nil
}
