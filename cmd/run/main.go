package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-jsapi/engine"
	"github.com/wippyai/wasm-jsapi/harness"
	"github.com/wippyai/wasm-jsapi/runtime"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

// styled reports whether stdout is a terminal.
var styled = term.IsTerminal(int(os.Stdout.Fd()))

func render(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

type options struct {
	wasmFile  string
	funcName  string
	args      string
	scenarios bool
	workers   int
	backend   string
	verbose   bool
}

func main() {
	var (
		opts        options
		interactive bool
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.funcName, "func", "", "Exported function to call (optional)")
	flag.StringVar(&opts.args, "args", "", "Numeric arguments (comma-separated)")
	flag.BoolVar(&opts.scenarios, "scenarios", false, "Run the regression scenarios and exit")
	flag.IntVar(&opts.workers, "workers", 0, "Validation workers (default GOMAXPROCS)")
	flag.StringVar(&opts.backend, "backend", "", "Backend: auto, interpreter or compiler")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.wasmFile == "" && !opts.scenarios {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       run -scenarios")
		os.Exit(1)
	}

	if opts.verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(log)
			defer func() { _ = log.Sync() }()
		}
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close(ctx)

	switch {
	case opts.scenarios:
		err = runScenarios(ctx, rt)
	case interactive:
		err = runInteractive(rt, opts.wasmFile)
	default:
		err = run(ctx, rt, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		rt.Close(ctx)
		os.Exit(1)
	}
}

func newRuntime(ctx context.Context, opts options) (*runtime.Runtime, error) {
	backend, err := engine.ParseBackend(opts.backend)
	if err != nil {
		return nil, err
	}
	rtOpts := []runtime.Option{runtime.WithBackend(backend)}
	if opts.workers > 0 {
		rtOpts = append(rtOpts, runtime.WithWorkers(opts.workers))
	}
	return runtime.New(ctx, rtOpts...)
}

func runScenarios(ctx context.Context, rt *runtime.Runtime) error {
	failed := 0
	for _, r := range harness.Run(ctx, rt, harness.Scenarios()...) {
		if r.Passed() {
			fmt.Printf("%s %s (%s)\n", render(okStyle, "PASS"), r.Name, r.Duration)
			continue
		}
		failed++
		fmt.Printf("%s %s: %v\n", render(failStyle, "FAIL"), r.Name, r.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

func run(ctx context.Context, rt *runtime.Runtime, opts options) error {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	fmt.Printf("%s %s\n", render(headStyle, "Module:"), opts.wasmFile)
	fmt.Printf("Valid: %v\n", rt.Validate(data))

	mod, err := rt.Compile(ctx, data).Await(ctx)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	fmt.Printf("\n%s\n", render(headStyle, "Imports:"))
	for _, imp := range mod.Imports() {
		fmt.Printf("  %s.%s (%s)\n", imp.Module, imp.Name, imp.Kind)
	}
	funcs := exportedFuncs(mod)
	fmt.Printf("\n%s\n", render(headStyle, "Exports:"))
	for _, exp := range mod.Exports() {
		fmt.Printf("  %s (%s)\n", exp.Name, exp.Kind)
	}
	for _, f := range funcs {
		fmt.Printf("  %s: %s\n", f.name, f.typ)
	}

	if opts.funcName == "" {
		return nil
	}

	var fn *funcInfo
	for i := range funcs {
		if funcs[i].name == opts.funcName {
			fn = &funcs[i]
		}
	}
	if fn == nil {
		return fmt.Errorf("no exported function %q", opts.funcName)
	}

	var raw []string
	if opts.args != "" {
		raw = strings.Split(opts.args, ",")
	}
	args, err := parseArgs(raw, fn.typ)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn.name, err)
	}

	inst, err := rt.NewInstance(ctx, mod, stubImports(mod))
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	fmt.Printf("\nCalling %s(%s)...\n", fn.name, opts.args)
	results, err := inst.Call(ctx, fn.name, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn.name, err)
	}
	fmt.Printf("Result: %s\n", render(okStyle, formatResults(results, fn.typ.Results)))
	return nil
}
