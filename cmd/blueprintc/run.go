package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/classify"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/compiler"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/config"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/internal/ctxlog"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/trace"
)

// run executes one blueprintc invocation. Graphs are compiled independently;
// a failing graph does not stop the others, and every failure is reported.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger := ctxlog.FromContext(ctx)

	reg, err := loadRegistry(cfg.Libraries)
	if err != nil {
		return err
	}
	if cfg.List {
		listNodes(stdout, reg)
		return nil
	}

	cache := classify.NewCache()
	if err := cache.Warm(ctx, reg); err != nil {
		return fmt.Errorf("node library: %w", err)
	}

	macros, err := loadMacros(cfg.Macros)
	if err != nil {
		return err
	}

	c := compiler.New(reg,
		compiler.WithPackage(cfg.Package),
		compiler.WithFormat(cfg.Format),
		compiler.WithHeader(cfg.Header),
		compiler.WithMacros(macros),
		compiler.WithCache(cache),
		compiler.WithHooks(traceHook(cfg.Trace, stderr)),
	)

	var outputs map[string]string
	if !cfg.Validate {
		if outputs, err = outputPaths(cfg.OutputDir, cfg.Inputs); err != nil {
			return err
		}
	}

	// mu guards failed and stdout; workers share both.
	var (
		mu     sync.Mutex
		failed []string
	)
	fail := func(input string, err error) {
		logger.ErrorContext(ctx, "graph failed", "graph", input, "error", err)
		mu.Lock()
		failed = append(failed, input)
		mu.Unlock()
	}
	report := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(stdout, format, args...)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, input := range cfg.Inputs {
		input := input // per-iteration copy; go directive is below 1.22
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			graph, err := blueprint.LoadGraph(input)
			if err != nil {
				fail(input, err)
				return nil
			}
			if cfg.Validate {
				if err := c.Validate(gctx, graph); err != nil {
					fail(input, err)
					return nil
				}
				report("%s: validation passed\n", input)
				return nil
			}
			res, err := c.Compile(gctx, graph)
			if err != nil {
				fail(input, err)
				return nil
			}
			out := outputs[input]
			if err := blueprint.WriteFileAtomic(out, res.Source); err != nil {
				fail(input, err)
				return nil
			}
			logger.DebugContext(gctx, "graph compiled", "graph", input, "output", out,
				"entries", len(res.Entries), "imports", len(res.Imports), "fingerprint", res.Fingerprint)
			report("Generated: %s\n", out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.InfoContext(ctx, "done", "graphs", len(cfg.Inputs), "failed", len(failed),
		"duration", time.Since(start).Round(time.Millisecond))

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d graphs failed", len(failed), len(cfg.Inputs))
	}
	return nil
}

// loadRegistry builds the standard library plus every file matching globs.
func loadRegistry(globs []string) (*registry.Registry, error) {
	b, err := registry.NewStandardBuilder()
	if err != nil {
		return nil, err
	}
	for _, pattern := range globs {
		dir, file := filepath.Split(pattern)
		if dir == "" {
			dir = "."
		}
		if err := b.LoadFS(os.DirFS(dir), file); err != nil {
			return nil, fmt.Errorf("node library %s: %w", pattern, err)
		}
	}
	return b.Build()
}

// loadMacros reads macro definitions. Each graph is registered under its
// name, which defaults to the file name.
func loadMacros(globs []string) (map[string]*blueprint.GraphDescription, error) {
	lib := make(map[string]*blueprint.GraphDescription)
	for _, pattern := range globs {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("macros %s: %w", pattern, err)
		}
		for _, path := range paths {
			g, err := blueprint.LoadGraph(path)
			if err != nil {
				return nil, fmt.Errorf("macro: %w", err)
			}
			if _, dup := lib[g.Name]; dup {
				return nil, fmt.Errorf("macro %q defined twice (%s)", g.Name, path)
			}
			lib[g.Name] = g
		}
	}
	return lib, nil
}

// outputPath places <name>_gen.go in dir, or next to the input when dir is
// empty.
func outputPath(dir, input string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + "_gen.go"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

// outputPaths maps every input to its output file. Two inputs that would
// write the same file are rejected before anything is compiled.
func outputPaths(dir string, inputs []string) (map[string]string, error) {
	outputs := make(map[string]string, len(inputs))
	owner := make(map[string]string, len(inputs))
	for _, input := range inputs {
		out := outputPath(dir, input)
		key := filepath.Clean(out)
		if prev, dup := owner[key]; dup {
			if prev == input {
				return nil, fmt.Errorf("graph %s given twice", input)
			}
			return nil, fmt.Errorf("%s and %s both write %s", prev, input, out)
		}
		owner[key] = input
		outputs[input] = out
	}
	return outputs, nil
}

func traceHook(mode string, w io.Writer) trace.Hook {
	switch mode {
	case "print":
		return trace.NewPrintHook(w)
	case "json":
		return trace.NewWriterHook(w)
	}
	return trace.NoopHook{}
}

// listNodes prints the registry grouped by category.
func listNodes(w io.Writer, reg *registry.Registry) {
	groups := reg.ByCategory()
	for _, cat := range reg.Categories() {
		fmt.Fprintf(w, "%s:\n", cat)
		for _, m := range groups[cat] {
			fmt.Fprintf(w, "  %-20s %-12s %s\n", m.Name, m.Kind, signature(m))
			for _, doc := range m.Documentation {
				fmt.Fprintf(w, "  %-20s %s\n", "", doc)
			}
		}
	}
}

func signature(m *registry.NodeMetadata) string {
	params := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		params = append(params, p.Name+" "+p.Type)
	}
	sig := "(" + strings.Join(params, ", ") + ")"
	if m.HasOutput() {
		sig += " " + m.Output() + " " + m.ReturnType
	}
	if len(m.ExecOutputs) > 0 {
		sig += " -> " + strings.Join(m.ExecOutputs, "|")
	}
	return sig
}
