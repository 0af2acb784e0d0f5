// blueprintc compiles node-based blueprint graphs into Go source.
//
// Usage:
//
//	blueprintc [-config=blueprintc.toml] [-out=gen] graph.json [level.yaml ...]
//	blueprintc -validate graph.json
//	blueprintc -list
//
// Each graph file produces <name>_gen.go: one function per event node, one
// definition per function node type it calls, and package-level variables.
// Node types come from the built-in library plus any -lib files, which are Go
// sources annotated with //bp: directives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/mxkacsa/blueprint/cmd/blueprintc/config"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/internal/ctxlog"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "blueprintc: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, cfg.Logger(os.Stderr))

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "blueprintc: %v\n", err)
		stop()
		os.Exit(1)
	}
}
