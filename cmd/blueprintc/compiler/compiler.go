// Package compiler turns a blueprint graph into a single Go source file.
//
// Compilation runs in strictly ordered phases: validate, normalize (macro
// expansion), classify, analyze (data flow and exec routing, built
// concurrently), emit and assemble. The first failing phase stops the
// compilation; its error carries the phase and the node/pin it concerns.
// Output is all-or-nothing: a Result is only returned for source that parses.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/classify"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/dataflow"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/internal/ctxlog"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/macro"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/routing"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/trace"
)

// Result is a successful compilation.
type Result struct {
	Source      []byte
	Imports     []string // import paths, sorted
	Entries     []string // generated entry functions, in event id order
	Fingerprint string
}

// Compiler compiles graphs against one registry. It is safe for concurrent
// use; compilations share only the registry, the classifier cache and the
// result cache.
type Compiler struct {
	reg     *registry.Registry
	cache   *classify.Cache
	hooks   trace.Hook
	macros  map[string]*blueprint.GraphDescription
	pkg     string
	format  bool
	header  bool
	memoize bool

	mu      sync.Mutex
	results map[string]*Result
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPackage sets the package clause of generated files. Default "main".
func WithPackage(name string) Option {
	return func(c *Compiler) { c.pkg = name }
}

// WithFormat toggles gofmt formatting of the output. Default on.
func WithFormat(enabled bool) Option {
	return func(c *Compiler) { c.format = enabled }
}

// WithHeader toggles the "Code generated" header comment. Default on.
func WithHeader(enabled bool) Option {
	return func(c *Compiler) { c.header = enabled }
}

// WithMacros adds a library of macro definitions available to every graph.
func WithMacros(lib map[string]*blueprint.GraphDescription) Option {
	return func(c *Compiler) {
		for name, def := range lib {
			c.macros[name] = def
		}
	}
}

// WithHooks installs trace hooks.
func WithHooks(h trace.Hook) Option {
	return func(c *Compiler) { c.hooks = h }
}

// WithCache shares a classifier cache between compilers.
func WithCache(cache *classify.Cache) Option {
	return func(c *Compiler) { c.cache = cache }
}

// WithResultCache toggles memoization of results by graph fingerprint.
// Default on.
func WithResultCache(enabled bool) Option {
	return func(c *Compiler) { c.memoize = enabled }
}

// New creates a compiler for reg.
func New(reg *registry.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		reg:     reg,
		hooks:   trace.NoopHook{},
		macros:  make(map[string]*blueprint.GraphDescription),
		pkg:     "main",
		format:  true,
		header:  true,
		memoize: true,
		results: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = classify.NewCache()
	}
	return c
}

// Registry returns the compiler's registry.
func (c *Compiler) Registry() *registry.Registry {
	return c.reg
}

// Compile compiles g. It never returns partial output: on error the Result is
// nil. g is not modified.
func (c *Compiler) Compile(ctx context.Context, g *blueprint.GraphDescription) (*Result, error) {
	if g == nil {
		return nil, &blueprint.StructuralError{Msg: "nil graph"}
	}
	if !token.IsIdentifier(c.pkg) {
		return nil, fmt.Errorf("invalid package name %q", c.pkg)
	}
	logger := ctxlog.FromContext(ctx).With("graph", g.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	start := time.Now()
	c.hooks.OnCompileStart(g.Name)
	res, err := c.compile(ctx, g)
	elapsed := time.Since(start)
	c.hooks.OnCompileEnd(g.Name, float64(elapsed.Microseconds())/1000, err)
	if err != nil {
		logger.DebugContext(ctx, "compile failed", "duration", elapsed, "error", err)
		return nil, err
	}
	logger.DebugContext(ctx, "compile done", "duration", elapsed, "bytes", len(res.Source), "entries", len(res.Entries))
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, g *blueprint.GraphDescription) (*Result, error) {
	cu := &compilation{c: c, name: g.Name, logger: ctxlog.FromContext(ctx)}
	if err := c.phase(ctx, cu, blueprint.PhaseValidate, func() error {
		return firstError(cu.validate(g))
	}); err != nil {
		return nil, err
	}

	// Only structurally valid graphs reach the result cache.
	fp, fpErr := blueprint.Fingerprint(g)
	key := fmt.Sprintf("%s|%s|%t|%t", fp, c.pkg, c.format, c.header)
	if c.memoize && fpErr == nil {
		if res := c.cached(key); res != nil {
			cu.logger.DebugContext(ctx, "result cache hit", "fingerprint", fp)
			return res, nil
		}
	}

	if err := c.runPhases(ctx, cu, g); err != nil {
		return nil, err
	}

	var src []byte
	if err := c.phase(ctx, cu, blueprint.PhaseAssemble, func() error {
		var err error
		src, err = cu.assemble()
		return err
	}); err != nil {
		return nil, err
	}

	res := &Result{Source: src, Imports: cu.importPaths(), Entries: cu.entryNames(), Fingerprint: fp}
	if c.memoize && fpErr == nil {
		c.store(key, res)
	}
	return res.clone(), nil
}

// runPhases runs normalize through emit on a validated graph.
func (c *Compiler) runPhases(ctx context.Context, cu *compilation, g *blueprint.GraphDescription) error {
	if err := c.phase(ctx, cu, blueprint.PhaseNormalize, func() error {
		ng, err := macro.Expand(g, c.macros)
		if err != nil {
			return err
		}
		cu.graph = ng
		return cu.validateExpanded()
	}); err != nil {
		return err
	}

	if err := c.phase(ctx, cu, blueprint.PhaseClassify, cu.classify); err != nil {
		return err
	}

	if err := c.phase(ctx, cu, blueprint.PhaseAnalyze, cu.analyze); err != nil {
		return err
	}

	return c.phase(ctx, cu, blueprint.PhaseEmit, cu.emit)
}

// Validate reports every structural problem of g at once. When the graph is
// structurally sound, the remaining phases run and their first error, if
// any, is reported. The result is nil or a *blueprint.ValidationErrors.
func (c *Compiler) Validate(ctx context.Context, g *blueprint.GraphDescription) error {
	if g == nil {
		return &blueprint.ValidationErrors{Errors: []error{&blueprint.StructuralError{Msg: "nil graph"}}}
	}
	cu := &compilation{c: c, name: g.Name, logger: ctxlog.FromContext(ctx)}
	errs := cu.validate(g)
	for _, err := range errs.Errors {
		stamp(err, blueprint.PhaseValidate)
	}
	if errs.HasErrors() {
		return errs
	}
	if err := c.runPhases(ctx, cu, g); err != nil {
		errs.Add(err)
	}
	return errs.ErrorOrNil()
}

// phase runs fn as phase p, reporting to hooks and the log.
func (c *Compiler) phase(ctx context.Context, cu *compilation, p blueprint.Phase, fn func() error) error {
	c.hooks.OnPhaseStart(cu.name, p)
	start := time.Now()
	err := fn()
	if err != nil {
		stamp(err, p)
	}
	elapsed := time.Since(start)
	c.hooks.OnPhaseEnd(cu.name, p, float64(elapsed.Microseconds())/1000, err)
	cu.logger.DebugContext(ctx, "phase", slog.String("phase", string(p)), slog.Duration("duration", elapsed), slog.Bool("ok", err == nil))
	return err
}

// stamp records the phase on every compile error in err.
func stamp(err error, p blueprint.Phase) {
	var ve *blueprint.ValidationErrors
	if errors.As(err, &ve) {
		for _, e := range ve.Errors {
			stamp(e, p)
		}
		return
	}
	var pe blueprint.PhasedError
	if errors.As(err, &pe) {
		pe.SetPhase(p)
	}
}

func (c *Compiler) cached(key string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := c.results[key]; ok {
		return res.clone()
	}
	return nil
}

func (c *Compiler) store(key string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = res
}

func (r *Result) clone() *Result {
	out := *r
	out.Source = append([]byte(nil), r.Source...)
	out.Imports = append([]string(nil), r.Imports...)
	out.Entries = append([]string(nil), r.Entries...)
	return &out
}

// ============================================================================
// compilation - per-graph state
// ============================================================================

// compilation is the private state of one Compile call.
type compilation struct {
	c      *Compiler
	name   string
	logger *slog.Logger

	reg   *registry.Registry // compiler registry plus variable nodes
	graph *blueprint.GraphDescription
	vars  []blueprint.Variable
	types map[string]classify.TemplateType

	resolver *dataflow.Resolver
	routes   *routing.Routing
	names    *namer

	used    map[string]*registry.NodeMetadata // node types whose code was emitted
	entries []entryFunc
}

type entryFunc struct {
	nodeID string
	name   string
	source string
}

func (cu *compilation) meta(nodeID string) *registry.NodeMetadata {
	m, _ := cu.reg.Get(cu.graph.Nodes[nodeID].NodeType)
	return m
}

func (cu *compilation) classify() error {
	types := make(map[string]classify.TemplateType)
	for _, id := range cu.graph.NodeIDs() {
		nt := cu.graph.Nodes[id].NodeType
		if _, done := types[nt]; done {
			continue
		}
		meta, _ := cu.reg.Get(nt)
		t, err := cu.c.cache.Get(meta)
		if err != nil {
			return err
		}
		types[nt] = t
	}
	cu.types = types
	cu.logger.Debug("classified node types", "types", len(types))
	return nil
}

// analyze builds the data-flow resolver and the routing table concurrently.
// The resolver's error wins when both fail, so the reported error does not
// depend on scheduling.
func (cu *compilation) analyze() error {
	var (
		eg                  errgroup.Group
		resolver            *dataflow.Resolver
		routes              *routing.Routing
		resolveErr, wireErr error
	)
	eg.Go(func() error {
		resolver, resolveErr = dataflow.Build(cu.graph, cu.reg)
		return nil
	})
	eg.Go(func() error {
		routes = routing.Build(cu.graph)
		wireErr = checkExecWires(cu.graph, cu.reg)
		return nil
	})
	_ = eg.Wait()
	if resolveErr != nil {
		return resolveErr
	}
	if wireErr != nil {
		return wireErr
	}
	cu.resolver = resolver
	cu.routes = routes
	cu.names = newNamer(cu.graph.NodeIDs())
	cu.logger.Debug("analysis done", "pure_nodes", len(resolver.PureOrder()), "exec_routes", routes.Routes())
	return nil
}

// emit generates one function per event node, in node id order.
func (cu *compilation) emit() error {
	cu.used = make(map[string]*registry.NodeMetadata)
	for _, id := range cu.graph.NodeIDs() {
		meta := cu.meta(id)
		if meta.Kind != registry.Event {
			continue
		}
		src, err := newEntryEmitter(cu, id).emit()
		if err != nil {
			return err
		}
		cu.entries = append(cu.entries, entryFunc{nodeID: id, name: meta.FuncName(), source: src})
	}
	return nil
}

func (cu *compilation) entryNames() []string {
	names := make([]string, len(cu.entries))
	for i, e := range cu.entries {
		names[i] = e.name
	}
	return names
}

func (cu *compilation) importPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, imp := range cu.imports() {
		if !seen[imp.Path] {
			seen[imp.Path] = true
			paths = append(paths, imp.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
