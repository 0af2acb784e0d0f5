package compiler

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/classify"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/dataflow"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/inline"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// entryEmitter generates the function of one event node.
//
// The function body is laid out as:
//
//	var n_f T                  // outputs of executing nodes that are read
//	var n_p T = <expr>         // pure nodes read more than once
//	run_j := func() { ... }    // nodes reached along more than one exec wire
//	<exec chain>
//
// Pure nodes read once, and pure nodes depending on an executing node's
// output, are inlined where they are read.
type entryEmitter struct {
	cu      *compilation
	eventID string
	entry   string

	reached map[string]bool
	refs    map[string]int // incoming exec references within this entry
	order   []string       // reached exec nodes, DFS postorder

	uses  map[string]int // reads of each node's data output
	bound map[string]bool

	emitted   map[string]bool
	announced map[string]bool
}

func newEntryEmitter(cu *compilation, eventID string) *entryEmitter {
	return &entryEmitter{
		cu:        cu,
		eventID:   eventID,
		reached:   make(map[string]bool),
		refs:      make(map[string]int),
		uses:      make(map[string]int),
		bound:     make(map[string]bool),
		emitted:   make(map[string]bool),
		announced: make(map[string]bool),
	}
}

func (e *entryEmitter) emit() (string, error) {
	meta := e.cu.meta(e.eventID)
	e.entry = meta.FuncName()

	if err := e.walk(); err != nil {
		return "", err
	}
	if err := e.collectUses(); err != nil {
		return "", err
	}

	fn, err := inline.ParseFunc(meta.FunctionSource)
	if err != nil {
		return "", withNodeType(err, meta.Name)
	}
	e.announce(e.eventID, meta)

	prologue, err := e.prologue()
	if err != nil {
		return "", err
	}
	bodies, err := e.bodies(e.eventID, meta)
	if err != nil {
		return "", err
	}
	// Event parameters stay parameters of the generated function.
	params := make(map[string]ast.Expr)
	for _, field := range fn.Type.Params.List {
		for _, name := range field.Names {
			params[name.Name] = ast.NewIdent(name.Name)
		}
	}
	stmts, err := inline.InlineDecl(fn, params, bodies)
	if err != nil {
		return "", withNodeType(err, meta.Name)
	}

	decl := &ast.FuncDecl{
		Name: ast.NewIdent(e.entry),
		Type: inline.CloneFunc(fn).Type,
		Body: &ast.BlockStmt{List: append(prologue, stmts...)},
	}
	src, err := inline.Render(decl)
	if err != nil {
		return "", &blueprint.TemplateError{NodeType: meta.Name, Msg: "render entry function", Cause: err}
	}
	e.cu.logger.Debug("emitted entry", "entry", e.entry, "event", e.eventID, "nodes", len(e.emitted))
	return src, nil
}

// walk follows exec wires from the event, counting references and
// rejecting cycles.
func (e *entryEmitter) walk() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		stack = append(stack, id)
		meta := e.cu.meta(id)
		for _, pin := range meta.ExecOutputs {
			for _, t := range e.cu.routes.ConnectedNodes(id, pin) {
				e.refs[t]++
				switch color[t] {
				case grey:
					for i := len(stack) - 1; i >= 0; i-- {
						if stack[i] == t {
							cycle := append([]string(nil), stack[i:]...)
							return &blueprint.CircularDependencyError{Kind: blueprint.CycleExec, Nodes: cycle}
						}
					}
				case white:
					if err := visit(t); err != nil {
						return err
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		e.reached[id] = true
		e.order = append(e.order, id)
		return nil
	}
	return visit(e.eventID)
}

func (e *entryEmitter) isJoin(id string) bool {
	return e.refs[id] > 1
}

// collectUses resolves every input read in this entry and decides which
// values get a variable.
func (e *entryEmitter) collectUses() error {
	visited := make(map[string]bool)
	var visit func(id string) error
	visit = func(id string) error {
		meta := e.cu.meta(id)
		if meta.Kind == registry.Event {
			return nil
		}
		for _, p := range meta.Params {
			ds, err := e.cu.resolver.ResolveInput(id, p.Name)
			if err != nil {
				return err
			}
			if ds.Kind != dataflow.FromConnection {
				continue
			}
			src := ds.SourceNode
			e.uses[src]++
			if e.cu.meta(src).Kind != registry.Pure {
				if !e.reached[src] {
					return &blueprint.StructuralError{
						NodeID: id, Pin: p.Name, ConnectionID: ds.ConnectionID,
						Msg: fmt.Sprintf("reads the output of %q, which does not run in %s", src, e.entry),
					}
				}
				continue
			}
			if !visited[src] {
				visited[src] = true
				if err := visit(src); err != nil {
					return err
				}
			}
		}
		return nil
	}

	ids := make([]string, 0, len(e.reached))
	for id := range e.reached {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}

	for id, n := range e.uses {
		if n > 1 && e.cu.meta(id).Kind == registry.Pure && !e.cu.resolver.DependsOnImpure(id) {
			e.bound[id] = true
		}
	}
	return nil
}

// prologue declares output variables, binds shared pure values and defines
// join closures.
func (e *entryEmitter) prologue() ([]ast.Stmt, error) {
	var stmts []ast.Stmt

	outputs := make([]string, 0, len(e.uses))
	for id := range e.uses {
		if e.cu.meta(id).Kind != registry.Pure {
			outputs = append(outputs, id)
		}
	}
	sort.Strings(outputs)
	for _, id := range outputs {
		decl, err := varDecl(e.cu.names.value(id), e.cu.meta(id).ReturnType, nil)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, decl)
	}

	for _, id := range e.cu.resolver.PureOrder() {
		if !e.bound[id] {
			continue
		}
		expr, err := e.pure(id)
		if err != nil {
			return nil, err
		}
		name := e.cu.names.value(id)
		typ := e.cu.meta(id).ReturnType
		if isAny(typ) {
			stmts = append(stmts, define(name, expr))
			continue
		}
		decl, err := varDecl(name, typ, expr)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, decl)
	}

	for _, id := range e.order {
		if !e.isJoin(id) {
			continue
		}
		body, err := e.node(id)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, define(e.cu.names.run(id), &ast.FuncLit{
			Type: &ast.FuncType{Params: &ast.FieldList{}},
			Body: &ast.BlockStmt{List: body},
		}))
	}
	return stmts, nil
}

// chain emits the nodes wired to id's exec output pin, in wire order.
func (e *entryEmitter) chain(id, pin string) ([]ast.Stmt, error) {
	var out []ast.Stmt
	for _, t := range e.cu.routes.ConnectedNodes(id, pin) {
		if e.isJoin(t) {
			out = append(out, &ast.ExprStmt{X: &ast.CallExpr{Fun: ast.NewIdent(e.cu.names.run(t))}})
			continue
		}
		stmts, err := e.node(t)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// bodies emits the chain of every placeholder of a control-flow or event
// node.
func (e *entryEmitter) bodies(id string, meta *registry.NodeMetadata) (map[string][]ast.Stmt, error) {
	t := e.cu.types[meta.Name]
	bodies := make(map[string][]ast.Stmt, len(t.ExecPlaceholders))
	for _, label := range t.ExecPlaceholders {
		stmts, err := e.chain(id, label)
		if err != nil {
			return nil, err
		}
		bodies[label] = stmts
	}
	return bodies, nil
}

// node emits the statements of one exec node followed by its continuation.
func (e *entryEmitter) node(id string) ([]ast.Stmt, error) {
	if e.emitted[id] {
		return nil, &blueprint.DuplicateEmissionError{Name: id, NodeIDs: []string{id}}
	}
	e.emitted[id] = true
	meta := e.cu.meta(id)
	e.announce(id, meta)

	switch meta.Kind {
	case registry.Function:
		args, err := e.args(id, meta)
		if err != nil {
			return nil, err
		}
		e.use(meta)
		call := &ast.CallExpr{Fun: ast.NewIdent(meta.Name), Args: args}
		var stmt ast.Stmt = &ast.ExprStmt{X: call}
		if e.uses[id] > 0 {
			stmt = &ast.AssignStmt{
				Lhs: []ast.Expr{ast.NewIdent(e.cu.names.value(id))},
				Tok: token.ASSIGN,
				Rhs: []ast.Expr{call},
			}
		}
		stmts := []ast.Stmt{stmt}
		for _, pin := range meta.ExecOutputs {
			next, err := e.chain(id, pin)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, next...)
		}
		return stmts, nil

	case registry.ControlFlow:
		params, err := e.params(id, meta)
		if err != nil {
			return nil, err
		}
		bodies, err := e.bodies(id, meta)
		if err != nil {
			return nil, err
		}
		stmts, err := inline.InlineFunc(meta.FunctionSource, params, bodies)
		if err != nil {
			return nil, withNodeType(err, meta.Name)
		}
		e.use(meta)
		if declaresNames(stmts) {
			stmts = []ast.Stmt{&ast.BlockStmt{List: stmts}}
		}
		if meta.Continuation != "" {
			next, err := e.chain(id, meta.Continuation)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, next...)
		}
		return stmts, nil
	}
	return nil, &blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("%s node %s cannot appear in an execution chain", meta.Kind, meta.Name)}
}

// value returns the expression reading src's output.
func (e *entryEmitter) value(src string) (ast.Expr, error) {
	if e.cu.meta(src).Kind != registry.Pure || e.bound[src] {
		return ast.NewIdent(e.cu.names.value(src)), nil
	}
	return e.pure(src)
}

// pure builds the expression of a pure node: its template with inputs
// substituted, or a call for pure nodes whose template is a full function.
func (e *entryEmitter) pure(id string) (ast.Expr, error) {
	meta := e.cu.meta(id)
	e.announce(id, meta)
	e.use(meta)
	if e.cu.types[meta.Name].Class == classify.PureExpression {
		params, err := e.params(id, meta)
		if err != nil {
			return nil, err
		}
		expr, err := inline.InlineExpr(meta.FunctionSource, params)
		if err != nil {
			return nil, withNodeType(err, meta.Name)
		}
		return expr, nil
	}
	args, err := e.args(id, meta)
	if err != nil {
		return nil, err
	}
	return &ast.CallExpr{Fun: ast.NewIdent(meta.Name), Args: args}, nil
}

func (e *entryEmitter) args(id string, meta *registry.NodeMetadata) ([]ast.Expr, error) {
	args := make([]ast.Expr, 0, len(meta.Params))
	for _, p := range meta.Params {
		expr, err := e.input(id, meta, p)
		if err != nil {
			return nil, err
		}
		args = append(args, expr)
	}
	return args, nil
}

func (e *entryEmitter) params(id string, meta *registry.NodeMetadata) (map[string]ast.Expr, error) {
	params := make(map[string]ast.Expr, len(meta.Params))
	for _, p := range meta.Params {
		expr, err := e.input(id, meta, p)
		if err != nil {
			return nil, err
		}
		params[p.Name] = expr
	}
	return params, nil
}

// input builds the expression for one input pin.
func (e *entryEmitter) input(id string, meta *registry.NodeMetadata, p registry.Param) (ast.Expr, error) {
	ds, err := e.cu.resolver.ResolveInput(id, p.Name)
	if err != nil {
		return nil, err
	}
	var expr ast.Expr
	switch ds.Kind {
	case dataflow.FromConstant:
		expr = ds.Value.Expr()
	case dataflow.FromDefault:
		expr, err = parser.ParseExpr(ds.Default)
		if err != nil {
			return nil, &blueprint.TemplateError{NodeType: meta.Name, Msg: fmt.Sprintf("default of %q does not parse", p.Name), Cause: err}
		}
	case dataflow.FromConnection:
		expr, err = e.value(ds.SourceNode)
		if err != nil {
			return nil, err
		}
	}
	if ds.Convert != "" {
		typ, err := parser.ParseExpr(ds.Convert)
		if err != nil {
			return nil, &blueprint.TemplateError{NodeType: meta.Name, Msg: fmt.Sprintf("parameter type %q does not parse", ds.Convert), Cause: err}
		}
		expr = &ast.CallExpr{Fun: typ, Args: []ast.Expr{expr}}
	}
	return expr, nil
}

func (e *entryEmitter) use(meta *registry.NodeMetadata) {
	e.cu.used[meta.Name] = meta
}

func (e *entryEmitter) announce(id string, meta *registry.NodeMetadata) {
	if e.announced[id] {
		return
	}
	e.announced[id] = true
	e.cu.c.hooks.OnNodeEmitted(e.cu.name, e.entry, id, meta.Name)
}

// ============================================================================
// AST helpers
// ============================================================================

func varDecl(name, typ string, value ast.Expr) (ast.Stmt, error) {
	t, err := parser.ParseExpr(typ)
	if err != nil {
		return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("output type %q of %s does not parse", typ, name), Cause: err}
	}
	spec := &ast.ValueSpec{Names: []*ast.Ident{ast.NewIdent(name)}, Type: t}
	if value != nil {
		spec.Values = []ast.Expr{value}
	}
	return &ast.DeclStmt{Decl: &ast.GenDecl{Tok: token.VAR, Specs: []ast.Spec{spec}}}, nil
}

func define(name string, value ast.Expr) ast.Stmt {
	return &ast.AssignStmt{
		Lhs: []ast.Expr{ast.NewIdent(name)},
		Tok: token.DEFINE,
		Rhs: []ast.Expr{value},
	}
}

func isAny(typ string) bool {
	return typ == "any" || typ == "interface{}" || typ == ""
}

// declaresNames reports whether stmts declare anything at their top level.
// Such blocks are wrapped so two inlined copies of a template can share a
// scope.
func declaresNames(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.DeclStmt:
			return true
		case *ast.AssignStmt:
			if s.Tok == token.DEFINE {
				return true
			}
		}
	}
	return false
}

func withNodeType(err error, nodeType string) error {
	var te *blueprint.TemplateError
	if errors.As(err, &te) && te.NodeType == "" {
		te.NodeType = nodeType
	}
	return err
}
