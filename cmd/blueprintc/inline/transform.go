package inline

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"

	"golang.org/x/tools/go/ast/astutil"

	blueprint "github.com/mxkacsa/blueprint"
)

// SubstituteParams replaces references to the named parameters under node
// with copies of the given expressions and returns the rewritten node.
//
// Selector fields, composite literal keys and declared names are left alone.
// A replacement that is not a primary expression is parenthesized when it
// lands in an operand position, so precedence in the template is preserved.
func SubstituteParams(node ast.Node, subst map[string]ast.Expr) ast.Node {
	if len(subst) == 0 {
		return node
	}
	return astutil.Apply(node, func(c *astutil.Cursor) bool {
		ident, ok := c.Node().(*ast.Ident)
		if !ok {
			return true
		}
		repl, ok := subst[ident.Name]
		if !ok || isDeclName(c) {
			return true
		}
		expr := CloneExpr(repl)
		if needsParens(c) && !isPrimary(expr) {
			expr = &ast.ParenExpr{X: expr}
		}
		c.Replace(expr)
		return false
	}, nil)
}

// isDeclName reports whether the identifier at c names something rather than
// referring to a value.
func isDeclName(c *astutil.Cursor) bool {
	switch p := c.Parent().(type) {
	case *ast.SelectorExpr:
		return c.Name() == "Sel"
	case *ast.KeyValueExpr:
		return c.Name() == "Key"
	case *ast.AssignStmt:
		return p.Tok == token.DEFINE && c.Name() == "Lhs"
	case *ast.RangeStmt:
		return p.Tok == token.DEFINE && (c.Name() == "Key" || c.Name() == "Value")
	case *ast.ValueSpec, *ast.Field, *ast.TypeSpec:
		return c.Name() == "Names" || c.Name() == "Name"
	case *ast.FuncDecl, *ast.LabeledStmt, *ast.BranchStmt:
		return c.Name() == "Name" || c.Name() == "Label"
	}
	return false
}

// needsParens reports whether a replacement at c is an operand whose binding
// could change without parentheses.
func needsParens(c *astutil.Cursor) bool {
	switch c.Parent().(type) {
	case *ast.BinaryExpr, *ast.UnaryExpr, *ast.StarExpr:
		return true
	case *ast.SelectorExpr, *ast.IndexExpr, *ast.IndexListExpr, *ast.SliceExpr, *ast.TypeAssertExpr:
		return c.Name() == "X"
	case *ast.CallExpr:
		return c.Name() == "Fun"
	}
	return false
}

func isPrimary(e ast.Expr) bool {
	switch e.(type) {
	case *ast.Ident, *ast.BasicLit, *ast.CompositeLit, *ast.CallExpr, *ast.ParenExpr,
		*ast.SelectorExpr, *ast.IndexExpr, *ast.IndexListExpr, *ast.SliceExpr,
		*ast.TypeAssertExpr, *ast.FuncLit:
		return true
	}
	return false
}

// ReplaceExecOutputs splices bodies[label] in place of every
// execOutput("label") statement in fn. An empty body removes the statement.
// A placeholder used as an expression, or a label missing from bodies, is a
// TemplateError.
func ReplaceExecOutputs(fn *ast.FuncDecl, bodies map[string][]ast.Stmt) error {
	var err error
	astutil.Apply(fn.Body, func(c *astutil.Cursor) bool {
		if err != nil {
			return false
		}
		switch n := c.Node().(type) {
		case *ast.ExprStmt:
			call, ok := n.X.(*ast.CallExpr)
			if !ok {
				return true
			}
			label, isMarker, lerr := placeholderLabel(call)
			if lerr != nil {
				err = lerr
				return false
			}
			if !isMarker {
				return true
			}
			body, found := bodies[label]
			if !found {
				err = &blueprint.TemplateError{
					Msg:   fmt.Sprintf("no code for placeholder %q", label),
					Extra: []string{label},
				}
				return false
			}
			splice(c, CloneStmts(body))
			return false
		case *ast.CallExpr:
			if _, isMarker, _ := placeholderLabel(n); isMarker {
				err = &blueprint.TemplateError{Msg: fmt.Sprintf("%s used as an expression", Marker)}
				return false
			}
		}
		return true
	}, nil)
	return err
}

func splice(c *astutil.Cursor, stmts []ast.Stmt) {
	if c.Index() < 0 {
		// Single statement slot (labeled statement body).
		if len(stmts) == 0 {
			c.Replace(&ast.EmptyStmt{Implicit: true})
		} else {
			c.Replace(&ast.BlockStmt{List: stmts})
		}
		return
	}
	for _, s := range stmts {
		c.InsertBefore(s)
	}
	c.Delete()
}

// InlineFunc parses a function template, substitutes its parameters and
// splices the placeholder bodies, returning the resulting body statements.
// Every parameter of the template must have an entry in params.
func InlineFunc(src string, params map[string]ast.Expr, bodies map[string][]ast.Stmt) ([]ast.Stmt, error) {
	fn, err := ParseFunc(src)
	if err != nil {
		return nil, err
	}
	return InlineDecl(fn, params, bodies)
}

// InlineDecl is InlineFunc on an already parsed template. fn is not modified.
func InlineDecl(fn *ast.FuncDecl, params map[string]ast.Expr, bodies map[string][]ast.Stmt) ([]ast.Stmt, error) {
	fn = CloneFunc(fn)
	if missing := missingParams(fn, params); len(missing) > 0 {
		return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("no value for parameters %v", missing)}
	}
	if fn.Type.Results != nil && len(fn.Type.Results.List) > 0 {
		return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("inlined function %s must not return a value", fn.Name.Name)}
	}
	fn.Body = SubstituteParams(fn.Body, params).(*ast.BlockStmt)
	if err := ReplaceExecOutputs(fn, bodies); err != nil {
		return nil, err
	}
	return fn.Body.List, nil
}

// InlineExpr parses a pure expression template and substitutes its
// parameters.
func InlineExpr(src string, params map[string]ast.Expr) (ast.Expr, error) {
	expr, err := ParseExpr(src)
	if err != nil {
		return nil, err
	}
	return SubstituteParams(expr, params).(ast.Expr), nil
}

func missingParams(fn *ast.FuncDecl, params map[string]ast.Expr) []string {
	var missing []string
	for _, field := range fn.Type.Params.List {
		for _, name := range field.Names {
			if name.Name == "_" {
				continue
			}
			if _, ok := params[name.Name]; !ok {
				missing = append(missing, name.Name)
			}
		}
	}
	sort.Strings(missing)
	return missing
}
