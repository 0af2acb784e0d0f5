// Package inline parses node templates and rewrites them at the AST level:
// parameter references are replaced with caller expressions and execution
// placeholders with the statements of the routed downstream chain.
//
// Templates are Go. A control-flow template marks each exec output with a
// call statement of the form
//
//	execOutput("Label")
//
// which is spliced out and replaced during inlining.
package inline

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"

	blueprint "github.com/mxkacsa/blueprint"
)

// Marker is the name of the execution placeholder call.
const Marker = "execOutput"

// ParseFunc parses a template holding exactly one function declaration.
func ParseFunc(src string) (*ast.FuncDecl, error) {
	file, err := parser.ParseFile(token.NewFileSet(), "template.go", "package template\n\n"+src, parser.SkipObjectResolution)
	if err != nil {
		return nil, &blueprint.TemplateError{Msg: "template does not parse", Cause: err}
	}
	var fn *ast.FuncDecl
	for _, decl := range file.Decls {
		d, ok := decl.(*ast.FuncDecl)
		if !ok {
			return nil, &blueprint.TemplateError{Msg: "template may only declare a function"}
		}
		if fn != nil {
			return nil, &blueprint.TemplateError{Msg: "template declares more than one function"}
		}
		fn = d
	}
	if fn == nil {
		return nil, &blueprint.TemplateError{Msg: "template declares no function"}
	}
	if fn.Body == nil {
		return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("function %s has no body", fn.Name.Name)}
	}
	if fn.Recv != nil {
		return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("function %s must not have a receiver", fn.Name.Name)}
	}
	return fn, nil
}

// ParseExpr parses a pure expression template.
func ParseExpr(src string) (ast.Expr, error) {
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, &blueprint.TemplateError{Msg: "expression template does not parse", Cause: err}
	}
	return expr, nil
}

// HasFuncWrapper reports whether src is a function declaration template
// rather than a bare expression: its first tokens are "func" and a name.
// A function literal expression does not count.
func HasFuncWrapper(src string) bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))
	var s scanner.Scanner
	s.Init(file, []byte(src), nil, scanner.ScanComments)
	var toks []token.Token
	for len(toks) < 2 {
		_, tok, _ := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok == token.COMMENT {
			continue
		}
		toks = append(toks, tok)
	}
	return len(toks) == 2 && toks[0] == token.FUNC && toks[1] == token.IDENT
}

// Placeholders returns the labels of every execOutput call under n, in order
// of first appearance and without duplicates.
func Placeholders(n ast.Node) ([]string, error) {
	var (
		labels []string
		seen   = make(map[string]bool)
		err    error
	)
	ast.Inspect(n, func(node ast.Node) bool {
		if err != nil {
			return false
		}
		call, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}
		label, isMarker, lerr := placeholderLabel(call)
		if lerr != nil {
			err = lerr
			return false
		}
		if isMarker && !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// placeholderLabel reports whether call is an execOutput marker and returns
// its label.
func placeholderLabel(call *ast.CallExpr) (string, bool, error) {
	ident, ok := call.Fun.(*ast.Ident)
	if !ok || ident.Name != Marker {
		return "", false, nil
	}
	if len(call.Args) != 1 {
		return "", true, &blueprint.TemplateError{Msg: fmt.Sprintf("%s takes exactly one label, got %d", Marker, len(call.Args))}
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", true, &blueprint.TemplateError{Msg: fmt.Sprintf("%s label must be a string literal", Marker)}
	}
	label, err := strconv.Unquote(lit.Value)
	if err != nil || label == "" {
		return "", true, &blueprint.TemplateError{Msg: fmt.Sprintf("invalid %s label %s", Marker, lit.Value)}
	}
	return label, true, nil
}

// Render prints an AST node, a []ast.Stmt or []ast.Decl as gofmt-formatted
// source. Positions are ignored, so nodes spliced from several templates
// print cleanly together.
func Render(node any) (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, token.NewFileSet(), node); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}
