package registry

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/mxkacsa/blueprint/cmd/blueprintc/inline"
)

// Directive prefix for node annotations in library files.
const directivePrefix = "//bp:"

// LoadSource parses an annotated Go library file and registers every
// function carrying a //bp:node directive. Functions without one are
// ignored.
//
// Directives:
//
//	//bp:node <kind> [category=C] [color=#RRGGBB] [func=F] [out=PIN]
//	         [outs=A,B] [in=PIN] [continue=PIN]
//	//bp:doc <text>
//	//bp:import [name] <path>
//	//bp:default <param>=<go expression>
func (b *Builder) LoadSource(filename string, src []byte) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	tf := fset.File(file.Pos())
	text := func(n ast.Node) string {
		return string(src[tf.Offset(n.Pos()):tf.Offset(n.End())])
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}
		d, err := parseDirectives(fn.Doc)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", filename, fn.Name.Name, err)
		}
		if d == nil {
			continue
		}
		meta, err := d.metadata(fn, text)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", filename, fn.Name.Name, err)
		}
		if err := b.Add(meta); err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}
	return nil
}

// LoadFS loads every file of fsys matching pattern, in lexical order.
func (b *Builder) LoadFS(fsys fs.FS, pattern string) error {
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	for _, name := range matches {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := b.LoadSource(path.Base(name), src); err != nil {
			return err
		}
	}
	return nil
}

// directives holds the parsed //bp: annotations of one function.
type directives struct {
	kind     Kind
	keys     map[string]string
	docs     []string
	imports  []Import
	defaults map[string]string
}

// parseDirectives returns nil when the comment group has no //bp:node line.
func parseDirectives(doc *ast.CommentGroup) (*directives, error) {
	d := &directives{keys: make(map[string]string), defaults: make(map[string]string)}
	isNode := false
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, directivePrefix) {
			continue
		}
		verb, rest, _ := strings.Cut(strings.TrimPrefix(c.Text, directivePrefix), " ")
		rest = strings.TrimSpace(rest)
		switch verb {
		case "node":
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				return nil, fmt.Errorf("//bp:node needs a kind")
			}
			kind, err := ParseKind(fields[0])
			if err != nil {
				return nil, err
			}
			d.kind = kind
			for _, kv := range fields[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || v == "" {
					return nil, fmt.Errorf("malformed node option %q", kv)
				}
				d.keys[k] = v
			}
			isNode = true
		case "doc":
			d.docs = append(d.docs, rest)
		case "import":
			fields := strings.Fields(rest)
			switch len(fields) {
			case 1:
				d.imports = append(d.imports, Import{Path: strings.Trim(fields[0], `"`)})
			case 2:
				d.imports = append(d.imports, Import{Name: fields[0], Path: strings.Trim(fields[1], `"`)})
			default:
				return nil, fmt.Errorf("malformed import %q", rest)
			}
		case "default":
			name, expr, ok := strings.Cut(rest, "=")
			if !ok {
				return nil, fmt.Errorf("malformed default %q", rest)
			}
			name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
			if _, err := parser.ParseExpr(expr); err != nil {
				return nil, fmt.Errorf("default for %s: %w", name, err)
			}
			d.defaults[name] = expr
		default:
			return nil, fmt.Errorf("unknown directive %s%s", directivePrefix, verb)
		}
	}
	if !isNode {
		return nil, nil
	}
	return d, nil
}

var knownOptions = map[string]bool{
	"category": true, "color": true, "func": true, "out": true,
	"outs": true, "in": true, "continue": true,
}

func (d *directives) metadata(fn *ast.FuncDecl, text func(ast.Node) string) (*NodeMetadata, error) {
	for k := range d.keys {
		if !knownOptions[k] {
			return nil, fmt.Errorf("unknown node option %q", k)
		}
	}
	meta := &NodeMetadata{
		Name:          fn.Name.Name,
		Kind:          d.kind,
		OutputPin:     d.keys["out"],
		Continuation:  d.keys["continue"],
		Documentation: d.docs,
		Category:      d.keys["category"],
		Color:         d.keys["color"],
		Imports:       d.imports,
		EntryFunc:     d.keys["func"],
	}

	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			return nil, fmt.Errorf("parameters must be named")
		}
		for _, name := range field.Names {
			p := Param{Name: name.Name, Type: text(field.Type)}
			if expr, ok := d.defaults[name.Name]; ok {
				p.Default = &expr
			}
			meta.Params = append(meta.Params, p)
		}
	}
	for name := range d.defaults {
		if _, ok := meta.Param(name); !ok {
			return nil, fmt.Errorf("default for unknown parameter %q", name)
		}
	}

	if res := fn.Type.Results; res != nil && len(res.List) > 0 {
		if len(res.List) > 1 || len(res.List[0].Names) > 1 {
			return nil, fmt.Errorf("nodes have a single data output")
		}
		meta.ReturnType = text(res.List[0].Type)
	}

	if in, ok := d.keys["in"]; ok {
		meta.ExecInputs = strings.Split(in, ",")
	}
	if outs, ok := d.keys["outs"]; ok {
		meta.ExecOutputs = strings.Split(outs, ",")
	} else if d.kind == ControlFlow || d.kind == Event {
		labels, err := inline.Placeholders(fn.Body)
		if err != nil {
			return nil, err
		}
		meta.ExecOutputs = labels
	}

	meta.FunctionSource = text(fn)
	if d.kind == Pure {
		if expr := singleReturn(fn); expr != nil {
			meta.FunctionSource = text(expr)
		}
	}
	return meta, nil
}

// singleReturn returns e when the body is exactly "return e".
func singleReturn(fn *ast.FuncDecl) ast.Expr {
	if fn.Body == nil || len(fn.Body.List) != 1 {
		return nil
	}
	ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
	if !ok || len(ret.Results) != 1 {
		return nil
	}
	return ret.Results[0]
}
