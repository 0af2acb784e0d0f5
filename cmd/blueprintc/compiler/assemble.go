package compiler

import (
	"bytes"
	"fmt"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"path"
	"sort"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/classify"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/inline"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// definitions returns the node types emitted as package-level functions,
// sorted by name: function nodes and pure nodes with a full function
// template.
func (cu *compilation) definitions() []*registry.NodeMetadata {
	var defs []*registry.NodeMetadata
	for _, meta := range cu.used {
		switch {
		case meta.Kind == registry.Function:
		case meta.Kind == registry.Pure && cu.types[meta.Name].Class == classify.SimpleFunction:
		default:
			continue
		}
		defs = append(defs, meta)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// imports returns the imports of every emitted node type, sorted by path.
func (cu *compilation) imports() []registry.Import {
	seen := make(map[registry.Import]bool)
	var out []registry.Import
	for _, meta := range cu.used {
		for _, imp := range meta.Imports {
			if !seen[imp] {
				seen[imp] = true
				out = append(out, imp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// checkNames rejects two package-level declarations with the same name.
func (cu *compilation) checkNames(defs []*registry.NodeMetadata) error {
	owners := make(map[string][]string)
	for _, v := range cu.vars {
		owners[v.Name] = append(owners[v.Name], "variable "+v.Name)
	}
	for _, d := range defs {
		owners[d.Name] = append(owners[d.Name], "node type "+d.Name)
	}
	for _, e := range cu.entries {
		owners[e.name] = append(owners[e.name], e.nodeID)
	}
	for _, imp := range cu.imports() {
		name := imp.Name
		if name == "" {
			name = path.Base(imp.Path)
		}
		if name == "_" || name == "." {
			continue
		}
		owners[name] = append(owners[name], "import "+imp.Path)
	}

	names := make([]string, 0, len(owners))
	for name := range owners {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if o := owners[name]; len(o) > 1 {
			if allImports(o) {
				continue
			}
			return &blueprint.DuplicateEmissionError{Name: name, NodeIDs: o}
		}
	}
	return nil
}

// allImports tolerates the same package name imported more than once; the
// import set itself is deduplicated by path.
func allImports(owners []string) bool {
	for _, o := range owners {
		if !strings.HasPrefix(o, "import ") {
			return false
		}
	}
	return true
}

// assemble concatenates variables, definitions and entry functions into one
// file, adds imports, formats it and checks that the result parses.
func (cu *compilation) assemble() ([]byte, error) {
	defs := cu.definitions()
	if err := cu.checkNames(defs); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if cu.c.header {
		fmt.Fprintf(&buf, "// Code generated by blueprintc from graph %q. DO NOT EDIT.\n\n", cu.name)
	}
	fmt.Fprintf(&buf, "package %s\n", cu.c.pkg)

	if len(cu.vars) > 0 {
		buf.WriteString("\nvar (\n")
		for _, v := range cu.vars {
			fmt.Fprintf(&buf, "\t%s %s", v.Name, v.Type)
			if v.Default != nil {
				lit, err := inline.Render(v.Default.Expr())
				if err != nil {
					return nil, &blueprint.TemplateError{Msg: fmt.Sprintf("default of variable %s", v.Name), Cause: err}
				}
				fmt.Fprintf(&buf, " = %s", lit)
			}
			buf.WriteString("\n")
		}
		buf.WriteString(")\n")
	}

	for _, d := range defs {
		buf.WriteString("\n")
		for _, line := range d.Documentation {
			fmt.Fprintf(&buf, "// %s\n", line)
		}
		buf.WriteString(strings.TrimSpace(d.FunctionSource))
		buf.WriteString("\n")
	}

	for _, e := range cu.entries {
		buf.WriteString("\n")
		buf.WriteString(strings.TrimSpace(e.source))
		buf.WriteString("\n")
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, cu.name+".go", buf.Bytes(), parser.ParseComments)
	if err != nil {
		return nil, &blueprint.TemplateError{Msg: "generated source does not parse", Cause: err}
	}
	for _, imp := range cu.imports() {
		if imp.Name != "" {
			astutil.AddNamedImport(fset, file, imp.Name, imp.Path)
		} else {
			astutil.AddImport(fset, file, imp.Path)
		}
	}

	var out bytes.Buffer
	if cu.c.format {
		err = format.Node(&out, fset, file)
	} else {
		cfg := printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}
		err = cfg.Fprint(&out, fset, file)
	}
	if err != nil {
		return nil, &blueprint.TemplateError{Msg: "print generated source", Cause: err}
	}
	if _, err := parser.ParseFile(token.NewFileSet(), cu.name+".go", out.Bytes(), parser.SkipObjectResolution); err != nil {
		return nil, &blueprint.TemplateError{Msg: "generated source does not parse", Cause: err}
	}
	return out.Bytes(), nil
}
