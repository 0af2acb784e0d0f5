package compiler

import (
	"fmt"
	"go/parser"
	"go/token"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/dataflow"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// Variable accessor node types are "get_<name>" and "set_<name>".
const (
	getterPrefix = "get_"
	setterPrefix = "set_"
	setterPin    = "value"
)

// declareVariables checks the graph variables and builds the registry the
// compilation runs against: the compiler registry plus one getter and one
// setter per valid variable.
func (cu *compilation) declareVariables(vars []blueprint.Variable) []error {
	cu.reg = cu.c.reg
	if len(vars) == 0 {
		return nil
	}

	var (
		errs  []error
		extra []*registry.NodeMetadata
		seen  = make(map[string]bool, len(vars))
	)
	for _, v := range vars {
		if err := checkVariable(v, seen); err != nil {
			errs = append(errs, err)
			continue
		}
		seen[v.Name] = true
		cu.vars = append(cu.vars, v)
		extra = append(extra, getterNode(v), setterNode(v))
	}

	reg, err := cu.c.reg.WithOverlay(extra...)
	if err != nil {
		return append(errs, &blueprint.StructuralError{Msg: fmt.Sprintf("variables: %v", err)})
	}
	cu.reg = reg
	return errs
}

func checkVariable(v blueprint.Variable, seen map[string]bool) error {
	switch {
	case !token.IsIdentifier(v.Name):
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable name %q is not a Go identifier", v.Name)}
	case v.Name == setterPin:
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable name %q is reserved", v.Name)}
	case seen[v.Name]:
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable %q declared twice", v.Name)}
	}
	if v.Type == "" {
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable %q has no type", v.Name)}
	}
	if _, err := parser.ParseExpr(v.Type); err != nil {
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable %q: invalid type %q", v.Name, v.Type)}
	}
	if v.Default != nil && !dataflow.LiteralCompatible(*v.Default, v.Type) {
		return &blueprint.StructuralError{Msg: fmt.Sprintf("variable %q: default %s does not fit type %s", v.Name, v.Default.Kind, v.Type)}
	}
	return nil
}

func getterNode(v blueprint.Variable) *registry.NodeMetadata {
	return &registry.NodeMetadata{
		Name:           getterPrefix + v.Name,
		Kind:           registry.Pure,
		ReturnType:     v.Type,
		FunctionSource: v.Name,
		ReadsState:     true,
		Documentation:  []string{fmt.Sprintf("Reads the graph variable %s.", v.Name)},
		Category:       "Variables",
	}
}

func setterNode(v blueprint.Variable) *registry.NodeMetadata {
	name := setterPrefix + v.Name
	return &registry.NodeMetadata{
		Name:           name,
		Kind:           registry.Function,
		Params:         []registry.Param{{Name: setterPin, Type: v.Type}},
		FunctionSource: fmt.Sprintf("func %s(%s %s) {\n\t%s = %s\n}", name, setterPin, v.Type, v.Name, setterPin),
		Documentation:  []string{fmt.Sprintf("Writes the graph variable %s.", v.Name)},
		Category:       "Variables",
	}
}
