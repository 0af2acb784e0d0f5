// Package classify decides how a node template is emitted: inlined as an
// expression, called as a function, or inlined as a control-flow block with
// execution placeholders.
package classify

import (
	"fmt"
	"sort"
	"strings"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/inline"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// Class is the emission strategy of a template.
type Class int

const (
	PureExpression Class = iota + 1
	SimpleFunction
	ControlFlow
)

func (c Class) String() string {
	switch c {
	case PureExpression:
		return "PureExpression"
	case SimpleFunction:
		return "SimpleFunction"
	case ControlFlow:
		return "ControlFlow"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// TemplateType is the classification of one template.
type TemplateType struct {
	Class Class
	// ExecPlaceholders lists placeholder labels in order of first appearance.
	// Only set for ControlFlow.
	ExecPlaceholders []string
}

func (t TemplateType) String() string {
	if t.Class == ControlFlow {
		return fmt.Sprintf("ControlFlow{%s}", strings.Join(t.ExecPlaceholders, ", "))
	}
	return t.Class.String()
}

// Classify inspects a template. Templates without a function wrapper are pure
// expressions; functions without execOutput placeholders are simple
// functions; the rest are control flow.
func Classify(src string) (TemplateType, error) {
	if !inline.HasFuncWrapper(src) {
		if _, err := inline.ParseExpr(src); err != nil {
			return TemplateType{}, err
		}
		return TemplateType{Class: PureExpression}, nil
	}
	fn, err := inline.ParseFunc(src)
	if err != nil {
		return TemplateType{}, err
	}
	labels, err := inline.Placeholders(fn.Body)
	if err != nil {
		return TemplateType{}, err
	}
	if len(labels) == 0 {
		return TemplateType{Class: SimpleFunction}, nil
	}
	return TemplateType{Class: ControlFlow, ExecPlaceholders: labels}, nil
}

// CheckAgainst verifies that a classification agrees with the node's
// registry entry: the kind must allow the class, and a control-flow
// template's placeholders must be exactly the declared exec outputs minus the
// continuation.
func CheckAgainst(t TemplateType, meta *registry.NodeMetadata) error {
	allowed := false
	switch meta.Kind {
	case registry.Pure:
		// A pure node with a multi-statement body is emitted as a helper
		// function and called in expression position.
		allowed = t.Class == PureExpression || t.Class == SimpleFunction
	case registry.Function:
		allowed = t.Class == SimpleFunction
	case registry.ControlFlow:
		allowed = t.Class == ControlFlow
	case registry.Event:
		allowed = t.Class == ControlFlow || t.Class == SimpleFunction
	}
	if !allowed {
		return &blueprint.TemplateError{
			NodeType: meta.Name,
			Msg:      fmt.Sprintf("%s node has a %s template", meta.Kind, t.Class),
		}
	}
	if t.Class == PureExpression && meta.Kind == registry.Pure && !meta.HasOutput() {
		return &blueprint.TemplateError{NodeType: meta.Name, Msg: "pure node has no return type"}
	}

	// Function nodes continue after the call; only inlined templates carry
	// placeholders.
	if meta.Kind == registry.Function || meta.Kind == registry.Pure {
		return nil
	}
	missing, extra := diff(meta.Placeholders(), t.ExecPlaceholders)
	if len(missing) > 0 || len(extra) > 0 {
		return &blueprint.TemplateError{
			NodeType: meta.Name,
			Msg:      "exec outputs do not match template placeholders",
			Missing:  missing,
			Extra:    extra,
		}
	}
	return nil
}

// diff returns declared labels absent from found, and found labels absent
// from declared. Both are sorted.
func diff(declared, found []string) (missing, extra []string) {
	d := make(map[string]bool, len(declared))
	for _, l := range declared {
		d[l] = true
	}
	f := make(map[string]bool, len(found))
	for _, l := range found {
		f[l] = true
		if !d[l] {
			extra = append(extra, l)
		}
	}
	for _, l := range declared {
		if !f[l] {
			missing = append(missing, l)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}
