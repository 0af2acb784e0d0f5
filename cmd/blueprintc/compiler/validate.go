package compiler

import (
	"fmt"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// validate checks g before any transformation and collects every problem it
// finds. It also installs the graph's variable nodes into cu.reg.
func (cu *compilation) validate(g *blueprint.GraphDescription) *blueprint.ValidationErrors {
	errs := &blueprint.ValidationErrors{}
	errs.Add(blueprint.CheckVersion(g.Version))
	for _, err := range cu.declareVariables(g.Variables) {
		errs.Add(err)
	}

	events := 0
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n == nil {
			errs.Add(&blueprint.StructuralError{NodeID: id, Msg: "node is empty"})
			continue
		}
		if n.ID != id {
			errs.Add(&blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("node is stored under a different id %q", n.ID)})
		}
		if name, ok := n.IsMacro(); ok {
			if !cu.hasMacro(g, name) {
				errs.Add(&blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("unknown macro %q", name)})
			}
			continue
		}
		meta, ok := cu.reg.Get(n.NodeType)
		if !ok {
			errs.Add(&blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("unknown node type %q", n.NodeType)})
			continue
		}
		if meta.Kind == registry.Event {
			events++
		}
	}

	seen := make(map[string]bool, len(g.Connections))
	for i, c := range g.Connections {
		switch {
		case c.ID == "":
			errs.Add(&blueprint.StructuralError{Msg: fmt.Sprintf("connection #%d (%s) has no id", i, c)})
		case seen[c.ID]:
			errs.Add(&blueprint.StructuralError{ConnectionID: c.ID, Msg: "duplicate connection id"})
		}
		seen[c.ID] = true
		if !c.Type.Valid() {
			errs.Add(&blueprint.StructuralError{ConnectionID: c.ID, Msg: fmt.Sprintf("unknown connection type %q", c.Type)})
		}
		if _, ok := g.Nodes[c.SourceNode]; !ok {
			errs.Add(&blueprint.StructuralError{ConnectionID: c.ID, NodeID: c.SourceNode, Msg: "source node does not exist"})
		}
		if _, ok := g.Nodes[c.TargetNode]; !ok {
			errs.Add(&blueprint.StructuralError{ConnectionID: c.ID, NodeID: c.TargetNode, Msg: "target node does not exist"})
		}
	}

	if events == 0 {
		errs.Add(&blueprint.StructuralError{Msg: "graph has no entry point (event node)"})
	}
	return errs
}

func (cu *compilation) hasMacro(g *blueprint.GraphDescription, name string) bool {
	if _, ok := g.Macros[name]; ok {
		return true
	}
	_, ok := cu.c.macros[name]
	return ok
}

// validateExpanded checks what macro bodies brought in: node types and
// wire endpoints.
func (cu *compilation) validateExpanded() error {
	for _, id := range cu.graph.NodeIDs() {
		nt := cu.graph.Nodes[id].NodeType
		if _, ok := cu.reg.Get(nt); !ok {
			return &blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("unknown node type %q", nt)}
		}
	}
	for _, c := range cu.graph.Connections {
		for _, end := range []string{c.SourceNode, c.TargetNode} {
			if _, ok := cu.graph.Nodes[end]; !ok {
				return &blueprint.StructuralError{ConnectionID: c.ID, NodeID: end, Msg: "wire endpoint does not exist after macro expansion"}
			}
		}
	}
	return nil
}

// checkExecWires verifies both ends of every execution wire against the
// registry pin lists.
func checkExecWires(g *blueprint.GraphDescription, reg *registry.Registry) error {
	for _, c := range g.Connections {
		if !c.IsExecution() {
			continue
		}
		src, _ := reg.Get(g.Nodes[c.SourceNode].NodeType)
		dst, _ := reg.Get(g.Nodes[c.TargetNode].NodeType)
		switch {
		case src.Kind == registry.Pure:
			return &blueprint.StructuralError{NodeID: c.SourceNode, ConnectionID: c.ID, Msg: fmt.Sprintf("pure node %s has no execution output", src.Name)}
		case !src.HasExecOutput(c.SourcePin):
			return &blueprint.StructuralError{NodeID: c.SourceNode, Pin: c.SourcePin, ConnectionID: c.ID, Msg: fmt.Sprintf("%s has no execution output %q", src.Name, c.SourcePin)}
		case dst.Kind == registry.Event:
			return &blueprint.StructuralError{NodeID: c.TargetNode, ConnectionID: c.ID, Msg: fmt.Sprintf("event %s cannot be an execution target", dst.Name)}
		case dst.Kind == registry.Pure:
			return &blueprint.StructuralError{NodeID: c.TargetNode, ConnectionID: c.ID, Msg: fmt.Sprintf("pure node %s cannot appear in an execution chain", dst.Name)}
		case !dst.HasExecInput(c.TargetPin):
			return &blueprint.StructuralError{NodeID: c.TargetNode, Pin: c.TargetPin, ConnectionID: c.ID, Msg: fmt.Sprintf("%s has no execution input %q", dst.Name, c.TargetPin)}
		}
	}
	return nil
}

func firstError(errs *blueprint.ValidationErrors) error {
	if !errs.HasErrors() {
		return nil
	}
	return errs.Errors[0]
}
