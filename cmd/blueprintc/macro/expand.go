// Package macro inlines sub-graphs. A node of type "macro:<name>" is
// replaced by the nodes of the named definition before any analysis runs.
//
// Inside a definition, the nodes with ids macro_entry and macro_exit stand
// for the instance's pins: a wire leaving macro_entry.P continues whatever is
// wired into the instance's pin P, and a wire into macro_exit.Q continues to
// whatever the instance's pin Q feeds.
package macro

import (
	"fmt"
	"sort"

	blueprint "github.com/mxkacsa/blueprint"
)

// Expand returns g with every macro instance inlined, recursively. Definitions
// come from lib and from g.Macros, the latter taking precedence. Inner node
// ids become "<instance>/<inner>" and positions are offset by the instance
// position. g is not modified.
//
// A macro that reaches itself through nested instances is a
// CircularDependencyError naming the chain of macros.
func Expand(g *blueprint.GraphDescription, lib map[string]*blueprint.GraphDescription) (*blueprint.GraphDescription, error) {
	defs := make(map[string]*blueprint.GraphDescription, len(lib)+len(g.Macros))
	for name, def := range lib {
		defs[name] = def
	}
	for name, def := range g.Macros {
		defs[name] = def
	}
	e := &expander{defs: defs}
	out, err := e.expand(g, nil)
	if err != nil {
		return nil, err
	}
	out.Macros = nil
	return out, nil
}

// HasMacros reports whether any node of g instantiates a macro.
func HasMacros(g *blueprint.GraphDescription) bool {
	for _, n := range g.Nodes {
		if _, ok := n.IsMacro(); ok {
			return true
		}
	}
	return false
}

type expander struct {
	defs map[string]*blueprint.GraphDescription
}

type instance struct {
	entry string
	exit  string
}

// expand inlines the instances of g. stack holds the macros currently being
// expanded, outermost first.
func (e *expander) expand(g *blueprint.GraphDescription, stack []string) (*blueprint.GraphDescription, error) {
	out := &blueprint.GraphDescription{
		Name:      g.Name,
		Version:   g.Version,
		Nodes:     make(map[string]*blueprint.NodeInstance, len(g.Nodes)),
		Variables: append([]blueprint.Variable(nil), g.Variables...),
	}
	instances := make(map[string]instance)
	literals := make(map[string]map[string]blueprint.PropertyValue) // entry tunnel -> instance literals
	var inner []blueprint.Connection

	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n == nil {
			return nil, &blueprint.StructuralError{NodeID: id, Msg: "node is empty"}
		}
		name, ok := n.IsMacro()
		if !ok {
			out.Nodes[id] = n.Clone()
			continue
		}
		for i, s := range stack {
			if s == name {
				cycle := append(append([]string(nil), stack[i:]...), name)
				return nil, &blueprint.CircularDependencyError{Kind: blueprint.CycleMacro, Nodes: cycle}
			}
		}
		def, ok := e.defs[name]
		if !ok {
			return nil, &blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("unknown macro %q", name)}
		}
		body, err := e.expand(def, append(stack[:len(stack):len(stack)], name))
		if err != nil {
			return nil, err
		}

		inst := instance{entry: id + "/" + blueprint.MacroEntryID, exit: id + "/" + blueprint.MacroExitID}
		instances[id] = inst
		literals[inst.entry] = n.Properties

		for innerID, in := range body.Nodes {
			if innerID == blueprint.MacroEntryID || innerID == blueprint.MacroExitID {
				continue
			}
			if in == nil {
				return nil, &blueprint.StructuralError{NodeID: id, Msg: fmt.Sprintf("macro %q: node %q is empty", name, innerID)}
			}
			c := in.Clone()
			c.ID = id + "/" + innerID
			if _, taken := g.Nodes[c.ID]; taken {
				return nil, &blueprint.StructuralError{NodeID: c.ID, Msg: fmt.Sprintf("node id collides with node %q of macro instance %q", innerID, id)}
			}
			if _, taken := out.Nodes[c.ID]; taken {
				return nil, &blueprint.StructuralError{NodeID: c.ID, Msg: fmt.Sprintf("node id produced twice by macro instance %q", id)}
			}
			c.Position.X += n.Position.X
			c.Position.Y += n.Position.Y
			out.Nodes[c.ID] = c
		}
		for _, c := range body.Connections {
			c.ID = id + "/" + c.ID
			c.SourceNode = id + "/" + c.SourceNode
			c.TargetNode = id + "/" + c.TargetNode
			inner = append(inner, c)
		}
	}

	if len(instances) == 0 {
		out.Connections = append([]blueprint.Connection(nil), g.Connections...)
		return out, nil
	}

	conns := make([]blueprint.Connection, 0, len(g.Connections)+len(inner))
	for _, c := range g.Connections {
		if inst, ok := instances[c.TargetNode]; ok {
			c.TargetNode = inst.entry
		}
		if inst, ok := instances[c.SourceNode]; ok {
			c.SourceNode = inst.exit
		}
		conns = append(conns, c)
	}
	conns = append(conns, inner...)

	tunnels := make([]string, 0, 2*len(instances))
	for _, inst := range instances {
		tunnels = append(tunnels, inst.entry, inst.exit)
	}
	sort.Strings(tunnels)

	var err error
	for _, t := range tunnels {
		conns, err = stitch(conns, t, literals[t], out.Nodes)
		if err != nil {
			return nil, err
		}
	}
	out.Connections = conns
	return out, nil
}

// stitch removes tunnel t: every wire into t.P is joined with every wire out
// of t.P, keeping the position of the incoming wire and the order of the
// outgoing ones. A pin with no incoming wire passes the instance literal, if
// any, to the inner targets.
func stitch(conns []blueprint.Connection, t string, literals map[string]blueprint.PropertyValue, nodes map[string]*blueprint.NodeInstance) ([]blueprint.Connection, error) {
	outs := make(map[string][]blueprint.Connection)
	for _, c := range conns {
		if c.SourceNode == t {
			outs[c.SourcePin] = append(outs[c.SourcePin], c)
		}
	}
	fed := make(map[string]bool)
	next := make([]blueprint.Connection, 0, len(conns))
	for _, c := range conns {
		switch {
		case c.SourceNode == t:
			continue
		case c.TargetNode == t:
			fed[c.TargetPin] = true
			for _, o := range outs[c.TargetPin] {
				if o.Type.Normalize() != c.Type.Normalize() {
					return nil, &blueprint.StructuralError{
						ConnectionID: c.ID,
						Msg:          fmt.Sprintf("%s wire continues as %s wire %q across macro boundary", c.Type.Normalize(), o.Type.Normalize(), o.ID),
					}
				}
				next = append(next, blueprint.Connection{
					ID:         c.ID + ">" + o.ID,
					SourceNode: c.SourceNode,
					SourcePin:  c.SourcePin,
					TargetNode: o.TargetNode,
					TargetPin:  o.TargetPin,
					Type:       c.Type,
				})
			}
		default:
			next = append(next, c)
		}
	}

	pins := make([]string, 0, len(outs))
	for pin := range outs {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	for _, pin := range pins {
		v, ok := literals[pin]
		if !ok || fed[pin] {
			continue
		}
		for _, o := range outs[pin] {
			target, ok := nodes[o.TargetNode]
			if !ok || !o.IsData() {
				continue
			}
			if target.Properties == nil {
				target.Properties = make(map[string]blueprint.PropertyValue)
			}
			target.Properties[o.TargetPin] = v
		}
	}
	return next, nil
}
