// Package blueprint holds the graph model consumed by the blueprint compiler:
// node instances, typed connections, literal property values and the error
// taxonomy shared by every compilation phase.
//
// A GraphDescription is what the graph editor produces and what gets persisted
// in project files. The compiler treats it as read-only; every phase builds its
// own derived structures instead of mutating the graph.
package blueprint

import (
	"fmt"
	"sort"
	"strings"
)

// MacroPrefix marks a node type that instantiates a sub-graph ("macro:<name>").
const MacroPrefix = "macro:"

// Tunnel node ids inside a macro definition. External wires that cross the
// macro boundary are stitched through these nodes during expansion.
const (
	MacroEntryID = "macro_entry"
	MacroExitID  = "macro_exit"
)

// GraphDescription is a single compilation unit.
type GraphDescription struct {
	Name        string                       `json:"name" yaml:"name"`
	Version     string                       `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       map[string]*NodeInstance     `json:"nodes" yaml:"nodes"`
	Connections []Connection                 `json:"connections" yaml:"connections"`
	Variables   []Variable                   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Macros      map[string]*GraphDescription `json:"macros,omitempty" yaml:"macros,omitempty"`
}

// NodeInstance is one placed node.
type NodeInstance struct {
	ID         string                   `json:"id" yaml:"id"`
	NodeType   string                   `json:"node_type" yaml:"node_type"`
	Position   Position                 `json:"position" yaml:"position"`
	Properties map[string]PropertyValue `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Position is the cosmetic editor position of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ConnectionType distinguishes data wires from execution wires.
type ConnectionType string

const (
	ConnectionData      ConnectionType = "data"
	ConnectionExecution ConnectionType = "execution"
)

// Normalize maps the editor spellings ("Data", "Execution", "exec") onto the
// canonical values.
func (t ConnectionType) Normalize() ConnectionType {
	switch strings.ToLower(string(t)) {
	case "data":
		return ConnectionData
	case "execution", "exec":
		return ConnectionExecution
	}
	return t
}

// Valid reports whether t is a known connection type.
func (t ConnectionType) Valid() bool {
	n := t.Normalize()
	return n == ConnectionData || n == ConnectionExecution
}

// Connection is a directed wire between two pins.
type Connection struct {
	ID         string         `json:"id" yaml:"id"`
	SourceNode string         `json:"source_node" yaml:"source_node"`
	SourcePin  string         `json:"source_pin" yaml:"source_pin"`
	TargetNode string         `json:"target_node" yaml:"target_node"`
	TargetPin  string         `json:"target_pin" yaml:"target_pin"`
	Type       ConnectionType `json:"connection_type" yaml:"connection_type"`
}

// IsExecution reports whether c carries execution flow.
func (c Connection) IsExecution() bool {
	return c.Type.Normalize() == ConnectionExecution
}

// IsData reports whether c carries a value.
func (c Connection) IsData() bool {
	return c.Type.Normalize() == ConnectionData
}

// String renders the wire for error messages and logs.
func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.SourceNode, c.SourcePin, c.TargetNode, c.TargetPin)
}

// Variable is a graph-level variable. The compiler declares it at package
// level and exposes get_<name> and set_<name> nodes for it.
type Variable struct {
	Name    string         `json:"name" yaml:"name"`
	Type    string         `json:"type" yaml:"type"`
	Default *PropertyValue `json:"default,omitempty" yaml:"default,omitempty"`
}

// NewGraph creates an empty graph.
func NewGraph(name string) *GraphDescription {
	return &GraphDescription{
		Name:  name,
		Nodes: make(map[string]*NodeInstance),
	}
}

// AddNode adds (or replaces) a node and returns it for chaining.
func (g *GraphDescription) AddNode(id, nodeType string, props map[string]PropertyValue) *NodeInstance {
	if g.Nodes == nil {
		g.Nodes = make(map[string]*NodeInstance)
	}
	n := &NodeInstance{ID: id, NodeType: nodeType, Properties: props}
	g.Nodes[id] = n
	return n
}

// Connect appends a wire with id c<index> and returns the graph for chaining.
func (g *GraphDescription) Connect(t ConnectionType, from, fromPin, to, toPin string) *GraphDescription {
	g.Connections = append(g.Connections, Connection{
		ID:         fmt.Sprintf("c%d", len(g.Connections)),
		SourceNode: from,
		SourcePin:  fromPin,
		TargetNode: to,
		TargetPin:  toPin,
		Type:       t,
	})
	return g
}

// Exec is shorthand for an execution wire.
func (g *GraphDescription) Exec(from, fromPin, to string) *GraphDescription {
	return g.Connect(ConnectionExecution, from, fromPin, to, "exec")
}

// Data is shorthand for a data wire.
func (g *GraphDescription) Data(from, fromPin, to, toPin string) *GraphDescription {
	return g.Connect(ConnectionData, from, fromPin, to, toPin)
}

// NodeIDs returns the node ids in lexical order.
func (g *GraphDescription) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the graph. Property values are immutable and
// shared.
func (g *GraphDescription) Clone() *GraphDescription {
	if g == nil {
		return nil
	}
	out := &GraphDescription{
		Name:        g.Name,
		Version:     g.Version,
		Nodes:       make(map[string]*NodeInstance, len(g.Nodes)),
		Connections: append([]Connection(nil), g.Connections...),
		Variables:   append([]Variable(nil), g.Variables...),
	}
	for id, n := range g.Nodes {
		out.Nodes[id] = n.Clone()
	}
	if g.Macros != nil {
		out.Macros = make(map[string]*GraphDescription, len(g.Macros))
		for name, m := range g.Macros {
			out.Macros[name] = m.Clone()
		}
	}
	return out
}

// Clone copies a node including its property map.
func (n *NodeInstance) Clone() *NodeInstance {
	if n == nil {
		return nil
	}
	c := *n
	if n.Properties != nil {
		c.Properties = make(map[string]PropertyValue, len(n.Properties))
		for k, v := range n.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// IsMacro reports whether the node instantiates a sub-graph and returns the
// macro name.
func (n *NodeInstance) IsMacro() (string, bool) {
	if name, ok := strings.CutPrefix(n.NodeType, MacroPrefix); ok {
		return name, true
	}
	return "", false
}

// Property returns a literal for pin, if any.
func (n *NodeInstance) Property(pin string) (PropertyValue, bool) {
	v, ok := n.Properties[pin]
	return v, ok
}
