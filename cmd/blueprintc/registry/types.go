package registry

import (
	"fmt"
	"strings"
)

// Kind is the registry's classification hint for a node type.
type Kind int

const (
	Pure Kind = iota + 1
	Function
	ControlFlow
	Event
)

var kindNames = map[Kind]string{
	Pure:        "pure",
	Function:    "function",
	ControlFlow: "control_flow",
	Event:       "event",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the directive spellings of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "pure":
		return Pure, nil
	case "function", "fn":
		return Function, nil
	case "control_flow", "controlflow", "flow":
		return ControlFlow, nil
	case "event":
		return Event, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// DefaultOutputPin names the data output of a node with a return type.
const DefaultOutputPin = "result"

// DefaultExecInput is the exec input pin of function and control-flow nodes.
const DefaultExecInput = "exec"

// DefaultExecOutput is the exec output pin of function nodes.
const DefaultExecOutput = "then"

// Param is a typed data input pin.
type Param struct {
	Name string
	Type string
	// Default is a Go expression used when the pin is unconnected and has no
	// property literal. Nil means the pin is required.
	Default *string
}

// Import is a package the node's code needs. Name is empty for the default
// package name.
type Import struct {
	Name string
	Path string
}

func (i Import) String() string {
	if i.Name != "" {
		return i.Name + " " + i.Path
	}
	return i.Path
}

// NodeMetadata describes one node type.
type NodeMetadata struct {
	Name       string
	Kind       Kind
	Params     []Param
	ReturnType string // empty when the node has no data output
	OutputPin  string

	ExecInputs  []string
	ExecOutputs []string
	// Continuation is an exec output of a control-flow node that is not a
	// placeholder; its chain runs after the inlined block.
	Continuation string

	// FunctionSource is the template: a Go function declaration, or for pure
	// expression nodes just the returned expression.
	FunctionSource string

	Documentation []string
	Category      string
	Color         string
	Imports       []Import

	// EntryFunc is the generated function name of an Event node. Defaults to
	// Name.
	EntryFunc string

	// ReadsState marks a pure node whose value can change while an entry
	// runs, such as a graph variable getter. It is evaluated where it is read.
	ReadsState bool
}

// Param looks up a parameter by pin name.
func (m *NodeMetadata) Param(name string) (Param, bool) {
	for _, p := range m.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// HasOutput reports whether the node produces a value.
func (m *NodeMetadata) HasOutput() bool {
	return m.ReturnType != ""
}

// Output returns the data output pin name, or "" when there is none.
func (m *NodeMetadata) Output() string {
	if !m.HasOutput() {
		return ""
	}
	if m.OutputPin == "" {
		return DefaultOutputPin
	}
	return m.OutputPin
}

// FuncName is the name the node's code is emitted under.
func (m *NodeMetadata) FuncName() string {
	if m.Kind == Event && m.EntryFunc != "" {
		return m.EntryFunc
	}
	return m.Name
}

// HasExecInput reports whether pin is an exec input of the node.
func (m *NodeMetadata) HasExecInput(pin string) bool {
	for _, p := range m.ExecInputs {
		if p == pin {
			return true
		}
	}
	return false
}

// HasExecOutput reports whether pin is an exec output of the node.
func (m *NodeMetadata) HasExecOutput(pin string) bool {
	for _, p := range m.ExecOutputs {
		if p == pin {
			return true
		}
	}
	return false
}

// Placeholders returns the exec outputs expected as placeholders in the
// template: every exec output except the continuation.
func (m *NodeMetadata) Placeholders() []string {
	out := make([]string, 0, len(m.ExecOutputs))
	for _, p := range m.ExecOutputs {
		if p != m.Continuation {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m *NodeMetadata) Clone() *NodeMetadata {
	c := *m
	c.Params = append([]Param(nil), m.Params...)
	c.ExecInputs = append([]string(nil), m.ExecInputs...)
	c.ExecOutputs = append([]string(nil), m.ExecOutputs...)
	c.Documentation = append([]string(nil), m.Documentation...)
	c.Imports = append([]Import(nil), m.Imports...)
	return &c
}
