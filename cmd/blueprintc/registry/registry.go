// Package registry holds node metadata: signatures, exec pins, documentation
// and the Go source template of every node type the compiler knows.
//
// A Registry is immutable once built. Compilations share it by pointer and
// never lock it. Node libraries are ordinary Go files annotated with //bp:
// directives, so the templates are real Go that editors and gofmt understand:
//
//	//bp:node control_flow category=Flow color=#BD10E0
//	//bp:doc Routes execution based on a boolean condition.
//	func branch(condition bool) {
//		if condition {
//			execOutput("True")
//		} else {
//			execOutput("False")
//		}
//	}
package registry

import (
	"fmt"
	"go/token"
	"sort"

	"github.com/mxkacsa/blueprint/cmd/blueprintc/inline"
)

// Registry is an immutable set of node definitions.
type Registry struct {
	nodes map[string]*NodeMetadata
	names []string
}

// Get returns the metadata for a node type.
func (r *Registry) Get(name string) (*NodeMetadata, bool) {
	m, ok := r.nodes[name]
	return m, ok
}

// Len returns the number of node types.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Nodes returns a snapshot of all definitions keyed by node type. The map is
// a copy; the metadata values are shared and must not be modified.
func (r *Registry) Nodes() map[string]*NodeMetadata {
	out := make(map[string]*NodeMetadata, len(r.nodes))
	for k, v := range r.nodes {
		out[k] = v
	}
	return out
}

// Names returns all node type names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// ByCategory groups definitions by category. Nodes without a category are
// listed under "Other". Each group is sorted by name.
func (r *Registry) ByCategory() map[string][]*NodeMetadata {
	out := make(map[string][]*NodeMetadata)
	for _, name := range r.names {
		m := r.nodes[name]
		cat := m.Category
		if cat == "" {
			cat = "Other"
		}
		out[cat] = append(out[cat], m)
	}
	return out
}

// Categories returns the category names, sorted.
func (r *Registry) Categories() []string {
	groups := r.ByCategory()
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// WithOverlay returns a new registry holding r's definitions plus extra.
// An extra definition may not shadow an existing one.
func (r *Registry) WithOverlay(extra ...*NodeMetadata) (*Registry, error) {
	b := NewBuilder()
	for _, name := range r.names {
		b.nodes[name] = r.nodes[name]
	}
	for _, m := range extra {
		if err := b.Add(m); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// ============================================================================
// Builder
// ============================================================================

// Builder accumulates node definitions. It is not safe for concurrent use;
// build once at startup and share the resulting Registry.
type Builder struct {
	nodes map[string]*NodeMetadata
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]*NodeMetadata)}
}

// Add registers a node definition, filling in pin defaults for its kind.
func (b *Builder) Add(m *NodeMetadata) error {
	if m == nil {
		return fmt.Errorf("node definition cannot be nil")
	}
	if m.Name == "" {
		return fmt.Errorf("node type cannot be empty")
	}
	if !token.IsIdentifier(m.Name) {
		return fmt.Errorf("node type %q is not a Go identifier", m.Name)
	}
	if _, exists := b.nodes[m.Name]; exists {
		return fmt.Errorf("node type %s is already registered", m.Name)
	}
	if _, ok := kindNames[m.Kind]; !ok {
		return fmt.Errorf("node type %s: invalid kind %v", m.Name, m.Kind)
	}
	if m.FunctionSource == "" {
		return fmt.Errorf("node type %s: missing function source", m.Name)
	}

	if err := checkFuncName(m); err != nil {
		return err
	}

	def := m.Clone()
	applyPinDefaults(def)

	if def.Continuation != "" && !def.HasExecOutput(def.Continuation) {
		def.ExecOutputs = append(def.ExecOutputs, def.Continuation)
	}
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		if seen[p.Name] {
			return fmt.Errorf("node type %s: duplicate parameter %q", def.Name, p.Name)
		}
		seen[p.Name] = true
	}
	if (def.Kind == ControlFlow || def.Kind == Event) && def.HasOutput() {
		return fmt.Errorf("node type %s: %s nodes cannot have a data output", def.Name, def.Kind)
	}
	if def.Kind == Event && def.EntryFunc != "" && !token.IsIdentifier(def.EntryFunc) {
		return fmt.Errorf("node type %s: entry function %q is not a Go identifier", def.Name, def.EntryFunc)
	}

	b.nodes[def.Name] = def
	return nil
}

// checkFuncName rejects a function template declared under another name.
// Emitted helpers are called by node type, so the two must agree. Templates
// that do not parse are left for the classifier to report.
func checkFuncName(m *NodeMetadata) error {
	if m.Kind != Function && (m.Kind != Pure || !inline.HasFuncWrapper(m.FunctionSource)) {
		return nil
	}
	fn, err := inline.ParseFunc(m.FunctionSource)
	if err != nil {
		return nil
	}
	if fn.Name.Name != m.Name {
		return fmt.Errorf("node type %s: template declares function %s", m.Name, fn.Name.Name)
	}
	return nil
}

// MustAdd is like Add but panics on error.
func (b *Builder) MustAdd(m *NodeMetadata) {
	if err := b.Add(m); err != nil {
		panic(fmt.Sprintf("failed to register node: %v", err))
	}
}

// Build freezes the builder's definitions into a Registry.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		nodes: make(map[string]*NodeMetadata, len(b.nodes)),
		names: make([]string, 0, len(b.nodes)),
	}
	for name, m := range b.nodes {
		r.nodes[name] = m
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

func applyPinDefaults(m *NodeMetadata) {
	if m.HasOutput() && m.OutputPin == "" {
		m.OutputPin = DefaultOutputPin
	}
	switch m.Kind {
	case Pure:
		m.ExecInputs = nil
		m.ExecOutputs = nil
	case Function:
		if len(m.ExecInputs) == 0 {
			m.ExecInputs = []string{DefaultExecInput}
		}
		if len(m.ExecOutputs) == 0 {
			m.ExecOutputs = []string{DefaultExecOutput}
		}
	case ControlFlow:
		if len(m.ExecInputs) == 0 {
			m.ExecInputs = []string{DefaultExecInput}
		}
	case Event:
		m.ExecInputs = nil
	}
}
