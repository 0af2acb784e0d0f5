// Package dataflow resolves where every data input of a graph gets its value
// and orders pure nodes so each is evaluated after the nodes it reads.
package dataflow

import (
	"fmt"
	"sort"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
)

// Lookup is the registry view the resolver needs.
type Lookup interface {
	Get(name string) (*registry.NodeMetadata, bool)
}

// SourceKind tells where an input value comes from.
type SourceKind int

const (
	FromConnection SourceKind = iota + 1
	FromConstant
	FromDefault
)

func (k SourceKind) String() string {
	switch k {
	case FromConnection:
		return "connection"
	case FromConstant:
		return "constant"
	case FromDefault:
		return "default"
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// DataSource is the resolved value of one input pin.
type DataSource struct {
	Kind SourceKind

	// FromConnection
	SourceNode   string
	SourcePin    string
	ConnectionID string
	// Convert is the target type when the wire relies on numeric widening.
	Convert string

	// FromConstant
	Value blueprint.PropertyValue

	// FromDefault: a Go expression from the registry.
	Default string
}

type pinKey struct {
	node string
	pin  string
}

// Resolver answers data-flow queries for one graph.
type Resolver struct {
	graph     *blueprint.GraphDescription
	reg       Lookup
	inputs    map[pinKey]blueprint.Connection
	deps      map[string][]string // node -> nodes it reads, in connection order
	consumers map[string]int
	order     []string // pure nodes, topological
	impure    map[string]bool
}

// Build indexes the data connections of g, type-checks them and computes
// the pure evaluation order. A data cycle is a CircularDependencyError
// naming every node on it.
func Build(g *blueprint.GraphDescription, reg Lookup) (*Resolver, error) {
	r := &Resolver{
		graph:     g,
		reg:       reg,
		inputs:    make(map[pinKey]blueprint.Connection),
		deps:      make(map[string][]string),
		consumers: make(map[string]int),
		impure:    make(map[string]bool),
	}
	if err := r.indexConnections(); err != nil {
		return nil, err
	}
	if err := r.checkLiterals(); err != nil {
		return nil, err
	}
	if err := r.sort(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resolver) meta(nodeID string) (*registry.NodeMetadata, error) {
	n, ok := r.graph.Nodes[nodeID]
	if !ok {
		return nil, &blueprint.StructuralError{NodeID: nodeID, Msg: "node does not exist"}
	}
	m, ok := r.reg.Get(n.NodeType)
	if !ok {
		return nil, &blueprint.StructuralError{NodeID: nodeID, Msg: fmt.Sprintf("unknown node type %q", n.NodeType)}
	}
	return m, nil
}

func (r *Resolver) indexConnections() error {
	for _, c := range r.graph.Connections {
		if !c.IsData() {
			continue
		}
		src, err := r.meta(c.SourceNode)
		if err != nil {
			return err
		}
		dst, err := r.meta(c.TargetNode)
		if err != nil {
			return err
		}
		if !src.HasOutput() || c.SourcePin != src.Output() {
			return &blueprint.StructuralError{
				NodeID: c.SourceNode, Pin: c.SourcePin, ConnectionID: c.ID,
				Msg: fmt.Sprintf("%s has no data output %q", src.Name, c.SourcePin),
			}
		}
		param, ok := dst.Param(c.TargetPin)
		if !ok {
			return &blueprint.StructuralError{
				NodeID: c.TargetNode, Pin: c.TargetPin, ConnectionID: c.ID,
				Msg: fmt.Sprintf("%s has no data input %q", dst.Name, c.TargetPin),
			}
		}
		key := pinKey{node: c.TargetNode, pin: c.TargetPin}
		if prev, dup := r.inputs[key]; dup {
			return &blueprint.StructuralError{
				NodeID: c.TargetNode, Pin: c.TargetPin, ConnectionID: c.ID,
				Msg: fmt.Sprintf("input already fed by connection %q", prev.ID),
			}
		}
		if ok, _ := Compatible(src.ReturnType, param.Type); !ok {
			return &blueprint.TypeMismatchError{
				ConnectionID: c.ID,
				SourceNode:   c.SourceNode, SourcePin: c.SourcePin, SourceType: src.ReturnType,
				TargetNode: c.TargetNode, TargetPin: c.TargetPin, TargetType: param.Type,
			}
		}
		r.inputs[key] = c
		r.deps[c.TargetNode] = append(r.deps[c.TargetNode], c.SourceNode)
		r.consumers[c.SourceNode]++
	}
	return nil
}

// checkLiterals type-checks property literals on unconnected inputs.
func (r *Resolver) checkLiterals() error {
	for _, id := range r.graph.NodeIDs() {
		n := r.graph.Nodes[id]
		m, err := r.meta(id)
		if err != nil {
			return err
		}
		for _, p := range m.Params {
			v, ok := n.Property(p.Name)
			if !ok {
				continue
			}
			if _, wired := r.inputs[pinKey{node: id, pin: p.Name}]; wired {
				continue
			}
			if !LiteralCompatible(v, p.Type) {
				return &blueprint.TypeMismatchError{
					SourceType: literalName(v),
					TargetNode: id, TargetPin: p.Name, TargetType: p.Type,
				}
			}
		}
	}
	return nil
}

// ResolveInput returns the value source of an input pin: a connection, then
// a property literal, then the registry default.
func (r *Resolver) ResolveInput(nodeID, pin string) (DataSource, error) {
	m, err := r.meta(nodeID)
	if err != nil {
		return DataSource{}, err
	}
	param, ok := m.Param(pin)
	if !ok {
		return DataSource{}, &blueprint.StructuralError{NodeID: nodeID, Pin: pin, Msg: fmt.Sprintf("%s has no data input %q", m.Name, pin)}
	}
	if c, ok := r.inputs[pinKey{node: nodeID, pin: pin}]; ok {
		ds := DataSource{Kind: FromConnection, SourceNode: c.SourceNode, SourcePin: c.SourcePin, ConnectionID: c.ID}
		src, err := r.meta(c.SourceNode)
		if err != nil {
			return DataSource{}, err
		}
		if _, convert := Compatible(src.ReturnType, param.Type); convert {
			ds.Convert = param.Type
		}
		return ds, nil
	}
	if v, ok := r.graph.Nodes[nodeID].Property(pin); ok {
		return DataSource{Kind: FromConstant, Value: v}, nil
	}
	if param.Default != nil {
		return DataSource{Kind: FromDefault, Default: *param.Default}, nil
	}
	return DataSource{}, &blueprint.UnresolvedInputError{NodeID: nodeID, Pin: pin}
}

// PureOrder returns every pure node in evaluation order: each node after all
// nodes it reads. Ties follow first appearance in the connection list, then
// node id.
func (r *Resolver) PureOrder() []string {
	return append([]string(nil), r.order...)
}

// Consumers returns the number of data connections reading nodeID's output.
func (r *Resolver) Consumers(nodeID string) int {
	return r.consumers[nodeID]
}

// Dependencies returns the nodes nodeID reads, in connection order.
func (r *Resolver) Dependencies(nodeID string) []string {
	return r.deps[nodeID]
}

// DependsOnImpure reports whether nodeID reads, directly or through other
// pure nodes, the output of a non-pure node or of a node that reads state.
// Such values are only valid at the point where they are read.
func (r *Resolver) DependsOnImpure(nodeID string) bool {
	return r.impure[nodeID]
}

// markImpure fills the impure set; topo lists every data-flow node with
// sources first. A state reader is impure itself.
func (r *Resolver) markImpure(topo []string, isPure, readsState map[string]bool) {
	for _, id := range topo {
		if readsState[id] {
			r.impure[id] = true
			continue
		}
		for _, dep := range r.deps[id] {
			if !isPure[dep] || r.impure[dep] {
				r.impure[id] = true
				break
			}
		}
	}
}

// sort runs Kahn's algorithm over every node that takes part in data flow
// and keeps the pure ones. Leftover nodes sit on cycles, which are reported
// via strongly connected components.
func (r *Resolver) sort() error {
	firstSeen := make(map[string]int)
	for i, c := range r.graph.Connections {
		for _, id := range []string{c.SourceNode, c.TargetNode} {
			if _, ok := firstSeen[id]; !ok {
				firstSeen[id] = i
			}
		}
	}
	rank := func(id string) int {
		if i, ok := firstSeen[id]; ok {
			return i
		}
		return len(r.graph.Connections)
	}
	less := func(a, b string) bool {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		return a < b
	}

	nodes := make(map[string]bool)
	isPure := make(map[string]bool)
	readsState := make(map[string]bool)
	for _, id := range r.graph.NodeIDs() {
		m, err := r.meta(id)
		if err != nil {
			return err
		}
		if m.Kind == registry.Pure {
			nodes[id] = true
			isPure[id] = true
			readsState[id] = m.ReadsState
		}
	}
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for target, sources := range r.deps {
		nodes[target] = true
		for _, s := range sources {
			nodes[s] = true
			indegree[target]++
			dependents[s] = append(dependents[s], target)
		}
	}

	var ready []string
	for id := range nodes {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	var topo []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		topo = append(topo, id)
		if isPure[id] {
			r.order = append(r.order, id)
		}
		for _, d := range dependents[id] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = insertSorted(ready, d, less)
			}
		}
	}
	if len(topo) == len(nodes) {
		r.markImpure(topo, isPure, readsState)
		return nil
	}

	var remaining []string
	for id := range nodes {
		if indegree[id] > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)
	return &blueprint.CircularDependencyError{Kind: blueprint.CycleData, Nodes: r.cycleNodes(remaining)}
}

func insertSorted(s []string, id string, less func(a, b string) bool) []string {
	i := sort.Search(len(s), func(i int) bool { return less(id, s[i]) })
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

// cycleNodes returns the members of every cycle among candidates, sorted.
// Nodes that merely sit downstream of a cycle are excluded.
func (r *Resolver) cycleNodes(candidates []string) []string {
	in := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		in[id] = true
	}
	var members []string
	for _, scc := range tarjan(candidates, func(id string) []string {
		var out []string
		for _, dep := range r.deps[id] {
			if in[dep] {
				out = append(out, dep)
			}
		}
		return out
	}) {
		if len(scc) > 1 || selfLoop(scc[0], r.deps[scc[0]]) {
			members = append(members, scc...)
		}
	}
	sort.Strings(members)
	return members
}

func selfLoop(id string, deps []string) bool {
	for _, d := range deps {
		if d == id {
			return true
		}
	}
	return false
}

// tarjan returns the strongly connected components of the graph spanned by
// nodes and edges.
func tarjan(nodes []string, edges func(string) []string) [][]string {
	var (
		index   = 0
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		stack   []string
		sccs    [][]string
	)
	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges(v) {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}
	for _, v := range nodes {
		if _, seen := indices[v]; !seen {
			strongconnect(v)
		}
	}
	return sccs
}
