// Package routing indexes execution wires by their source pin.
package routing

import (
	blueprint "github.com/mxkacsa/blueprint"
)

type pinKey struct {
	node string
	pin  string
}

// Routing maps (node, exec output pin) to the ordered targets of that pin.
// It is built once per compilation and read-only afterwards.
type Routing struct {
	routes   map[pinKey][]string
	incoming map[string][]blueprint.Connection
}

// Build indexes every execution connection of g. Data connections are
// ignored. Targets keep the order their connections appear in g, which is
// the order fan-out targets run in.
func Build(g *blueprint.GraphDescription) *Routing {
	r := &Routing{
		routes:   make(map[pinKey][]string),
		incoming: make(map[string][]blueprint.Connection),
	}
	for _, c := range g.Connections {
		if !c.IsExecution() {
			continue
		}
		k := pinKey{node: c.SourceNode, pin: c.SourcePin}
		r.routes[k] = append(r.routes[k], c.TargetNode)
		r.incoming[c.TargetNode] = append(r.incoming[c.TargetNode], c)
	}
	return r
}

// ConnectedNodes returns the targets of an exec output pin. An unconnected
// pin yields nil; that simply ends the branch.
func (r *Routing) ConnectedNodes(nodeID, pin string) []string {
	return r.routes[pinKey{node: nodeID, pin: pin}]
}

// Routes returns the number of connected (node, pin) sources.
func (r *Routing) Routes() int {
	return len(r.routes)
}

// Incoming returns the execution connections that target nodeID.
func (r *Routing) Incoming(nodeID string) []blueprint.Connection {
	return r.incoming[nodeID]
}
