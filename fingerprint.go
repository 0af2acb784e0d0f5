package blueprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Fingerprint hashes the semantic content of a graph: version, node ids and
// types, properties, connections, variables and macros. A nil node hashes
// as a node with no type. Positions are cosmetic and excluded, so
// moving a node in the editor does not invalidate compiled output.
//
// The encoding uses msgpack with sorted map keys and nodes/connections in
// canonical order, so two graphs that compile identically hash identically.
func Fingerprint(g *GraphDescription) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(canonical(g)); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

type canonicalGraph struct {
	Name        string                     `msgpack:"name"`
	Version     string                     `msgpack:"version,omitempty"`
	Nodes       []canonicalNode            `msgpack:"nodes"`
	Connections []canonicalConn            `msgpack:"conns"`
	Variables   []canonicalVar             `msgpack:"vars,omitempty"`
	Macros      map[string]*canonicalGraph `msgpack:"macros,omitempty"`
}

type canonicalNode struct {
	ID         string                    `msgpack:"id"`
	StoredID   string                    `msgpack:"sid"`
	Nil        bool                      `msgpack:"nil,omitempty"`
	Type       string                    `msgpack:"type"`
	Properties map[string]canonicalValue `msgpack:"props,omitempty"`
}

type canonicalConn struct {
	ID         string `msgpack:"id"`
	SourceNode string `msgpack:"sn"`
	SourcePin  string `msgpack:"sp"`
	TargetNode string `msgpack:"tn"`
	TargetPin  string `msgpack:"tp"`
	Type       string `msgpack:"t"`
}

type canonicalVar struct {
	Name    string          `msgpack:"name"`
	Type    string          `msgpack:"type"`
	Default *canonicalValue `msgpack:"default,omitempty"`
}

type canonicalValue struct {
	Kind   uint8     `msgpack:"k"`
	Str    string    `msgpack:"s,omitempty"`
	Num    float64   `msgpack:"n,omitempty"`
	Bool   bool      `msgpack:"b,omitempty"`
	Floats []float64 `msgpack:"f,omitempty"`
}

func canonicalProp(v PropertyValue) canonicalValue {
	return canonicalValue{Kind: uint8(v.Kind), Str: v.Str, Num: v.Num, Bool: v.Bool, Floats: v.Floats}
}

// canonical keeps connection order: it is semantic (exec fan-out order).
func canonical(g *GraphDescription) *canonicalGraph {
	if g == nil {
		return nil
	}
	c := &canonicalGraph{Name: g.Name, Version: g.Version}
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n == nil {
			c.Nodes = append(c.Nodes, canonicalNode{ID: id, Nil: true})
			continue
		}
		cn := canonicalNode{ID: id, StoredID: n.ID, Type: n.NodeType}
		if len(n.Properties) > 0 {
			cn.Properties = make(map[string]canonicalValue, len(n.Properties))
			for k, v := range n.Properties {
				cn.Properties[k] = canonicalProp(v)
			}
		}
		c.Nodes = append(c.Nodes, cn)
	}
	for _, conn := range g.Connections {
		c.Connections = append(c.Connections, canonicalConn{
			ID:         conn.ID,
			SourceNode: conn.SourceNode,
			SourcePin:  conn.SourcePin,
			TargetNode: conn.TargetNode,
			TargetPin:  conn.TargetPin,
			Type:       string(conn.Type.Normalize()),
		})
	}
	for _, v := range g.Variables {
		cv := canonicalVar{Name: v.Name, Type: v.Type}
		if v.Default != nil {
			d := canonicalProp(*v.Default)
			cv.Default = &d
		}
		c.Variables = append(c.Variables, cv)
	}
	if len(g.Macros) > 0 {
		c.Macros = make(map[string]*canonicalGraph, len(g.Macros))
		for name, m := range g.Macros {
			c.Macros[name] = canonical(m)
		}
	}
	return c
}
