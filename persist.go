package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Format is a graph file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension; JSON is the default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// graphWire is the persisted shape. Nodes may be an array (the project file
// format) or an object keyed by id (the editor's in-memory map).
type graphWire struct {
	Name        string                       `json:"name" yaml:"name"`
	Version     string                       `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       []*NodeInstance              `json:"nodes" yaml:"nodes"`
	Connections []Connection                 `json:"connections" yaml:"connections"`
	Variables   []Variable                   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Macros      map[string]*GraphDescription `json:"macros,omitempty" yaml:"macros,omitempty"`
}

type graphWireKeyed struct {
	Name        string                       `json:"name" yaml:"name"`
	Version     string                       `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       map[string]*NodeInstance     `json:"nodes" yaml:"nodes"`
	Connections []Connection                 `json:"connections" yaml:"connections"`
	Variables   []Variable                   `json:"variables,omitempty" yaml:"variables,omitempty"`
	Macros      map[string]*GraphDescription `json:"macros,omitempty" yaml:"macros,omitempty"`
}

func (k *graphWireKeyed) split() (*graphWire, map[string]*NodeInstance) {
	return &graphWire{
		Name:        k.Name,
		Version:     k.Version,
		Connections: k.Connections,
		Variables:   k.Variables,
		Macros:      k.Macros,
	}, k.Nodes
}

func (g *GraphDescription) toWire() *graphWire {
	w := &graphWire{
		Name:        g.Name,
		Version:     g.Version,
		Nodes:       make([]*NodeInstance, 0, len(g.Nodes)),
		Connections: g.Connections,
		Variables:   g.Variables,
		Macros:      g.Macros,
	}
	if w.Connections == nil {
		w.Connections = []Connection{}
	}
	for _, id := range g.NodeIDs() {
		w.Nodes = append(w.Nodes, g.Nodes[id])
	}
	return w
}

func (g *GraphDescription) fromWire(w *graphWire, keyed map[string]*NodeInstance) error {
	*g = GraphDescription{
		Name:        w.Name,
		Version:     w.Version,
		Nodes:       make(map[string]*NodeInstance),
		Connections: w.Connections,
		Variables:   w.Variables,
		Macros:      w.Macros,
	}
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}
		if _, dup := g.Nodes[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.Nodes[n.ID] = n
	}
	for key, n := range keyed {
		if n == nil {
			continue
		}
		if n.ID == "" {
			n.ID = key
		}
		if n.ID != key {
			return fmt.Errorf("node key %q does not match id %q", key, n.ID)
		}
		g.Nodes[key] = n
	}
	for i := range g.Connections {
		g.Connections[i].Type = g.Connections[i].Type.Normalize()
	}
	return nil
}

// MarshalJSON writes nodes as an array ordered by id so output is stable.
func (g *GraphDescription) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.toWire())
}

// UnmarshalJSON accepts nodes as an array or as an object keyed by id.
func (g *GraphDescription) UnmarshalJSON(data []byte) error {
	var shape struct {
		Nodes json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(shape.Nodes)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var keyed graphWireKeyed
		if err := json.Unmarshal(data, &keyed); err != nil {
			return err
		}
		return g.fromWire(keyed.split())
	}
	var w graphWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return g.fromWire(&w, nil)
}

// MarshalYAML implements yaml.Marshaler.
func (g *GraphDescription) MarshalYAML() (any, error) {
	return g.toWire(), nil
}

// UnmarshalYAML accepts nodes as a sequence or as a mapping keyed by id.
func (g *GraphDescription) UnmarshalYAML(node *yaml.Node) error {
	var shape struct {
		Nodes yaml.Node `yaml:"nodes"`
	}
	if err := node.Decode(&shape); err != nil {
		return err
	}
	if shape.Nodes.Kind == yaml.MappingNode {
		var keyed graphWireKeyed
		if err := node.Decode(&keyed); err != nil {
			return err
		}
		return g.fromWire(keyed.split())
	}
	var w graphWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	return g.fromWire(&w, nil)
}

// ParseGraph decodes a graph in the given format and checks its version.
func ParseGraph(data []byte, format Format) (*GraphDescription, error) {
	g := &GraphDescription{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, g)
	case FormatJSON, "":
		err = json.Unmarshal(data, g)
	default:
		return nil, fmt.Errorf("unknown graph format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s graph: %w", format, err)
	}
	if err := CheckVersion(g.Version); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckVersion accepts an empty version or a semantic version with or without
// the leading "v".
func CheckVersion(v string) error {
	if v == "" {
		return nil
	}
	if !semver.IsValid(canonicalVersion(v)) {
		return &StructuralError{Msg: fmt.Sprintf("graph version %q is not a semantic version", v)}
	}
	return nil
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CompareVersion orders two graph versions; empty sorts first.
func CompareVersion(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

// LoadGraph reads a graph file. The extension selects JSON or YAML.
func LoadGraph(path string) (*GraphDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	g, err := ParseGraph(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, nil
}

// EncodeGraph serializes a graph in the given format.
func EncodeGraph(g *GraphDescription, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(g)
	case FormatJSON, "":
		return json.MarshalIndent(g, "", "  ")
	}
	return nil, fmt.Errorf("unknown graph format %q", format)
}

// SaveGraph writes a graph file atomically (temp file + rename).
func SaveGraph(path string, g *GraphDescription) error {
	data, err := EncodeGraph(g, FormatFromPath(path))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
