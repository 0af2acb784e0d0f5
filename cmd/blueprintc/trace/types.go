// Package trace reports compilation progress to pluggable hooks: phase
// boundaries, emitted nodes and failures. Hooks are how an editor highlights
// the node a compile error belongs to, or streams progress for large graphs.
package trace

import blueprint "github.com/mxkacsa/blueprint"

// Hook receives compilation trace events. Implementations must be safe for
// concurrent use; batch compiles share one hook.
type Hook interface {
	// Compilation lifecycle
	OnCompileStart(graph string)
	OnCompileEnd(graph string, durationMs float64, err error)

	// Phase lifecycle
	OnPhaseStart(graph string, phase blueprint.Phase)
	OnPhaseEnd(graph string, phase blueprint.Phase, durationMs float64, err error)

	// OnNodeEmitted fires once per node whose code lands in the entry function.
	OnNodeEmitted(graph, entry, nodeID, nodeType string)
}

// MessageType names a trace event.
type MessageType string

const (
	MsgCompileStart MessageType = "compile:start"
	MsgCompileEnd   MessageType = "compile:end"
	MsgPhaseStart   MessageType = "phase:start"
	MsgPhaseEnd     MessageType = "phase:end"
	MsgNodeEmitted  MessageType = "node:emitted"
)

// Message is the JSON structure written by WriterHook and sent by ChannelHook.
type Message struct {
	Type       MessageType `json:"type"`
	Graph      string      `json:"graph"`
	Phase      string      `json:"phase,omitempty"`
	Entry      string      `json:"entry,omitempty"`
	NodeID     string      `json:"nodeId,omitempty"`
	NodeType   string      `json:"nodeType,omitempty"`
	DurationMs float64     `json:"durationMs,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  int64       `json:"timestamp"`
}
