package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	blueprint "github.com/mxkacsa/blueprint"
)

func newMessage(t MessageType, graph string) *Message {
	return &Message{Type: t, Graph: graph, Timestamp: time.Now().UnixMilli()}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// emitter adapts a single message sink to the Hook interface.
type emitter struct {
	sink func(*Message)
}

func (e emitter) OnCompileStart(graph string) {
	e.sink(newMessage(MsgCompileStart, graph))
}

func (e emitter) OnCompileEnd(graph string, durationMs float64, err error) {
	msg := newMessage(MsgCompileEnd, graph)
	msg.DurationMs = durationMs
	msg.Error = errString(err)
	e.sink(msg)
}

func (e emitter) OnPhaseStart(graph string, phase blueprint.Phase) {
	msg := newMessage(MsgPhaseStart, graph)
	msg.Phase = string(phase)
	e.sink(msg)
}

func (e emitter) OnPhaseEnd(graph string, phase blueprint.Phase, durationMs float64, err error) {
	msg := newMessage(MsgPhaseEnd, graph)
	msg.Phase = string(phase)
	msg.DurationMs = durationMs
	msg.Error = errString(err)
	e.sink(msg)
}

func (e emitter) OnNodeEmitted(graph, entry, nodeID, nodeType string) {
	msg := newMessage(MsgNodeEmitted, graph)
	msg.Entry = entry
	msg.NodeID = nodeID
	msg.NodeType = nodeType
	e.sink(msg)
}

// ============================================================================
// ChannelHook - sends messages to a channel
// ============================================================================

// ChannelHook sends trace messages to a channel.
// Useful for testing or custom processing.
type ChannelHook struct {
	emitter
	C     chan *Message
	Graph string // Optional filter
}

// NewChannelHook creates a new channel-based trace hook.
func NewChannelHook(bufferSize int) *ChannelHook {
	h := &ChannelHook{C: make(chan *Message, bufferSize)}
	h.emitter = emitter{sink: h.send}
	return h
}

func (h *ChannelHook) send(msg *Message) {
	if h.Graph != "" && msg.Graph != h.Graph {
		return
	}
	select {
	case h.C <- msg:
	default:
		// Channel full, drop message
	}
}

// ============================================================================
// WriterHook - writes JSON lines to an io.Writer
// ============================================================================

// WriterHook writes trace messages as JSON lines to an io.Writer.
type WriterHook struct {
	emitter
	w  io.Writer
	mu sync.Mutex
}

// NewWriterHook creates a hook that writes to the given writer.
func NewWriterHook(w io.Writer) *WriterHook {
	h := &WriterHook{w: w}
	h.emitter = emitter{sink: h.write}
	return h
}

func (h *WriterHook) write(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.w.Write(data)
	h.w.Write([]byte("\n"))
}

// ============================================================================
// PrintHook - prints human-readable progress
// ============================================================================

// PrintHook prints trace messages in a human-readable format.
type PrintHook struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPrintHook creates a hook that prints to the given writer.
func NewPrintHook(w io.Writer) *PrintHook {
	return &PrintHook{w: w}
}

func (h *PrintHook) printf(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, format, args...)
}

func (h *PrintHook) OnCompileStart(graph string) {
	h.printf("[%s] ▶ compile started\n", graph)
}

func (h *PrintHook) OnCompileEnd(graph string, durationMs float64, err error) {
	if err != nil {
		h.printf("[%s] ✗ compile failed (%.2fms): %v\n", graph, durationMs, err)
	} else {
		h.printf("[%s] ✓ compile completed (%.2fms)\n", graph, durationMs)
	}
}

func (h *PrintHook) OnPhaseStart(graph string, phase blueprint.Phase) {
	h.printf("[%s]   → %s\n", graph, phase)
}

func (h *PrintHook) OnPhaseEnd(graph string, phase blueprint.Phase, durationMs float64, err error) {
	if err != nil {
		h.printf("[%s]   ✗ %s: %v\n", graph, phase, err)
	}
}

func (h *PrintHook) OnNodeEmitted(graph, entry, nodeID, nodeType string) {
	h.printf("[%s]     %s: %s (%s)\n", graph, entry, nodeID, nodeType)
}

// ============================================================================
// MultiHook - sends to multiple hooks
// ============================================================================

// MultiHook broadcasts trace events to multiple hooks.
type MultiHook struct {
	hooks []Hook
	mu    sync.RWMutex
}

// NewMultiHook creates a hook that broadcasts to multiple hooks.
func NewMultiHook(hooks ...Hook) *MultiHook {
	return &MultiHook{hooks: hooks}
}

// Add adds a hook to the multi-hook.
func (h *MultiHook) Add(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

func (h *MultiHook) each(fn func(Hook)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.hooks {
		fn(hook)
	}
}

func (h *MultiHook) OnCompileStart(graph string) {
	h.each(func(k Hook) { k.OnCompileStart(graph) })
}

func (h *MultiHook) OnCompileEnd(graph string, durationMs float64, err error) {
	h.each(func(k Hook) { k.OnCompileEnd(graph, durationMs, err) })
}

func (h *MultiHook) OnPhaseStart(graph string, phase blueprint.Phase) {
	h.each(func(k Hook) { k.OnPhaseStart(graph, phase) })
}

func (h *MultiHook) OnPhaseEnd(graph string, phase blueprint.Phase, durationMs float64, err error) {
	h.each(func(k Hook) { k.OnPhaseEnd(graph, phase, durationMs, err) })
}

func (h *MultiHook) OnNodeEmitted(graph, entry, nodeID, nodeType string) {
	h.each(func(k Hook) { k.OnNodeEmitted(graph, entry, nodeID, nodeType) })
}
