package trace

import blueprint "github.com/mxkacsa/blueprint"

// NoopHook discards every event. It is the compiler's default.
type NoopHook struct{}

var _ Hook = (*NoopHook)(nil)

func (NoopHook) OnCompileStart(graph string)                              {}
func (NoopHook) OnCompileEnd(graph string, durationMs float64, err error) {}
func (NoopHook) OnPhaseStart(graph string, phase blueprint.Phase)         {}
func (NoopHook) OnNodeEmitted(graph, entry, nodeID, nodeType string)      {}
func (NoopHook) OnPhaseEnd(graph string, phase blueprint.Phase, durationMs float64, err error) {
}
