package blueprint

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checking via errors.Is.
var (
	// ErrStructural covers unknown node types, dangling wires, unknown pins and
	// missing entry points.
	ErrStructural = errors.New("structural error")

	// ErrCircularDependency covers cycles among pure data dependencies,
	// execution chains and macro expansion.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrUnresolvedInput is an input pin with no wire, literal or default.
	ErrUnresolvedInput = errors.New("unresolved input")

	// ErrTypeMismatch is a data wire between incompatible pin types.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrTemplate is a registry template that fails to parse or disagrees with
	// its declared execution outputs.
	ErrTemplate = errors.New("template error")

	// ErrDuplicateEmission is raised when the generator would emit the same
	// definition twice.
	ErrDuplicateEmission = errors.New("duplicate emission")
)

// Phase names a compilation phase. Errors carry the phase they came from.
type Phase string

const (
	PhaseValidate  Phase = "validate"
	PhaseNormalize Phase = "normalize"
	PhaseClassify  Phase = "classify"
	PhaseAnalyze   Phase = "analyze"
	PhaseEmit      Phase = "emit"
	PhaseAssemble  Phase = "assemble"
)

// PhasedError is implemented by every compile error so the orchestrator can
// stamp the phase in which it surfaced.
type PhasedError interface {
	error
	SetPhase(Phase)
}

func phasePrefix(p Phase) string {
	if p == "" {
		return ""
	}
	return string(p) + ": "
}

// StructuralError is a malformed graph.
type StructuralError struct {
	Phase        Phase
	NodeID       string
	Pin          string
	ConnectionID string
	Msg          string
}

func (e *StructuralError) Error() string {
	var sb strings.Builder
	sb.WriteString(phasePrefix(e.Phase))
	sb.WriteString(ErrStructural.Error())
	if e.NodeID != "" {
		fmt.Fprintf(&sb, ": node %q", e.NodeID)
		if e.Pin != "" {
			fmt.Fprintf(&sb, " pin %q", e.Pin)
		}
	}
	if e.ConnectionID != "" {
		fmt.Fprintf(&sb, ": connection %q", e.ConnectionID)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

func (e *StructuralError) Unwrap() error    { return ErrStructural }
func (e *StructuralError) SetPhase(p Phase) { e.Phase = p }

// CycleKind tells which graph a cycle was found in.
type CycleKind string

const (
	CycleData  CycleKind = "data"
	CycleExec  CycleKind = "execution"
	CycleMacro CycleKind = "macro"
)

// CircularDependencyError reports every participant of a cycle: node ids for
// data and execution cycles, macro names for macro cycles.
type CircularDependencyError struct {
	Phase Phase
	Kind  CycleKind
	Nodes []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%s%s: %s cycle through [%s]",
		phasePrefix(e.Phase), ErrCircularDependency.Error(), e.Kind, strings.Join(e.Nodes, ", "))
}

func (e *CircularDependencyError) Unwrap() error    { return ErrCircularDependency }
func (e *CircularDependencyError) SetPhase(p Phase) { e.Phase = p }

// UnresolvedInputError names the input pin that has no value source.
type UnresolvedInputError struct {
	Phase  Phase
	NodeID string
	Pin    string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("%s%s: node %q pin %q has no connection, literal or default",
		phasePrefix(e.Phase), ErrUnresolvedInput.Error(), e.NodeID, e.Pin)
}

func (e *UnresolvedInputError) Unwrap() error    { return ErrUnresolvedInput }
func (e *UnresolvedInputError) SetPhase(p Phase) { e.Phase = p }

// TypeMismatchError names both ends of an incompatible data wire. For a
// property literal SourceNode is empty and SourceType is the literal's kind.
type TypeMismatchError struct {
	Phase        Phase
	ConnectionID string
	SourceNode   string
	SourcePin    string
	SourceType   string
	TargetNode   string
	TargetPin    string
	TargetType   string
}

func (e *TypeMismatchError) Error() string {
	if e.SourceNode == "" {
		return fmt.Sprintf("%s%s: %s literal -> %s.%s (%s)",
			phasePrefix(e.Phase), ErrTypeMismatch.Error(), e.SourceType,
			e.TargetNode, e.TargetPin, e.TargetType)
	}
	return fmt.Sprintf("%s%s: connection %q %s.%s (%s) -> %s.%s (%s)",
		phasePrefix(e.Phase), ErrTypeMismatch.Error(), e.ConnectionID,
		e.SourceNode, e.SourcePin, e.SourceType, e.TargetNode, e.TargetPin, e.TargetType)
}

func (e *TypeMismatchError) Unwrap() error    { return ErrTypeMismatch }
func (e *TypeMismatchError) SetPhase(p Phase) { e.Phase = p }

// TemplateError is a registry defect. It is never recoverable by editing the
// graph.
type TemplateError struct {
	Phase    Phase
	NodeType string
	Msg      string
	Missing  []string // declared exec outputs with no placeholder
	Extra    []string // placeholders with no declared exec output
	Cause    error
}

func (e *TemplateError) Error() string {
	var sb strings.Builder
	sb.WriteString(phasePrefix(e.Phase))
	sb.WriteString(ErrTemplate.Error())
	if e.NodeType != "" {
		fmt.Fprintf(&sb, ": node type %q", e.NodeType)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, " (missing placeholders: %s)", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&sb, " (undeclared placeholders: %s)", strings.Join(e.Extra, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Is lets errors.Is match both the sentinel and the wrapped cause.
func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }

func (e *TemplateError) Unwrap() error    { return e.Cause }
func (e *TemplateError) SetPhase(p Phase) { e.Phase = p }

// DuplicateEmissionError is raised when a definition or a node's statement
// would appear more than once.
type DuplicateEmissionError struct {
	Phase   Phase
	Name    string
	NodeIDs []string
}

func (e *DuplicateEmissionError) Error() string {
	return fmt.Sprintf("%s%s: %q emitted by [%s]",
		phasePrefix(e.Phase), ErrDuplicateEmission.Error(), e.Name, strings.Join(e.NodeIDs, ", "))
}

func (e *DuplicateEmissionError) Unwrap() error    { return ErrDuplicateEmission }
func (e *DuplicateEmissionError) SetPhase(p Phase) { e.Phase = p }

// ValidationErrors collects every structural problem found by a validate-only
// run.
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap returns every collected error for errors.Is/As.
func (e *ValidationErrors) Unwrap() []error { return e.Errors }

// HasErrors reports whether anything was collected.
func (e *ValidationErrors) HasErrors() bool { return len(e.Errors) > 0 }

// Add appends err if non-nil.
func (e *ValidationErrors) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ErrorOrNil returns e when it holds errors.
func (e *ValidationErrors) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}
