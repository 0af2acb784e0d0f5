package compiler

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blueprint "github.com/mxkacsa/blueprint"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/registry"
	"github.com/mxkacsa/blueprint/cmd/blueprintc/trace"
)

func str(s string) blueprint.PropertyValue  { return blueprint.StringValue(s) }
func num(n float64) blueprint.PropertyValue { return blueprint.NumberValue(n) }

func props(kv ...any) map[string]blueprint.PropertyValue {
	m := make(map[string]blueprint.PropertyValue)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1].(blueprint.PropertyValue)
	}
	return m
}

func mustCompile(t *testing.T, g *blueprint.GraphDescription, opts ...Option) string {
	t.Helper()
	res, err := New(registry.Standard(), opts...).Compile(context.Background(), g)
	require.NoError(t, err)
	if _, err := parser.ParseFile(token.NewFileSet(), "out.go", res.Source, 0); err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, res.Source)
	}
	return string(res.Source)
}

func compileErr(t *testing.T, g *blueprint.GraphDescription) error {
	t.Helper()
	res, err := New(registry.Standard()).Compile(context.Background(), g)
	require.Error(t, err)
	assert.Nil(t, res)
	return err
}

func helloGraph() *blueprint.GraphDescription {
	g := blueprint.NewGraph("hello")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("p", "print_string", props("message", str("Hello")))
	g.Exec("start", "Body", "p")
	return g
}

// ============================================================================
// Basic emission
// ============================================================================

func TestCompile_HelloWorld(t *testing.T) {
	src := mustCompile(t, helloGraph())

	assert.True(t, strings.HasPrefix(src, "// Code generated by blueprintc"), "missing header:\n%s", src)
	assert.Contains(t, src, "package main")
	assert.Contains(t, src, `"fmt"`)
	assert.Contains(t, src, "func print_string(message string) {")
	assert.Contains(t, src, "func main() {\n\tprint_string(\"Hello\")\n}")
}

func TestCompile_PureChainIsInlined(t *testing.T) {
	g := blueprint.NewGraph("pure")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("sum", "add", props("a", num(2), "b", num(3)))
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "p")
	g.Data("sum", "result", "p", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "print_number(2 + 3)")
	assert.NotContains(t, src, "func add(", "pure expressions are not emitted as functions")
	assert.NotContains(t, src, "n_sum")
}

func TestCompile_IsolatedNodesAreIgnored(t *testing.T) {
	g := helloGraph()
	g.AddNode("lonely", "print_number", nil) // no value: fine while unreachable

	src := mustCompile(t, g)

	assert.NotContains(t, src, "print_number")
}

func TestCompile_UnresolvedInput(t *testing.T) {
	g := blueprint.NewGraph("missing")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "p")

	err := compileErr(t, g)

	var ue *blueprint.UnresolvedInputError
	require.ErrorAs(t, err, &ue)
	if ue.NodeID != "p" || ue.Pin != "value" {
		t.Errorf("unresolved = %s.%s, want p.value", ue.NodeID, ue.Pin)
	}
	if ue.Phase != blueprint.PhaseEmit {
		t.Errorf("Phase = %q, want %q", ue.Phase, blueprint.PhaseEmit)
	}
	assert.True(t, errors.Is(err, blueprint.ErrUnresolvedInput))
}

func TestCompile_DefinitionEmittedOnce(t *testing.T) {
	g := blueprint.NewGraph("twice")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("a", "print_string", props("message", str("one")))
	g.AddNode("b", "print_string", props("message", str("two")))
	g.Exec("start", "Body", "a").Exec("a", "then", "b")

	src := mustCompile(t, g)

	if n := strings.Count(src, "func print_string("); n != 1 {
		t.Errorf("print_string defined %d times, want 1", n)
	}
	assert.Less(t, strings.Index(src, `print_string("one")`), strings.Index(src, `print_string("two")`))
}

func TestCompile_FanOutFollowsWireOrder(t *testing.T) {
	g := blueprint.NewGraph("fanout")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("a", "print_string", props("message", str("first")))
	g.AddNode("b", "print_string", props("message", str("second")))
	g.Exec("start", "Body", "b").Exec("start", "Body", "a")

	src := mustCompile(t, g)

	assert.Less(t, strings.Index(src, `print_string("second")`), strings.Index(src, `print_string("first")`))
}

func TestCompile_PureHelperFunction(t *testing.T) {
	g := blueprint.NewGraph("divide")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("d", "divide", props("a", num(1), "b", num(2)))
	g.AddNode("p", "print_value", nil)
	g.Exec("start", "Body", "p")
	g.Data("d", "result", "p", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "func divide(a float64, b float64) float64 {")
	assert.Contains(t, src, "print_value(divide(1, 2))")
}

// ============================================================================
// Control flow
// ============================================================================

func TestCompile_Branch(t *testing.T) {
	g := blueprint.NewGraph("branch")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("cmp", "greater", props("a", num(5), "b", num(3)))
	g.AddNode("br", "branch", nil)
	g.AddNode("yes", "print_string", props("message", str("yes")))
	g.AddNode("no", "print_string", props("message", str("no")))
	g.Exec("start", "Body", "br").
		Exec("br", "True", "yes").
		Exec("br", "False", "no")
	g.Data("cmp", "result", "br", "condition")

	src := mustCompile(t, g)

	assert.Contains(t, src, "if 5 > 3 {")
	assert.Contains(t, src, "} else {")
	assert.Less(t, strings.Index(src, `print_string("yes")`), strings.Index(src, `print_string("no")`))
	assert.NotContains(t, src, "execOutput")
}

func TestCompile_ForLoopContinuation(t *testing.T) {
	g := blueprint.NewGraph("loop")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("loop", "for_loop", props("count", num(3)))
	g.AddNode("body", "print_string", props("message", str("tick")))
	g.AddNode("done", "print_string", props("message", str("done")))
	g.Exec("start", "Body", "loop").
		Exec("loop", "Body", "body").
		Exec("loop", "Completed", "done")

	src := mustCompile(t, g)

	loop := strings.Index(src, "for i := int64(0); i < 3; i++ {")
	require.GreaterOrEqual(t, loop, 0, src)
	assert.Less(t, loop, strings.Index(src, `print_string("tick")`))
	assert.Less(t, strings.Index(src, `print_string("tick")`), strings.Index(src, `print_string("done")`))
}

func TestCompile_JoinBecomesClosure(t *testing.T) {
	g := blueprint.NewGraph("join")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("br", "branch", props("condition", blueprint.BoolValue(true)))
	g.AddNode("shared", "print_string", props("message", str("shared")))
	g.Exec("start", "Body", "br").
		Exec("br", "True", "shared").
		Exec("br", "False", "shared")

	src := mustCompile(t, g)

	if n := strings.Count(src, `print_string("shared")`); n != 1 {
		t.Errorf("shared node emitted %d times, want 1\n%s", n, src)
	}
	assert.Contains(t, src, "run_shared := func() {")
	if n := strings.Count(src, "run_shared()"); n != 2 {
		t.Errorf("run_shared called %d times, want 2", n)
	}
}

func TestCompile_ExecCycle(t *testing.T) {
	g := blueprint.NewGraph("cycle")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("a", "print_string", props("message", str("a")))
	g.AddNode("b", "print_string", props("message", str("b")))
	g.Exec("start", "Body", "a").Exec("a", "then", "b").Exec("b", "then", "a")

	err := compileErr(t, g)

	var ce *blueprint.CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, blueprint.CycleExec, ce.Kind)
	if diff := cmp.Diff([]string{"a", "b"}, ce.Nodes); diff != "" {
		t.Errorf("cycle nodes mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Data flow
// ============================================================================

func TestCompile_SharedPureIsBoundOnce(t *testing.T) {
	g := blueprint.NewGraph("shared")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("sum", "add", props("a", num(2), "b", num(3)))
	g.AddNode("p1", "print_number", nil)
	g.AddNode("p2", "print_number", nil)
	g.Exec("start", "Body", "p1").Exec("p1", "then", "p2")
	g.Data("sum", "result", "p1", "value").Data("sum", "result", "p2", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "var n_sum int64 = 2 + 3")
	if n := strings.Count(src, "print_number(n_sum)"); n != 2 {
		t.Errorf("print_number(n_sum) appears %d times, want 2", n)
	}
}

func TestCompile_BindingsFollowDataOrder(t *testing.T) {
	g := blueprint.NewGraph("order")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("z", "add", props("a", num(1), "b", num(2)))
	g.AddNode("y", "multiply", props("b", num(3)))
	g.AddNode("p1", "print_number", nil)
	g.AddNode("p2", "print_number", nil)
	g.AddNode("p3", "print_number", nil)
	g.Exec("start", "Body", "p1").Exec("p1", "then", "p2").Exec("p2", "then", "p3")
	g.Data("y", "result", "p2", "value").
		Data("y", "result", "p3", "value").
		Data("z", "result", "y", "a").
		Data("z", "result", "p1", "value")

	src := mustCompile(t, g)

	z := strings.Index(src, "var n_z int64 = 1 + 2")
	y := strings.Index(src, "var n_y int64 = n_z * 3")
	require.GreaterOrEqual(t, z, 0, src)
	require.GreaterOrEqual(t, y, 0, src)
	assert.Less(t, z, y, "a value must be bound before the values that read it")
}

func TestCompile_FunctionOutput(t *testing.T) {
	g := blueprint.NewGraph("output")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("log", "log_message", props("message", str("x")))
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "log").Exec("log", "then", "p")
	g.Data("log", "result", "p", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "var n_log int64")
	assert.Contains(t, src, `n_log = log_message("x")`)
	assert.Contains(t, src, "print_number(n_log)")
	assert.Contains(t, src, `"os"`)
}

func TestCompile_ReadingOutputOfNodeThatNeverRuns(t *testing.T) {
	g := blueprint.NewGraph("stale")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("log", "log_message", props("message", str("x")))
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "p")
	g.Data("log", "result", "p", "value")

	err := compileErr(t, g)

	var se *blueprint.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "p", se.NodeID)
	assert.Equal(t, blueprint.PhaseEmit, se.Phase)
}

func TestCompile_NumericWidening(t *testing.T) {
	g := blueprint.NewGraph("widen")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("sum", "add", props("a", num(2), "b", num(3)))
	g.AddNode("rs", "range_switch", nil)
	g.Exec("start", "Body", "rs")
	g.Data("sum", "result", "rs", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "float64(2")
}

func TestCompile_TypeMismatch(t *testing.T) {
	g := blueprint.NewGraph("mismatch")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("s", "concat", props("a", str("a"), "b", str("b")))
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "p")
	g.Data("s", "result", "p", "value")

	err := compileErr(t, g)

	var tm *blueprint.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "string", tm.SourceType)
	assert.Equal(t, "int64", tm.TargetType)
	assert.Equal(t, blueprint.PhaseAnalyze, tm.Phase)
}

func TestCompile_DataCycle(t *testing.T) {
	g := blueprint.NewGraph("loop")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("x", "add", props("b", num(1)))
	g.AddNode("y", "add", props("b", num(1)))
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "p")
	g.Data("x", "result", "y", "a").Data("y", "result", "x", "a").Data("x", "result", "p", "value")

	err := compileErr(t, g)

	var ce *blueprint.CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, blueprint.CycleData, ce.Kind)
	assert.Equal(t, []string{"x", "y"}, ce.Nodes)
}

// ============================================================================
// Structure and naming
// ============================================================================

func TestCompile_UnknownNodeType(t *testing.T) {
	g := helloGraph()
	g.AddNode("bad", "teleport", nil)

	err := compileErr(t, g)

	var se *blueprint.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad", se.NodeID)
	assert.Equal(t, blueprint.PhaseValidate, se.Phase)
}

func TestCompile_NoEntryPoint(t *testing.T) {
	g := blueprint.NewGraph("noentry")
	g.AddNode("p", "print_string", props("message", str("x")))

	err := compileErr(t, g)

	assert.ErrorIs(t, err, blueprint.ErrStructural)
	assert.Contains(t, err.Error(), "entry point")
}

func TestCompile_UnknownExecPin(t *testing.T) {
	g := helloGraph()
	g.AddNode("q", "print_string", props("message", str("q")))
	g.Exec("p", "Sideways", "q")

	err := compileErr(t, g)

	var se *blueprint.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Sideways", se.Pin)
}

func TestCompile_DuplicateEntryFunctions(t *testing.T) {
	g := helloGraph()
	g.AddNode("again", "begin_play", nil)

	err := compileErr(t, g)

	var de *blueprint.DuplicateEmissionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "main", de.Name)
	assert.Equal(t, []string{"again", "start"}, de.NodeIDs)
	assert.Equal(t, blueprint.PhaseAssemble, de.Phase)
}

func TestCompile_SeveralEntries(t *testing.T) {
	g := helloGraph()
	g.AddNode("tick", "on_tick", nil)
	g.AddNode("tp", "print_string", props("message", str("tick")))
	g.Exec("tick", "Body", "tp")

	res, err := New(registry.Standard()).Compile(context.Background(), g)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"main", "on_tick"}, res.Entries); diff != "" {
		t.Errorf("Entries mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"fmt"}, res.Imports)
	src := string(res.Source)
	assert.Equal(t, 1, strings.Count(src, "func print_string("))
	assert.Contains(t, src, "func on_tick() {")
}

func TestNamer(t *testing.T) {
	n := newNamer([]string{"a-b", "a_b", "node 1", "ü"})

	tests := []struct {
		id   string
		want string
	}{
		{"a-b", "n_a_b"},
		{"a_b", "n_a_b_2"},
		{"node 1", "n_node_1"},
		{"ü", "n__"},
	}
	for _, tt := range tests {
		if got := n.value(tt.id); got != tt.want {
			t.Errorf("value(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
	if got := n.run("a-b"); got != "run_a_b" {
		t.Errorf("run(a-b) = %q, want run_a_b", got)
	}
}

// ============================================================================
// Variables and macros
// ============================================================================

func TestCompile_Variables(t *testing.T) {
	five := num(5)
	g := blueprint.NewGraph("vars")
	g.Variables = []blueprint.Variable{{Name: "score", Type: "int64", Default: &five}}
	g.AddNode("start", "begin_play", nil)
	g.AddNode("set", "set_score", props("value", num(10)))
	g.AddNode("get", "get_score", nil)
	g.AddNode("p", "print_number", nil)
	g.Exec("start", "Body", "set").Exec("set", "then", "p")
	g.Data("get", "result", "p", "value")

	src := mustCompile(t, g)

	assert.Contains(t, src, "score int64 = 5")
	assert.Contains(t, src, "func set_score(value int64) {")
	assert.Contains(t, src, "set_score(10)")
	assert.Contains(t, src, "print_number(score)")
}

func TestCompile_VariableReadAfterWrite(t *testing.T) {
	zero := num(0)
	g := blueprint.NewGraph("vars")
	g.Variables = []blueprint.Variable{{Name: "score", Type: "int64", Default: &zero}}
	g.AddNode("start", "begin_play", nil)
	g.AddNode("set", "set_score", props("value", num(5)))
	g.AddNode("get", "get_score", nil)
	g.AddNode("p1", "print_number", nil)
	g.AddNode("p2", "print_number", nil)
	g.Exec("start", "Body", "set").Exec("set", "then", "p1").Exec("p1", "then", "p2")
	g.Data("get", "result", "p1", "value").Data("get", "result", "p2", "value")

	src := mustCompile(t, g)

	assert.NotContains(t, src, "n_get", "a variable read must not be hoisted")
	set := strings.Index(src, "set_score(5)")
	read := strings.Index(src, "print_number(score)")
	if set < 0 || read < 0 || read < set {
		t.Errorf("score must be read after set_score(5) runs:\n%s", src)
	}
	assert.Equal(t, 2, strings.Count(src, "print_number(score)"))
}

func TestCompile_InvalidVariable(t *testing.T) {
	g := helloGraph()
	g.Variables = []blueprint.Variable{{Name: "bad name", Type: "int64"}}

	err := compileErr(t, g)

	assert.ErrorIs(t, err, blueprint.ErrStructural)
}

func greetMacro() *blueprint.GraphDescription {
	m := blueprint.NewGraph("greet")
	m.AddNode(blueprint.MacroEntryID, "macro_entry", nil)
	m.AddNode("say", "print_string", nil)
	m.Connect(blueprint.ConnectionExecution, blueprint.MacroEntryID, "In", "say", "exec")
	m.Data(blueprint.MacroEntryID, "msg", "say", "message")
	return m
}

func TestCompile_Macro(t *testing.T) {
	g := blueprint.NewGraph("macro")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("m1", blueprint.MacroPrefix+"greet", props("msg", str("hi")))
	g.Connect(blueprint.ConnectionExecution, "start", "Body", "m1", "In")

	src := mustCompile(t, g, WithMacros(map[string]*blueprint.GraphDescription{"greet": greetMacro()}))

	assert.Contains(t, src, `print_string("hi")`)
}

func TestCompile_MacroCycle(t *testing.T) {
	a := blueprint.NewGraph("a")
	a.AddNode("inner", blueprint.MacroPrefix+"b", nil)
	b := blueprint.NewGraph("b")
	b.AddNode("inner", blueprint.MacroPrefix+"a", nil)

	g := helloGraph()
	g.Macros = map[string]*blueprint.GraphDescription{"a": a, "b": b}
	g.AddNode("m", blueprint.MacroPrefix+"a", nil)

	err := compileErr(t, g)

	var ce *blueprint.CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, blueprint.CycleMacro, ce.Kind)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Nodes)
	assert.Equal(t, blueprint.PhaseNormalize, ce.Phase)
}

// ============================================================================
// Options, caching and tracing
// ============================================================================

func TestCompile_Deterministic(t *testing.T) {
	g := blueprint.NewGraph("det")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("cmp", "greater", props("a", num(5), "b", num(3)))
	g.AddNode("br", "branch", nil)
	g.AddNode("yes", "print_string", props("message", str("yes")))
	g.AddNode("up", "to_upper", props("text", str("no")))
	g.AddNode("no", "print_string", nil)
	g.Exec("start", "Body", "br").Exec("br", "True", "yes").Exec("br", "False", "no")
	g.Data("cmp", "result", "br", "condition").Data("up", "result", "no", "message")

	first := mustCompile(t, g, WithResultCache(false))
	for i := 0; i < 5; i++ {
		if got := mustCompile(t, g.Clone(), WithResultCache(false)); got != first {
			t.Fatalf("compile %d differs:\n%s\nvs\n%s", i, got, first)
		}
	}
	assert.Contains(t, first, `print_string(strings.ToUpper("no"))`)
}

func TestCompile_ResultCacheReturnsCopies(t *testing.T) {
	c := New(registry.Standard())
	ctx := context.Background()

	first, err := c.Compile(ctx, helloGraph())
	require.NoError(t, err)
	first.Source[0] = 'X'

	second, err := c.Compile(ctx, helloGraph())
	require.NoError(t, err)
	assert.Equal(t, byte('/'), second.Source[0])
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestCompile_ResultCacheStillValidates(t *testing.T) {
	c := New(registry.Standard())
	ctx := context.Background()

	_, err := c.Compile(ctx, helloGraph())
	require.NoError(t, err)

	bad := helloGraph()
	bad.Version = "not-a-version"
	res, err := c.Compile(ctx, bad)
	assert.Nil(t, res)
	var se *blueprint.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, blueprint.PhaseValidate, se.Phase)

	renamed := helloGraph()
	renamed.Nodes["p"].ID = "other"
	_, err = c.Compile(ctx, renamed)
	assert.ErrorIs(t, err, blueprint.ErrStructural)
}

func TestCompile_NilNode(t *testing.T) {
	g := helloGraph()
	g.Nodes["ghost"] = nil

	err := compileErr(t, g)

	var se *blueprint.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ghost", se.NodeID)
}

func TestCompile_Options(t *testing.T) {
	src := mustCompile(t, helloGraph(), WithPackage("game"), WithHeader(false), WithFormat(false))

	assert.True(t, strings.HasPrefix(src, "package game"), src)
	assert.NotContains(t, src, "Code generated")

	_, err := New(registry.Standard(), WithPackage("not a name")).Compile(context.Background(), helloGraph())
	assert.Error(t, err)
}

func TestCompile_TraceHooks(t *testing.T) {
	hook := trace.NewChannelHook(128)
	_, err := New(registry.Standard(), WithHooks(hook)).Compile(context.Background(), helloGraph())
	require.NoError(t, err)
	close(hook.C)

	var phases []string
	emitted := make(map[string]bool)
	for msg := range hook.C {
		switch msg.Type {
		case trace.MsgPhaseStart:
			phases = append(phases, msg.Phase)
		case trace.MsgNodeEmitted:
			emitted[msg.NodeID] = true
			assert.Equal(t, "main", msg.Entry)
		}
	}
	want := []string{"validate", "normalize", "classify", "analyze", "emit", "assemble"}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, emitted["start"])
	assert.True(t, emitted["p"])
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	g := blueprint.NewGraph("broken")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("x", "nope", nil)
	g.Exec("start", "Body", "ghost")

	err := New(registry.Standard()).Validate(context.Background(), g)

	var ve *blueprint.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	for _, e := range ve.Errors {
		assert.ErrorIs(t, e, blueprint.ErrStructural)
	}
}

func TestValidate_SoundGraph(t *testing.T) {
	err := New(registry.Standard()).Validate(context.Background(), helloGraph())
	assert.NoError(t, err)
}

func TestCompile_ConcurrentUse(t *testing.T) {
	c := New(registry.Standard(), WithResultCache(false))
	want := mustCompile(t, helloGraph())

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := c.Compile(context.Background(), helloGraph())
			if err == nil && string(res.Source) != want {
				err = errors.New("output differs")
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}
