package macro

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blueprint "github.com/mxkacsa/blueprint"
)

type wire struct{ From, FromPin, To, ToPin string }

func wires(g *blueprint.GraphDescription) []wire {
	out := make([]wire, 0, len(g.Connections))
	for _, c := range g.Connections {
		out = append(out, wire{c.SourceNode, c.SourcePin, c.TargetNode, c.TargetPin})
	}
	return out
}

// greet prints the message fed into its msg pin and passes execution
// through In -> Out.
func greet() *blueprint.GraphDescription {
	m := blueprint.NewGraph("greet")
	m.AddNode(blueprint.MacroEntryID, "tunnel", nil)
	m.AddNode(blueprint.MacroExitID, "tunnel", nil)
	m.AddNode("say", "print_string", nil).Position = blueprint.Position{X: 10, Y: 20}
	m.Connect(blueprint.ConnectionExecution, blueprint.MacroEntryID, "In", "say", "exec")
	m.Data(blueprint.MacroEntryID, "msg", "say", "message")
	m.Connect(blueprint.ConnectionExecution, "say", "then", blueprint.MacroExitID, "Out")
	return m
}

func TestExpand_InlinesInstance(t *testing.T) {
	g := blueprint.NewGraph("main")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("m", "macro:greet", map[string]blueprint.PropertyValue{"msg": blueprint.StringValue("hi")}).
		Position = blueprint.Position{X: 100, Y: 200}
	g.AddNode("after", "print_string", nil)
	g.Connect(blueprint.ConnectionExecution, "start", "Body", "m", "In")
	g.Connect(blueprint.ConnectionExecution, "m", "Out", "after", "exec")

	out, err := Expand(g, map[string]*blueprint.GraphDescription{"greet": greet()})
	require.NoError(t, err)

	assert.Equal(t, []string{"after", "m/say", "start"}, out.NodeIDs())
	say := out.Nodes["m/say"]
	assert.Equal(t, blueprint.Position{X: 110, Y: 220}, say.Position)
	assert.Equal(t, blueprint.StringValue("hi"), say.Properties["message"])

	want := []wire{
		{"start", "Body", "m/say", "exec"},
		{"m/say", "then", "after", "exec"},
	}
	if diff := cmp.Diff(want, wires(out)); diff != "" {
		t.Errorf("wires mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, out.Macros)
	assert.False(t, HasMacros(out))

	// The input graph is untouched.
	assert.Contains(t, g.Nodes, "m")
	assert.Len(t, g.Connections, 2)
}

func TestExpand_WiredDataBeatsLiteral(t *testing.T) {
	g := blueprint.NewGraph("main")
	g.AddNode("text", "concat", nil)
	g.AddNode("m", "macro:greet", map[string]blueprint.PropertyValue{"msg": blueprint.StringValue("ignored")})
	g.Data("text", "result", "m", "msg")

	out, err := Expand(g, map[string]*blueprint.GraphDescription{"greet": greet()})
	require.NoError(t, err)

	_, hasLiteral := out.Nodes["m/say"].Properties["message"]
	assert.False(t, hasLiteral)
	assert.Contains(t, wires(out), wire{"text", "result", "m/say", "message"})
}

func TestExpand_FanOutThroughTunnel(t *testing.T) {
	twice := blueprint.NewGraph("twice")
	twice.AddNode(blueprint.MacroEntryID, "tunnel", nil)
	twice.AddNode("a", "print_string", nil)
	twice.AddNode("b", "print_string", nil)
	twice.Connect(blueprint.ConnectionExecution, blueprint.MacroEntryID, "In", "b", "exec")
	twice.Connect(blueprint.ConnectionExecution, blueprint.MacroEntryID, "In", "a", "exec")

	g := blueprint.NewGraph("main")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("t", "macro:twice", nil)
	g.Connect(blueprint.ConnectionExecution, "start", "Body", "t", "In")

	out, err := Expand(g, map[string]*blueprint.GraphDescription{"twice": twice})
	require.NoError(t, err)

	want := []wire{
		{"start", "Body", "t/b", "exec"},
		{"start", "Body", "t/a", "exec"},
	}
	if diff := cmp.Diff(want, wires(out)); diff != "" {
		t.Errorf("wires mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "c0>t/c0", out.Connections[0].ID)
}

func TestExpand_Nested(t *testing.T) {
	outer := blueprint.NewGraph("outer")
	outer.AddNode(blueprint.MacroEntryID, "tunnel", nil)
	outer.AddNode("inner", "macro:greet", map[string]blueprint.PropertyValue{"msg": blueprint.StringValue("nested")})
	outer.Connect(blueprint.ConnectionExecution, blueprint.MacroEntryID, "In", "inner", "In")

	g := blueprint.NewGraph("main")
	g.AddNode("start", "begin_play", nil)
	g.AddNode("o", "macro:outer", nil)
	g.Connect(blueprint.ConnectionExecution, "start", "Body", "o", "In")

	lib := map[string]*blueprint.GraphDescription{"greet": greet(), "outer": outer}
	out, err := Expand(g, lib)
	require.NoError(t, err)

	require.Contains(t, out.Nodes, "o/inner/say")
	assert.Equal(t, blueprint.StringValue("nested"), out.Nodes["o/inner/say"].Properties["message"])
	assert.Equal(t, []wire{{"start", "Body", "o/inner/say", "exec"}}, wires(out))
}

func TestExpand_GraphMacrosOverrideLibrary(t *testing.T) {
	local := blueprint.NewGraph("greet")
	local.AddNode("only", "print_string", nil)

	g := blueprint.NewGraph("main")
	g.AddNode("m", "macro:greet", nil)
	g.Macros = map[string]*blueprint.GraphDescription{"greet": local}

	out, err := Expand(g, map[string]*blueprint.GraphDescription{"greet": greet()})
	require.NoError(t, err)
	assert.Equal(t, []string{"m/only"}, out.NodeIDs())
}

func TestExpand_Errors(t *testing.T) {
	t.Run("unknown macro", func(t *testing.T) {
		g := blueprint.NewGraph("main")
		g.AddNode("m", "macro:nope", nil)

		_, err := Expand(g, nil)

		var se *blueprint.StructuralError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "m", se.NodeID)
	})

	t.Run("cycle", func(t *testing.T) {
		a := blueprint.NewGraph("a")
		a.AddNode("x", "macro:b", nil)
		b := blueprint.NewGraph("b")
		b.AddNode("y", "macro:a", nil)
		g := blueprint.NewGraph("main")
		g.AddNode("m", "macro:a", nil)

		_, err := Expand(g, map[string]*blueprint.GraphDescription{"a": a, "b": b})

		var ce *blueprint.CircularDependencyError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, blueprint.CycleMacro, ce.Kind)
		assert.Equal(t, []string{"a", "b", "a"}, ce.Nodes)
	})

	t.Run("expanded id collides", func(t *testing.T) {
		g := blueprint.NewGraph("main")
		g.AddNode("m", "macro:greet", nil)
		g.AddNode("m/say", "print_string", nil)

		_, err := Expand(g, map[string]*blueprint.GraphDescription{"greet": greet()})

		var se *blueprint.StructuralError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "m/say", se.NodeID)
	})

	t.Run("nil node", func(t *testing.T) {
		g := blueprint.NewGraph("main")
		g.Nodes["ghost"] = nil

		_, err := Expand(g, nil)

		assert.ErrorIs(t, err, blueprint.ErrStructural)
	})

	t.Run("wire kind changes at boundary", func(t *testing.T) {
		g := blueprint.NewGraph("main")
		g.AddNode("text", "concat", nil)
		g.AddNode("m", "macro:greet", nil)
		g.Connect(blueprint.ConnectionData, "text", "result", "m", "In")

		_, err := Expand(g, map[string]*blueprint.GraphDescription{"greet": greet()})

		assert.ErrorIs(t, err, blueprint.ErrStructural)
	})
}

func TestExpand_NoMacrosCopies(t *testing.T) {
	g := blueprint.NewGraph("plain")
	g.AddNode("p", "print_string", map[string]blueprint.PropertyValue{"message": blueprint.StringValue("x")})

	out, err := Expand(g, nil)
	require.NoError(t, err)

	out.Nodes["p"].Properties["message"] = blueprint.StringValue("changed")
	assert.Equal(t, blueprint.StringValue("x"), g.Nodes["p"].Properties["message"])
}
