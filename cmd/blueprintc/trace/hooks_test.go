package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	blueprint "github.com/mxkacsa/blueprint"
)

// ============================================================================
// ChannelHook Tests
// ============================================================================

func TestNewChannelHook(t *testing.T) {
	hook := NewChannelHook(10)
	if hook == nil {
		t.Fatal("NewChannelHook returned nil")
	}
	if cap(hook.C) != 10 {
		t.Errorf("Channel capacity = %d, want 10", cap(hook.C))
	}
}

func TestChannelHook_OnPhaseStart(t *testing.T) {
	hook := NewChannelHook(10)

	hook.OnPhaseStart("hello", blueprint.PhaseAnalyze)

	select {
	case msg := <-hook.C:
		if msg.Type != MsgPhaseStart {
			t.Errorf("Type = %v, want %v", msg.Type, MsgPhaseStart)
		}
		if msg.Graph != "hello" {
			t.Errorf("Graph = %v, want hello", msg.Graph)
		}
		if msg.Phase != "analyze" {
			t.Errorf("Phase = %v, want analyze", msg.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestChannelHook_OnCompileEnd_WithError(t *testing.T) {
	hook := NewChannelHook(10)

	hook.OnCompileEnd("hello", 2.5, errors.New("boom"))

	msg := <-hook.C
	if msg.Error != "boom" {
		t.Errorf("Error = %v, want 'boom'", msg.Error)
	}
	if msg.DurationMs != 2.5 {
		t.Errorf("DurationMs = %v, want 2.5", msg.DurationMs)
	}
}

func TestChannelHook_GraphFilter(t *testing.T) {
	hook := NewChannelHook(10)
	hook.Graph = "wanted"

	hook.OnCompileStart("other")
	hook.OnCompileStart("wanted")

	if len(hook.C) != 1 {
		t.Fatalf("len(C) = %d, want 1", len(hook.C))
	}
	if msg := <-hook.C; msg.Graph != "wanted" {
		t.Errorf("Graph = %v, want wanted", msg.Graph)
	}
}

func TestChannelHook_DropsWhenFull(t *testing.T) {
	hook := NewChannelHook(1)

	hook.OnCompileStart("a")
	hook.OnCompileStart("b")

	if len(hook.C) != 1 {
		t.Errorf("len(C) = %d, want 1", len(hook.C))
	}
}

// ============================================================================
// WriterHook Tests
// ============================================================================

func TestWriterHook_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	hook := NewWriterHook(&buf)

	hook.OnNodeEmitted("hello", "main", "print", "print_string")
	hook.OnPhaseEnd("hello", blueprint.PhaseEmit, 1, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var msg Message
	if err := json.Unmarshal([]byte(lines[0]), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != MsgNodeEmitted || msg.NodeID != "print" || msg.Entry != "main" {
		t.Errorf("msg = %+v", msg)
	}
}

// ============================================================================
// PrintHook / MultiHook Tests
// ============================================================================

func TestPrintHook(t *testing.T) {
	var buf bytes.Buffer
	hook := NewPrintHook(&buf)

	hook.OnCompileStart("hello")
	hook.OnPhaseEnd("hello", blueprint.PhaseValidate, 0, errors.New("no entry point"))
	hook.OnCompileEnd("hello", 1, nil)

	out := buf.String()
	for _, want := range []string{"compile started", "validate: no entry point", "compile completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMultiHook_Broadcasts(t *testing.T) {
	a := NewChannelHook(4)
	b := NewChannelHook(4)
	multi := NewMultiHook(a)
	multi.Add(b)
	multi.Add(NoopHook{})

	multi.OnNodeEmitted("g", "main", "n1", "branch")

	if len(a.C) != 1 || len(b.C) != 1 {
		t.Errorf("len(a.C)=%d len(b.C)=%d, want 1 and 1", len(a.C), len(b.C))
	}
}
