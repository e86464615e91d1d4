package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/careline/careline/agent"
	"github.com/careline/careline/llm"
	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
)

func newTestTerminal(in string, steps ...llm.ScriptStep) (*Terminal, *bytes.Buffer) {
	reg := tools.NewRegistry()
	_ = reg.Register(&tools.EscalateTool{})
	a := agent.New(llm.NewScriptedClient(steps...), reg, session.NewMemoryStore(), agent.Policy{}, nil)
	out := &bytes.Buffer{}
	return New(a, "t1", strings.NewReader(in), out), out
}

func TestRunAnswersAndQuits(t *testing.T) {
	term, out := newTestTerminal("hello\n/quit\n", llm.ScriptStep{
		Message: &session.Message{Role: session.RoleAssistant, Content: "Hi, how can I help?"},
	})

	if err := term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Alex: Hi, how can I help?") {
		t.Errorf("output missing reply:\n%s", got)
	}
	if !strings.Contains(got, "Goodbye.") {
		t.Errorf("output missing quit message:\n%s", got)
	}
}

func TestRunEndsAtEOF(t *testing.T) {
	term, _ := newTestTerminal("")
	if err := term.Run(context.Background()); err != nil {
		t.Fatalf("Run at EOF: %v", err)
	}
}

func TestRunAnnouncesEscalation(t *testing.T) {
	term, out := newTestTerminal("talk to a human\n", llm.ScriptStep{
		Message: &session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{
			{ID: "c1", Name: "escalate_to_human", Args: map[string]interface{}{
				"reason":  "explicit_request",
				"summary": "customer asked for a human",
			}},
		}},
	})

	if err := term.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "handed to a human agent") {
		t.Errorf("output missing escalation notice:\n%s", out.String())
	}
}
