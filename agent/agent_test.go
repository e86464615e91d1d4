package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/careline/careline/llm"
	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
)

// stubTool is a minimal tool for loop tests. It counts invocations, can
// delay to exercise concurrency, and can fail on demand.
type stubTool struct {
	name  string
	delay time.Duration
	reply string
	fail  error
	calls atomic.Int32
}

func (t *stubTool) Name() string          { return t.name }
func (t *stubTool) Description() string   { return "test tool" }
func (t *stubTool) Schema() *tools.Schema { return nil }

func (t *stubTool) Execute(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
	t.calls.Add(1)
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return tools.Result{}, ctx.Err()
		}
	}
	if t.fail != nil {
		return tools.Result{}, t.fail
	}
	return tools.Result{Content: t.reply}, nil
}

func assistantText(text string) llm.ScriptStep {
	return llm.ScriptStep{Message: &session.Message{Role: session.RoleAssistant, Content: text}}
}

func assistantCalls(calls ...session.ToolCall) llm.ScriptStep {
	return llm.ScriptStep{Message: &session.Message{Role: session.RoleAssistant, ToolCalls: calls}}
}

func newTestAgent(t *testing.T, client llm.Client, reg *tools.Registry) (*Agent, *session.MemoryStore) {
	t.Helper()
	if reg == nil {
		reg = tools.NewRegistry()
	}
	store := session.NewMemoryStore()
	return New(client, reg, store, Policy{}, nil), store
}

func mustRegister(t *testing.T, reg *tools.Registry, tls ...tools.Tool) {
	t.Helper()
	for _, tool := range tls {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register %s: %v", tool.Name(), err)
		}
	}
}

func TestSubmitDirectAnswer(t *testing.T) {
	client := llm.NewScriptedClient(assistantText("Hello! How can I help?"))
	a, store := newTestAgent(t, client, nil)

	reply, err := a.Submit(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Text != "Hello! How can I help?" {
		t.Errorf("reply = %q", reply.Text)
	}
	if reply.Phase != PhaseAwaitingUser {
		t.Errorf("phase = %q, want %q", reply.Phase, PhaseAwaitingUser)
	}
	if reply.Status != session.StatusActive {
		t.Errorf("status = %q, want active", reply.Status)
	}

	state, err := store.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(state.Messages))
	}
	if state.Messages[0].Role != session.RoleUser || state.Messages[1].Role != session.RoleAssistant {
		t.Errorf("transcript roles wrong: %q, %q", state.Messages[0].Role, state.Messages[1].Role)
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	a, _ := newTestAgent(t, llm.NewScriptedClient(), nil)

	if _, err := a.Submit(context.Background(), "", "hi"); err == nil {
		t.Error("empty thread id accepted")
	}
	if _, err := a.Submit(context.Background(), "t1", "   "); err == nil {
		t.Error("blank message accepted")
	}
}

func TestSubmitToolRound(t *testing.T) {
	reg := tools.NewRegistry()
	lookup := &stubTool{name: "lookup", reply: "order is in transit"}
	mustRegister(t, reg, lookup)

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "lookup"}),
		assistantText("Your order is on its way."),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "where is my order?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Text != "Your order is on its way." {
		t.Errorf("reply = %q", reply.Text)
	}
	if got := lookup.calls.Load(); got != 1 {
		t.Errorf("tool ran %d times, want 1", got)
	}

	state, _ := store.Load(context.Background(), "t1")
	roles := make([]string, len(state.Messages))
	for i, m := range state.Messages {
		roles[i] = m.Role
	}
	want := []string{session.RoleUser, session.RoleAssistant, session.RoleTool, session.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("transcript roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("transcript roles = %v, want %v", roles, want)
		}
	}
	if state.Messages[2].ToolCallID != "c1" || state.Messages[2].Content != "order is in transit" {
		t.Errorf("tool result wrong: %+v", state.Messages[2])
	}
	if err := state.ValidatePairing(); err != nil {
		t.Errorf("pairing violated: %v", err)
	}
}

func TestToolErrorFedBackToModel(t *testing.T) {
	reg := tools.NewRegistry()
	broken := &stubTool{name: "broken", fail: stderrors.New("backend unavailable")}
	mustRegister(t, reg, broken)

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "broken"}),
		assistantText("I couldn't reach that system, sorry."),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "check it")
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if reply.Phase != PhaseAwaitingUser {
		t.Errorf("phase = %q, want %q", reply.Phase, PhaseAwaitingUser)
	}

	state, _ := store.Load(context.Background(), "t1")
	result := state.Messages[2]
	if result.Role != session.RoleTool || !strings.Contains(result.Content, "Error:") {
		t.Errorf("tool failure should surface as result content: %+v", result)
	}
}

func TestUnknownToolCallRecovered(t *testing.T) {
	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "no_such_tool"}),
		assistantText("Let me try something else."),
	)
	a, store := newTestAgent(t, client, nil)

	reply, err := a.Submit(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Text != "Let me try something else." {
		t.Errorf("reply = %q", reply.Text)
	}

	state, _ := store.Load(context.Background(), "t1")
	if !strings.Contains(state.Messages[2].Content, "unknown tool") {
		t.Errorf("result should name the failure: %q", state.Messages[2].Content)
	}
}

func TestEscalationEndsTurn(t *testing.T) {
	reg := tools.NewRegistry()
	mustRegister(t, reg, &tools.EscalateTool{})

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "escalate_to_human", Args: map[string]interface{}{
			"reason":  "customer_frustrated",
			"summary": "refund dispute",
		}}),
		assistantText("this must never be reached"),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "I want a human NOW")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Phase != PhaseEscalated {
		t.Errorf("phase = %q, want %q", reply.Phase, PhaseEscalated)
	}
	if reply.Status != session.StatusEscalated {
		t.Errorf("status = %q, want escalated", reply.Status)
	}
	if !strings.Contains(reply.Text, "TICKET-") {
		t.Errorf("handoff message should carry the ticket: %q", reply.Text)
	}
	if got := client.Calls(); got != 1 {
		t.Errorf("model called %d times after escalation, want 1", got)
	}

	state, _ := store.Load(context.Background(), "t1")
	if state.Status != session.StatusEscalated {
		t.Errorf("persisted status = %q, want escalated", state.Status)
	}
}

func TestLoopCeiling(t *testing.T) {
	reg := tools.NewRegistry()
	looping := &stubTool{name: "lookup", reply: "still looking"}
	mustRegister(t, reg, looping)

	// The script repeats its last step, so the model requests a tool on
	// every round forever.
	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "lookup"}),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "loop forever")
	if !stderrors.Is(err, ErrLoopLimit) {
		t.Fatalf("err = %v, want ErrLoopLimit", err)
	}
	if got := client.Calls(); got != 6 {
		t.Errorf("model called %d times, want exactly 6", got)
	}
	if reply.Phase != PhaseFailed {
		t.Errorf("phase = %q, want %q", reply.Phase, PhaseFailed)
	}
	if reply.Status != session.StatusActive {
		t.Errorf("status = %q, aborting must not change it", reply.Status)
	}
	if reply.Text != apologyText {
		t.Errorf("reply = %q, want the apology", reply.Text)
	}

	state, _ := store.Load(context.Background(), "t1")
	last, _ := state.LastMessage()
	if last.Role != session.RoleAssistant || last.Content != apologyText {
		t.Errorf("apology not recorded in transcript: %+v", last)
	}
}

func TestModelRetrySucceeds(t *testing.T) {
	transient := fmt.Errorf("%w: connection reset", llm.ErrInference)
	client := llm.NewScriptedClient(
		llm.ScriptStep{Err: transient},
		llm.ScriptStep{Err: transient},
		assistantText("finally"),
	)
	a, _ := newTestAgent(t, client, nil)

	reply, err := a.Submit(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Text != "finally" {
		t.Errorf("reply = %q", reply.Text)
	}
	if got := client.Calls(); got != 3 {
		t.Errorf("model called %d times, want 3", got)
	}
}

func TestModelRetryExhausted(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ScriptStep{Err: fmt.Errorf("%w: provider down", llm.ErrInference)},
	)
	a, store := newTestAgent(t, client, nil)

	reply, err := a.Submit(context.Background(), "t1", "hi")
	if !stderrors.Is(err, llm.ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
	if got := client.Calls(); got != 3 {
		t.Errorf("model called %d times, want 3 (1 attempt + 2 retries)", got)
	}
	if reply.Phase != PhaseFailed {
		t.Errorf("phase = %q, want %q", reply.Phase, PhaseFailed)
	}
	if reply.Text != apologyText {
		t.Errorf("reply = %q, want the apology", reply.Text)
	}
	if reply.Status != session.StatusActive {
		t.Errorf("status = %q, failure must not change it", reply.Status)
	}

	// The user message is durably recorded even though the turn failed.
	state, _ := store.Load(context.Background(), "t1")
	last, _ := state.LastMessage()
	if last.Role != session.RoleUser {
		t.Errorf("last message role = %q, want user", last.Role)
	}
}

func TestConcurrentToolResultsKeepRequestOrder(t *testing.T) {
	reg := tools.NewRegistry()
	slow := &stubTool{name: "slow", delay: 80 * time.Millisecond, reply: "slow done"}
	fast := &stubTool{name: "fast", reply: "fast done"}
	mustRegister(t, reg, slow, fast)

	client := llm.NewScriptedClient(
		assistantCalls(
			session.ToolCall{ID: "c1", Name: "slow"},
			session.ToolCall{ID: "c2", Name: "fast"},
		),
		assistantText("both done"),
	)
	a, store := newTestAgent(t, client, reg)

	if _, err := a.Submit(context.Background(), "t1", "do both"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	state, _ := store.Load(context.Background(), "t1")
	// user, assistant, tool c1, tool c2, assistant
	if len(state.Messages) != 5 {
		t.Fatalf("transcript has %d messages, want 5", len(state.Messages))
	}
	if state.Messages[2].ToolCallID != "c1" || state.Messages[3].ToolCallID != "c2" {
		t.Errorf("results out of request order: %q then %q",
			state.Messages[2].ToolCallID, state.Messages[3].ToolCallID)
	}
	if err := state.ValidatePairing(); err != nil {
		t.Errorf("pairing violated: %v", err)
	}
}

func TestResumeDoesNotRerunCompletedCalls(t *testing.T) {
	reg := tools.NewRegistry()
	counted := &stubTool{name: "lookup", reply: "found it"}
	mustRegister(t, reg, counted)

	store := session.NewMemoryStore()
	ctx := context.Background()

	// A checkpoint captured mid-execution: two calls requested, only the
	// first resolved before the crash.
	state := session.NewState("t1")
	state.Append(session.Message{Role: session.RoleUser, Content: "look up both"})
	state.Append(session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{
		{ID: "c1", Name: "lookup"},
		{ID: "c2", Name: "lookup"},
	}})
	state.Append(session.Message{Role: session.RoleTool, ToolCallID: "c1", ToolName: "lookup", Content: "already done"})
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	client := llm.NewScriptedClient(
		assistantText("finished the interrupted work"),
		assistantText("and here is your new answer"),
	)
	a := New(client, reg, store, Policy{}, nil)

	reply, err := a.Submit(ctx, "t1", "any update?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Text != "and here is your new answer" {
		t.Errorf("reply = %q", reply.Text)
	}
	// Only the unresolved call c2 runs again.
	if got := counted.calls.Load(); got != 1 {
		t.Errorf("tool ran %d times on resume, want 1", got)
	}

	final, _ := store.Load(ctx, "t1")
	if err := final.ValidatePairing(); err != nil {
		t.Errorf("pairing violated after resume: %v", err)
	}
	// user, assistant(calls), tool c1, tool c2, assistant (resumed turn),
	// user, assistant
	if len(final.Messages) != 7 {
		t.Errorf("transcript has %d messages, want 7", len(final.Messages))
	}
}

func TestThreadsAreSerialized(t *testing.T) {
	client := llm.NewScriptedClient() // canned answer for every call
	a, store := newTestAgent(t, client, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := a.Submit(context.Background(), "t1", fmt.Sprintf("message %d", n)); err != nil {
				t.Errorf("Submit %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	state, _ := store.Load(context.Background(), "t1")
	if len(state.Messages) != 16 {
		t.Fatalf("transcript has %d messages, want 16", len(state.Messages))
	}
	for i, m := range state.Messages {
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		if m.Role != want {
			t.Fatalf("message %d role = %q, want %q; turns interleaved", i, m.Role, want)
		}
	}
}

func TestOrderLookupScenario(t *testing.T) {
	reg := tools.NewRegistry()
	mustRegister(t, reg, &tools.OrderStatusTool{Orders: tools.NewOrderBook()})

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "get_order_status", Args: map[string]interface{}{
			"order_id": "123456",
		}}),
		assistantText("Good news: order 123456 is in transit and should arrive in two days."),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "Can you check order #123456?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.Contains(reply.Text, "123456") || !strings.Contains(reply.Text, "in transit") {
		t.Errorf("reply should mention the order and its status: %q", reply.Text)
	}

	state, _ := store.Load(context.Background(), "t1")
	if !strings.Contains(state.Messages[2].Content, "In Transit") {
		t.Errorf("tool result missing status:\n%s", state.Messages[2].Content)
	}
}

func TestReturnDenialScenario(t *testing.T) {
	reg := tools.NewRegistry()
	mustRegister(t, reg, &tools.InitiateReturnTool{Orders: tools.NewOrderBook()})

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "initiate_return", Args: map[string]interface{}{
			"order_id": "555",
			"reason":   "changed_mind",
		}}),
		assistantText("I'm sorry, order 555 is outside our 30-day return window, so I can't start a return for it."),
	)
	a, store := newTestAgent(t, client, reg)

	reply, err := a.Submit(context.Background(), "t1", "I want to return order #555 because I don't like it")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply.Status != session.StatusActive {
		t.Errorf("status = %q, a denial must not change it", reply.Status)
	}

	state, _ := store.Load(context.Background(), "t1")
	if !strings.Contains(state.Messages[2].Content, "30-day return window") {
		t.Errorf("denial must cite the window:\n%s", state.Messages[2].Content)
	}
}

// recordingStore counts checkpoints to pin the save-per-transition behavior.
type recordingStore struct {
	*session.MemoryStore
	saves atomic.Int32
}

func (rs *recordingStore) Save(ctx context.Context, state *session.State) error {
	rs.saves.Add(1)
	return rs.MemoryStore.Save(ctx, state)
}

func TestCheckpointPerTransition(t *testing.T) {
	reg := tools.NewRegistry()
	mustRegister(t, reg, &stubTool{name: "lookup", reply: "ok"})

	client := llm.NewScriptedClient(
		assistantCalls(session.ToolCall{ID: "c1", Name: "lookup"}),
		assistantText("done"),
	)
	store := &recordingStore{MemoryStore: session.NewMemoryStore()}
	a := New(client, reg, store, Policy{}, nil)

	if _, err := a.Submit(context.Background(), "t1", "go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// user message, assistant with calls, tool result, final assistant
	if got := store.saves.Load(); got != 4 {
		t.Errorf("saved %d checkpoints, want 4", got)
	}
}
