package llm

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
)

// ErrInference marks a failed or malformed model response. Callers decide
// whether to retry; every provider in this package wraps its transport
// failures with it.
var ErrInference = stderrors.New("inference failed")

// Client is the interface for the language-model collaborator. Chat sends
// the full ordered transcript plus the available tool schemas and returns
// exactly one assistant message, which either carries content (final answer)
// or one or more tool calls.
type Client interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// ScriptStep is one canned turn for the ScriptedClient.
type ScriptStep struct {
	Message *session.Message
	Err     error
}

// ScriptedClient replays a fixed sequence of assistant responses. It backs
// the loop tests and the offline demo mode.
type ScriptedClient struct {
	mu    sync.Mutex
	steps []ScriptStep
	calls int
}

func NewScriptedClient(steps ...ScriptStep) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// Chat returns the next scripted step. When the script runs out, the last
// step repeats; an empty script answers with a canned message.
func (c *ScriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if len(c.steps) == 0 {
		return &session.Message{
			Role:    session.RoleAssistant,
			Content: "I'm a scripted support agent with nothing scripted. How can I help?",
		}, nil
	}
	idx := c.calls - 1
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	step := c.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	// Copy so callers can't mutate the script.
	msg := *step.Message
	return &msg, nil
}

// Calls reports how many times Chat was invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
