package session

import (
	stderrors "errors"
	"fmt"
)

// Message roles. Tool-result messages use RoleTool and carry the id of the
// call they resolve.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Conversation status values.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusClosed    Status = "closed"
)

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Message is one turn unit in a conversation transcript. Messages are
// treated as immutable once appended.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set only on assistant messages that request tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and ToolName are set only on tool-result messages and
	// reference the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// State holds the full ordered transcript for one conversation thread.
// Insertion order is chronological order; it is mutated only through Append.
type State struct {
	ThreadID string    `json:"thread_id"`
	Status   Status    `json:"status"`
	Messages []Message `json:"messages"`
}

// NewState creates an empty active conversation for the given thread.
func NewState(threadID string) *State {
	return &State{
		ThreadID: threadID,
		Status:   StatusActive,
		Messages: []Message{},
	}
}

// Append adds messages to the end of the transcript. This is the only
// mutation the transcript supports; there are no edits or deletes.
func (s *State) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		ThreadID: s.ThreadID,
		Status:   s.Status,
		Messages: make([]Message, len(s.Messages)),
	}
	for i, m := range s.Messages {
		if len(m.ToolCalls) > 0 {
			calls := make([]ToolCall, len(m.ToolCalls))
			for j, c := range m.ToolCalls {
				args := make(map[string]interface{}, len(c.Args))
				for k, v := range c.Args {
					args[k] = v
				}
				calls[j] = ToolCall{ID: c.ID, Name: c.Name, Args: args}
			}
			m.ToolCalls = calls
		}
		out.Messages[i] = m
	}
	return out
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// PendingToolCalls returns the tool calls of the most recent assistant
// message that have no tool-result message yet. A non-empty result means a
// turn was interrupted mid-execution and must be completed before any new
// user message is processed.
func (s *State) PendingToolCalls() []ToolCall {
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			idx = i
			break
		}
		if s.Messages[i].Role == RoleUser {
			return nil
		}
	}
	if idx < 0 || len(s.Messages[idx].ToolCalls) == 0 {
		return nil
	}

	resolved := make(map[string]bool)
	for _, m := range s.Messages[idx+1:] {
		if m.Role == RoleTool {
			resolved[m.ToolCallID] = true
		}
	}

	var pending []ToolCall
	for _, c := range s.Messages[idx].ToolCalls {
		if !resolved[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// ErrPairing reports a violated tool-call/tool-result pairing invariant.
var ErrPairing = stderrors.New("tool call pairing violated")

// ValidatePairing checks that every tool-result message resolves exactly one
// call from the nearest preceding assistant message, and that no call is
// resolved more than once. Calls of the final assistant message may still be
// unresolved while a turn is in flight.
func (s *State) ValidatePairing() error {
	open := make(map[string]bool)
	for i, m := range s.Messages {
		switch m.Role {
		case RoleAssistant:
			for id := range open {
				return fmt.Errorf("%w: call %s unresolved before next assistant message %d", ErrPairing, id, i)
			}
			for _, c := range m.ToolCalls {
				if c.ID == "" {
					return fmt.Errorf("%w: assistant message %d has a call without id", ErrPairing, i)
				}
				if open[c.ID] {
					return fmt.Errorf("%w: duplicate call id %s", ErrPairing, c.ID)
				}
				open[c.ID] = true
			}
		case RoleTool:
			if !open[m.ToolCallID] {
				return fmt.Errorf("%w: orphan tool result %s at message %d", ErrPairing, m.ToolCallID, i)
			}
			delete(open, m.ToolCallID)
		}
	}
	return nil
}
