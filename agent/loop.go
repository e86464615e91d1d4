package agent

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/careline/careline/llm"
	"github.com/careline/careline/session"
)

// drive runs the turn state machine until a terminal phase. Every message
// appended to state is checkpointed before the machine moves on, so a crash
// between any two transitions resumes cleanly.
//
// round counts model calls already made this turn; resumed turns enter at
// PhaseExecuting with round 1 because the interrupted turn's assistant
// message is already in the transcript.
func (a *Agent) drive(ctx context.Context, state *session.State, phase Phase, pending []session.ToolCall, round int) (*Reply, error) {
	for {
		switch phase {
		case PhaseReasoning:
			if round >= a.policy.MaxRounds {
				return a.abort(ctx, state, round)
			}
			round++

			assistant, err := a.reason(ctx, state)
			if err != nil {
				a.logger.Error("turn failed",
					"thread", state.ThreadID, "round", round, "error", err)
				return &Reply{Text: apologyText, Status: state.Status, Phase: PhaseFailed}, err
			}
			state.Append(*assistant)
			if err := a.checkpoint(ctx, state); err != nil {
				return nil, err
			}

			if len(assistant.ToolCalls) == 0 {
				a.logger.Info("turn complete",
					"thread", state.ThreadID, "rounds", round)
				return &Reply{Text: assistant.Content, Status: state.Status, Phase: PhaseAwaitingUser}, nil
			}
			pending = assistant.ToolCalls
			phase = PhaseExecuting

		case PhaseExecuting:
			handoff, err := a.execute(ctx, state, pending)
			if err != nil {
				return nil, err
			}
			if handoff != "" {
				a.logger.Info("turn escalated",
					"thread", state.ThreadID, "rounds", round)
				return &Reply{Text: handoff, Status: state.Status, Phase: PhaseEscalated}, nil
			}
			pending = nil
			phase = PhaseReasoning

		default:
			return nil, fmt.Errorf("turn entered invalid phase %q", phase)
		}
	}
}

// abort ends a turn that exhausted its model call budget. The apology is
// appended to the transcript so the customer-visible record matches what was
// returned; the conversation status is left untouched.
func (a *Agent) abort(ctx context.Context, state *session.State, round int) (*Reply, error) {
	state.Append(session.Message{Role: session.RoleAssistant, Content: apologyText})
	if err := a.checkpoint(ctx, state); err != nil {
		return nil, err
	}
	a.logger.Warn("turn aborted",
		"thread", state.ThreadID, "rounds", round)
	return &Reply{Text: apologyText, Status: state.Status, Phase: PhaseFailed},
		fmt.Errorf("%w after %d rounds", ErrLoopLimit, round)
}

// reason asks the model for the next assistant message, retrying transient
// failures up to the policy's retry budget. The system prompt is supplied on
// every call but never stored in the transcript.
func (a *Agent) reason(ctx context.Context, state *session.State) (*session.Message, error) {
	msgs := make([]session.Message, 0, len(state.Messages)+1)
	msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, state.Messages...)
	available := a.registry.List()

	var lastErr error
	for attempt := 0; attempt <= a.policy.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.policy.ModelTimeout)
		assistant, err := a.client.Chat(callCtx, msgs, available)
		cancel()

		if err == nil {
			err = validateAssistant(assistant)
		}
		if err == nil {
			return assistant, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("model call failed",
			"thread", state.ThreadID, "attempt", attempt+1, "error", err)
	}
	if !stderrors.Is(lastErr, llm.ErrInference) {
		lastErr = fmt.Errorf("%w: %v", llm.ErrInference, lastErr)
	}
	return nil, lastErr
}

func validateAssistant(msg *session.Message) error {
	switch {
	case msg == nil:
		return fmt.Errorf("%w: empty response", llm.ErrInference)
	case msg.Role != session.RoleAssistant:
		return fmt.Errorf("%w: unexpected role %q", llm.ErrInference, msg.Role)
	case msg.Content == "" && len(msg.ToolCalls) == 0:
		return fmt.Errorf("%w: response carried neither text nor tool calls", llm.ErrInference)
	}
	return nil
}
