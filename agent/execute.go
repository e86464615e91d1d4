package agent

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
)

// execute runs one batch of tool calls concurrently and appends the results
// to the transcript in the order the model requested them, checkpointing
// after each append. Tool failures never abort the turn; their error text
// becomes the tool result so the model can recover on the next round.
//
// The returned handoff text is non-empty when an escalation tool fired, in
// which case the conversation status has been flipped to escalated and
// persisted. When several calls in the batch escalate, the first in request
// order wins.
func (a *Agent) execute(ctx context.Context, state *session.State, calls []session.ToolCall) (string, error) {
	results := make([]session.Message, len(calls))
	handoffs := make([]*tools.Escalation, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i], handoffs[i] = a.invoke(gctx, call)
			return nil
		})
	}
	// Workers report failures through results, never through the group.
	_ = g.Wait()

	handoff := ""
	for i := range results {
		state.Append(results[i])
		if handoff == "" && handoffs[i] != nil {
			state.Status = session.StatusEscalated
			handoff = results[i].Content
			a.logger.Info("conversation escalated",
				"thread", state.ThreadID,
				"ticket", handoffs[i].TicketID,
				"reason", handoffs[i].Reason)
		}
		if err := a.checkpoint(ctx, state); err != nil {
			return "", err
		}
	}
	return handoff, nil
}

// invoke runs a single tool call under the policy's tool timeout.
func (a *Agent) invoke(ctx context.Context, call session.ToolCall) (session.Message, *tools.Escalation) {
	callCtx, cancel := context.WithTimeout(ctx, a.policy.ToolTimeout)
	defer cancel()

	res, err := a.registry.Invoke(callCtx, call.Name, call.Args)
	content := res.Content
	if err != nil {
		a.logger.Warn("tool call failed",
			"tool", call.Name, "call_id", call.ID, "error", err)
		content = fmt.Sprintf("Error: %v", err)
	}
	return session.Message{
		Role:       session.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}, res.Escalation
}
