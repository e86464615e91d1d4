package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// EscalateTool hands the conversation to a human agent. It is the only tool
// whose result carries an Escalation marker; the control loop reacts to the
// marker by setting the conversation status and ending the turn.
type EscalateTool struct {
	Logger *slog.Logger
}

func (t *EscalateTool) Name() string { return "escalate_to_human" }

func (t *EscalateTool) Description() string {
	return "Escalate the conversation to a human support agent. Use when the customer is frustrated, explicitly asks for a human, or the issue needs manual intervention. Args: reason (string), summary (string)."
}

func (t *EscalateTool) Schema() *Schema {
	return &Schema{
		Properties: map[string]Property{
			"reason":  {Type: "string", Description: "Why escalation is needed, e.g. customer_frustrated, complex_issue, explicit_request."},
			"summary": {Type: "string", Description: "Short summary of the customer's issue for the human agent."},
		},
		Required: []string{"reason", "summary"},
	}
}

func (t *EscalateTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	reason := stringArg(args, "reason")
	summary := stringArg(args, "summary")
	ticketID := fmt.Sprintf("TICKET-%s", strings.ToUpper(uuid.NewString()[:8]))

	if t.Logger != nil {
		t.Logger.Info("escalation created",
			"ticket_id", ticketID,
			"reason", reason,
			"summary", truncate(summary, 200))
	}

	var content string
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "frustrat") || strings.Contains(r, "angry"):
		content = fmt.Sprintf(
			"I completely understand your frustration, and I sincerely apologize for the inconvenience. I've created priority support ticket %s and notified our senior support team. A specialist will reach out within 15 minutes to resolve this personally.",
			ticketID)
	case strings.Contains(r, "complex"):
		content = fmt.Sprintf(
			"This situation requires specialized attention. I've created support ticket %s and assigned it to our expert team. They'll review the case and follow up within 30 minutes with a solution.",
			ticketID)
	default:
		content = fmt.Sprintf(
			"I've connected you with our human support team. Support ticket: %s. A customer support specialist will reach out shortly via your preferred contact method.",
			ticketID)
	}

	return Result{
		Content:    content,
		Escalation: &Escalation{TicketID: ticketID, Reason: reason},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
