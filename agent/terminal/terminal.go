// Package terminal provides the interactive command line surface over the
// agent. It reads customer messages from stdin, submits them one at a time,
// and prints the replies.
package terminal

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/careline/careline/agent"
	"github.com/careline/careline/session"
)

// Terminal runs a read-submit-print loop on one conversation thread.
type Terminal struct {
	agent    *agent.Agent
	threadID string
	in       io.Reader
	out      io.Writer
}

func New(a *agent.Agent, threadID string, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{agent: a, threadID: threadID, in: in, out: out}
}

// Run blocks until the input stream ends, the user quits, or ctx is
// cancelled. Failed turns are reported and the loop keeps going; the
// conversation is still usable afterwards.
func (t *Terminal) Run(ctx context.Context) error {
	fmt.Fprintf(t.out, "Careline support (thread %s). Type /quit to exit.\n\n", t.threadID)

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(t.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			fmt.Fprintln(t.out, "Goodbye.")
			return nil
		}

		reply, err := t.agent.Submit(ctx, t.threadID, line)
		if err != nil && reply == nil {
			return err
		}
		if err != nil && !stderrors.Is(err, agent.ErrLoopLimit) {
			fmt.Fprintf(t.out, "\n[turn failed: %v]\n", err)
		}

		fmt.Fprintf(t.out, "\nAlex: %s\n\n", reply.Text)
		if reply.Status == session.StatusEscalated {
			fmt.Fprintln(t.out, "[this conversation has been handed to a human agent]")
			fmt.Fprintln(t.out)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
