package agent

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/careline/careline/errors"
	"github.com/careline/careline/llm"
	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
)

// Phase identifies where a conversation turn is in its lifecycle. The
// terminal phases of a turn are AwaitingUser, Escalated, and Failed.
type Phase string

const (
	PhaseAwaitingUser Phase = "awaiting_user"
	PhaseReasoning    Phase = "reasoning"
	PhaseExecuting    Phase = "executing"
	PhaseEscalated    Phase = "escalated"
	PhaseFailed       Phase = "failed"
)

// Policy bounds a single turn. Zero values are replaced by DefaultPolicy
// values in New.
type Policy struct {
	// MaxRounds is the most model calls allowed per customer message.
	// Reaching it aborts the turn with an apology instead of looping.
	MaxRounds int
	// MaxRetries is how many times a failed model call is retried before
	// the turn is abandoned. Tool failures are never retried; their error
	// text is fed back to the model instead.
	MaxRetries int
	// ModelTimeout caps each individual model call.
	ModelTimeout time.Duration
	// ToolTimeout caps each individual tool invocation.
	ToolTimeout time.Duration
}

// DefaultPolicy returns the bounds used when the caller does not override
// them.
func DefaultPolicy() Policy {
	return Policy{
		MaxRounds:    6,
		MaxRetries:   2,
		ModelTimeout: 60 * time.Second,
		ToolTimeout:  30 * time.Second,
	}
}

// ErrLoopLimit is returned by Submit when a turn used up its model call
// budget without producing a final answer.
var ErrLoopLimit = stderrors.New("reasoning loop limit reached")

// apologyText is the customer-facing reply for a failed turn. It is
// deliberately free of internal detail.
const apologyText = "I'm sorry, I ran into a problem handling that request. Please try again in a moment, or ask me to connect you with a human agent."

// Reply is the outcome of one processed customer message.
type Reply struct {
	// Text is the assistant's answer, the escalation handoff message, or
	// the apology for a failed turn.
	Text string
	// Status is the conversation status after the turn.
	Status session.Status
	// Phase is the terminal phase the turn ended in.
	Phase Phase
}

// Agent processes customer messages for any number of conversation threads.
// It is safe for concurrent use; turns on the same thread are serialized,
// turns on different threads run in parallel.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	store    session.Store
	policy   Policy
	logger   *slog.Logger

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// New builds an Agent. A nil logger falls back to slog.Default.
func New(client llm.Client, registry *tools.Registry, store session.Store, policy Policy, logger *slog.Logger) *Agent {
	def := DefaultPolicy()
	if policy.MaxRounds <= 0 {
		policy.MaxRounds = def.MaxRounds
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = def.MaxRetries
	}
	if policy.ModelTimeout <= 0 {
		policy.ModelTimeout = def.ModelTimeout
	}
	if policy.ToolTimeout <= 0 {
		policy.ToolTimeout = def.ToolTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:   client,
		registry: registry,
		store:    store,
		policy:   policy,
		logger:   logger,
		threads:  make(map[string]*sync.Mutex),
	}
}

// Submit processes one customer message on the given thread and blocks until
// the turn reaches a terminal phase. The returned Reply is meaningful even
// when err is non-nil for ErrLoopLimit and model failures; persistence
// errors return a nil Reply because the message may not have been recorded.
func (a *Agent) Submit(ctx context.Context, threadID, userText string) (*Reply, error) {
	if threadID == "" {
		return nil, errors.New("thread id must not be empty")
	}
	if strings.TrimSpace(userText) == "" {
		return nil, errors.New("message must not be empty")
	}

	lock := a.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading thread %s", threadID)
	}

	// A trailing assistant message with unresolved tool calls means the
	// previous turn was interrupted mid-execution. Finish that turn before
	// accepting new input so completed calls are never re-run.
	if pending := state.PendingToolCalls(); len(pending) > 0 {
		a.logger.Info("resuming interrupted turn",
			"thread", threadID, "pending_calls", len(pending))
		if _, err := a.drive(ctx, state, PhaseExecuting, pending, 1); err != nil {
			if stderrors.Is(err, session.ErrPersistence) || ctx.Err() != nil {
				return nil, err
			}
			a.logger.Warn("abandoned interrupted turn", "thread", threadID, "error", err)
		}
	}

	state.Append(session.Message{Role: session.RoleUser, Content: userText})
	if err := a.checkpoint(ctx, state); err != nil {
		return nil, err
	}

	return a.drive(ctx, state, PhaseReasoning, nil, 0)
}

func (a *Agent) threadLock(threadID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		a.threads[threadID] = lock
	}
	return lock
}

func (a *Agent) checkpoint(ctx context.Context, state *session.State) error {
	if err := a.store.Save(ctx, state); err != nil {
		return errors.Wrapf(err, "checkpointing thread %s", state.ThreadID)
	}
	return nil
}
