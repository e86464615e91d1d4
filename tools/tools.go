package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
)

// Tool defines the interface for any action the agent can take on behalf of
// a customer.
type Tool interface {
	Name() string
	Description() string
	Schema() *Schema
	Execute(ctx context.Context, args map[string]interface{}) (Result, error)
}

// Result is the outcome of a tool execution. Content is what the model sees
// on the next turn. Escalation is set only by the escalation tool and tells
// the loop to hand the conversation to a human.
type Result struct {
	Content    string
	Escalation *Escalation
}

// Escalation marks a conversation for human takeover.
type Escalation struct {
	TicketID string
	Reason   string
}

var (
	ErrDuplicateTool    = stderrors.New("tool already registered")
	ErrUnknownTool      = stderrors.New("unknown tool")
	ErrInvalidArguments = stderrors.New("invalid tool arguments")
)

// Registry holds all available tools, keyed by name. It is populated at
// startup and read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its name.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArguments)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name, so the schema list sent
// to the model is stable across runs.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Invoke resolves a tool by name, validates the arguments against its
// schema, and runs it synchronously.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := t.Schema().Validate(args); err != nil {
		return Result{}, fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
	}
	return t.Execute(ctx, args)
}
