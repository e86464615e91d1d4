// Package agent provides the core control loop for the Careline support
// system.
//
// This package owns the turn state machine that decides, after each model
// response, whether to execute requested tools, return a final answer to the
// customer, suspend the conversation for human takeover, or abort the turn.
// It is shared between the interaction surfaces (terminal CLI and HTTP
// server), which only ever call Submit.
//
// # Architecture
//
//   - Core agent (this package): the Agent type, the phase machine, and the
//     tool execution step
//   - Terminal subpackage (agent/terminal): the interactive CLI surface
//   - server package: the HTTP surface
//
// # Turn processing
//
// One call to Submit processes one customer message to completion:
//
//	reasoning -> (final answer)            -> awaiting user
//	reasoning -> tool calls -> execution   -> reasoning ...
//	execution -> escalation tool fired     -> escalated
//	too many rounds / model unreachable    -> failed (apology reply)
//
// Conversation state is checkpointed through a session.Store at every phase
// transition, so a crash at any point resumes without losing appended
// messages or re-running completed tool calls. All transitions for one
// thread id run under a per-thread lock; distinct threads proceed in
// parallel.
package agent
