// Package agentbackend defines the port through which the scheduler executes
// tasks on remote agents.
package agentbackend

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable marks transport level failures: the agent could not be
// contacted or did not answer. These count toward taking the agent offline.
var ErrUnreachable = errors.New("agent unreachable")

// Request is one task execution sent to an agent.
type Request struct {
	ExecutionID string         `json:"execution_id"`
	TaskType    string         `json:"task_type"`
	Parameters  map[string]any `json:"parameters"`
	Deadline    time.Time      `json:"deadline"`
}

// Result is the agent's answer. Success false with a nil error from Execute
// is a handled failure reported by the agent itself.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Backend is the port interface for reaching one agent.
type Backend interface {
	// Name returns the transport name (e.g. "http", "mcp", "nats").
	Name() string

	// Execute runs a task on the agent. A non-nil error is a transport
	// fault; an agent-side failure is reported via Result.Success.
	Execute(ctx context.Context, req Request) (Result, error)
}

// Closer is implemented by backends that hold connections.
type Closer interface {
	Close() error
}
