// Package eventstore defines the port interface for the append-only event history.
package eventstore

import (
	"context"
	"time"

	"github.com/Strob0t/conductor/internal/domain/event"
)

// Filter controls which events are returned by List. Zero values match everything.
type Filter struct {
	WorkflowID string       `json:"workflow_id,omitempty"`
	AgentID    string       `json:"agent_id,omitempty"`
	Types      []event.Type `json:"types,omitempty"`
	After      *time.Time   `json:"after,omitempty"`
	Limit      int          `json:"limit,omitempty"`
}

// Store is the port interface for appending and loading engine events.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, ev *event.Event) error

	// List returns matching events, oldest first.
	List(ctx context.Context, f Filter) ([]event.Event, error)
}
