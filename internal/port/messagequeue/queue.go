// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used by the engine. Event subjects are suffixed with the event
// type: events.workflow_failed, events.task_completed, ...
const (
	SubjectEvents    = "events"
	SubjectEventsAll = "events.>"
	SubjectHeartbeat = "agents.heartbeat"

	// SubjectAgentCall is the request/reply prefix: agents.call.{agent_id}.
	SubjectAgentCall = "agents.call"

	// SubjectIngest carries external events for the alert engine: ingest.{type}.
	SubjectIngest    = "ingest"
	SubjectIngestAll = "ingest.>"
)

// EventSubject returns the subject an engine event of the given type is published on.
func EventSubject(eventType string) string {
	return SubjectEvents + "." + eventType
}

// AgentSubject returns the request/reply subject of one agent.
func AgentSubject(agentID string) string {
	return SubjectAgentCall + "." + agentID
}
