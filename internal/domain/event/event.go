// Package event defines the engine events consumed by the alert engine,
// the history log and the live event stream.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of engine event.
type Type string

const (
	TypeWorkflowStarted   Type = "workflow_started"
	TypeWorkflowCompleted Type = "workflow_completed"
	TypeWorkflowFailed    Type = "workflow_failed"
	TypeWorkflowCancelled Type = "workflow_cancelled"
	TypeWorkflowStalled   Type = "workflow_stalled"

	TypeTaskAssigned  Type = "task_assigned"
	TypeTaskCompleted Type = "task_completed"
	TypeTaskFailed    Type = "task_failed"
	TypeTaskRetry     Type = "task_retry"

	TypeAgentRegistered  Type = "agent_registered"
	TypeAgentOffline     Type = "agent_offline"
	TypeAgentDegradation Type = "agent_performance_degradation"

	TypeEngineError Type = "engine_error"
	TypeAlertFired  Type = "alert_fired"
	TypeExternal    Type = "external"
)

// Event is a single immutable fact emitted by the engine.
// Payload carries the fields alert conditions are evaluated against.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// New creates an event with a fresh id and the current time.
func New(t Type, message string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Message:   message,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Field looks up a dotted path in the event. The top-level names
// type, workflow_id, task_id, agent_id and message resolve to the
// envelope; everything else is read from Payload.
func (e Event) Field(path string) (any, bool) {
	switch path {
	case "type":
		return string(e.Type), true
	case "workflow_id":
		return e.WorkflowID, e.WorkflowID != ""
	case "task_id":
		return e.TaskID, e.TaskID != ""
	case "agent_id":
		return e.AgentID, e.AgentID != ""
	case "message":
		return e.Message, e.Message != ""
	}
	return lookup(e.Payload, path)
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
