package messagequeue

import "time"

// EventPayload is the schema for events.* and ingest.* messages.
type EventPayload struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// HeartbeatPayload is the schema for agents.heartbeat messages.
type HeartbeatPayload struct {
	AgentID string `json:"agent_id"`
}

// AgentCallPayload is the schema for agents.call.* requests.
type AgentCallPayload struct {
	ExecutionID string         `json:"execution_id"`
	TaskType    string         `json:"task_type"`
	Parameters  map[string]any `json:"parameters"`
	Deadline    time.Time      `json:"deadline"`
}
