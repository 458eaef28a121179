// Package workflow defines workflows, their tasks and the task graph that
// decides which tasks may run next.
package workflow

import "time"

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusPartiallyFailed Status = "partially_failed"
)

// IsTerminal reports whether the workflow can no longer change status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartiallyFailed
}

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the task reached a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// InFlight reports whether an agent currently holds the task.
func (s TaskStatus) InFlight() bool {
	return s == TaskAssigned || s == TaskRunning
}

// Workflow is a user-initiated unit of work decomposed into tasks.
type Workflow struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Priority    int            `json:"priority"`
	Status      Status         `json:"status"`
	Stalled     bool           `json:"stalled"`
	Cancelled   bool           `json:"cancelled"`
	Error       *TaskError     `json:"error,omitempty"`
	Tasks       []string       `json:"tasks"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Task is one unit of executable work inside a workflow.
// IDs are unique within their workflow; placeholders refer to them.
type Task struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	Type             string         `json:"type"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty"`
	Status           TaskStatus     `json:"status"`
	AssignedAgent    string         `json:"assigned_agent,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	Error            *TaskError     `json:"error,omitempty"`
	RetriesRemaining int            `json:"retries_remaining"`
	Attempts         int            `json:"attempts"`
	Priority         int            `json:"priority"`
	Optional         bool           `json:"optional,omitempty"`
	Timeout          time.Duration  `json:"timeout,omitempty"`
	NotBefore        time.Time      `json:"not_before,omitzero"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Snapshot is a point-in-time copy of a workflow and its tasks,
// safe to hand out to readers.
type Snapshot struct {
	Workflow  Workflow `json:"workflow"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Tasks     []Task   `json:"tasks"`
}

// Progress returns completed/total as a fraction in [0,1].
func (s Snapshot) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}
