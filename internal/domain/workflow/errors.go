package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoTasks              = errors.New("template must have at least one task")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrTaskIDRequired       = errors.New("task id is required")
	ErrTaskTypeRequired     = errors.New("task type is required")
	ErrDuplicateTask        = errors.New("duplicate task id")
	ErrUnknownDependency    = errors.New("task depends on unknown task")
	ErrCycle                = errors.New("task dependencies contain a cycle")
	ErrMalformedRef         = errors.New("malformed task output reference")
	ErrRefNotUpstream       = errors.New("task output reference must point to an upstream task")
	ErrUnknownCapability    = errors.New("no agent capability for task type")
	ErrUnknownTemplate      = errors.New("unknown workflow type")
	ErrTaskNotFound         = errors.New("task not found")
	ErrInvalidTransition    = errors.New("invalid task transition")
	ErrUnresolvedParameters = errors.New("task has unresolved parameters")
)

// ErrorKind classifies task failures.
type ErrorKind string

const (
	KindValidation           ErrorKind = "ValidationError"
	KindAgentUnavailable     ErrorKind = "AgentUnavailableError"
	KindExecution            ErrorKind = "ExecutionError"
	KindTimeout              ErrorKind = "TimeoutError"
	KindDependencyResolution ErrorKind = "DependencyResolutionError"
	KindUpstreamFailed       ErrorKind = "UpstreamFailed"
	KindCancelled            ErrorKind = "Cancelled"
)

// Permanent reports whether a failure of this kind must not be retried.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindValidation, KindDependencyResolution, KindUpstreamFailed, KindCancelled:
		return true
	}
	return false
}

// MsgUpstreamFailed is the error recorded on tasks failed by cascade.
const MsgUpstreamFailed = "upstream dependency failed"

// TaskError is the failure recorded on a task or a workflow.
type TaskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	TaskID  string    `json:"task_id,omitempty"`
	At      time.Time `json:"at"`
}

// NewTaskError builds a TaskError stamped with the current time.
func NewTaskError(kind ErrorKind, format string, args ...any) *TaskError {
	return &TaskError{Kind: kind, Message: fmt.Sprintf(format, args...), At: time.Now().UTC()}
}

func (e *TaskError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: task %s: %s", e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
