package alert

import "github.com/Strob0t/conductor/internal/domain/event"

// RuleEngineError is the id of the self-health rule fired for engine-level
// failures such as an unavailable alert store.
const RuleEngineError = "engine_error"

var (
	emailOnly  = []string{"email"}
	emailSlack = []string{"email", "slack"}
)

// DefaultRules returns the rules installed when the store holds none.
func DefaultRules() []Rule {
	return []Rule{
		newRule("workflow_failed", "Workflow Failed", "A workflow ended with a failed required task",
			SeverityCritical, 1, emailSlack, on(event.TypeWorkflowFailed)),
		newRule("workflow_completed", "Workflow Completed", "A workflow completed successfully",
			SeverityLow, 1, emailOnly, on(event.TypeWorkflowCompleted)),
		newRule("workflow_started", "Workflow Started", "A workflow was created and started",
			SeverityLow, 1, emailOnly, on(event.TypeWorkflowStarted)),
		newRule("workflow_stalled", "Workflow Stalled", "Ready tasks found no available agent for too long",
			SeverityMedium, 5, emailSlack, on(event.TypeWorkflowStalled)),
		newRule("task_execution_failed", "Task Execution Failed", "A task attempt failed",
			SeverityHigh, 1, emailSlack, on(event.TypeTaskFailed)),
		newRule("pr_creation_failed", "PR Creation Failed", "Pull request creation failed",
			SeverityHigh, DefaultCooldownMinutes, emailSlack, onTask(event.TypeTaskFailed, "create_pr")),
		newRule("pr_creation_success", "PR Creation Success", "Pull request created successfully",
			SeverityLow, DefaultCooldownMinutes, []string{"slack"}, onTask(event.TypeTaskCompleted, "create_pr")),
		newRule("pr_merged", "Pull Request Merged", "A pull request was merged",
			SeverityLow, 1, emailOnly, onTask(event.TypeTaskCompleted, "merge_pr")),
		newRule("agent_offline", "Agent Offline", "An agent missed heartbeats or kept failing",
			SeverityHigh, 2, emailSlack, on(event.TypeAgentOffline)),
		newRule("agent_performance_degradation", "Agent Performance Degradation", "An agent took longer than expected to execute",
			SeverityMedium, 5, emailOnly, on(event.TypeAgentDegradation)),
		EngineErrorRule(),
	}
}

// EngineErrorRule is the critical, non-suppressible self-health rule.
func EngineErrorRule() Rule {
	r := newRule(RuleEngineError, "Engine Error", "The engine hit an internal failure and is running degraded",
		SeverityCritical, 1, []string{"email", "slack", "sms"}, on(event.TypeEngineError))
	r.NonSuppressible = true
	return r
}

func newRule(id, name, description string, severity Severity, cooldown int, channels []string, cond Condition) Rule {
	return Rule{
		ID:                id,
		Name:              name,
		Description:       description,
		Condition:         cond,
		Severity:          severity,
		Channels:          append([]string(nil), channels...),
		CooldownMinutes:   cooldown,
		EscalationMinutes: DefaultEscalationMinutes,
		Enabled:           true,
	}
}

func on(types ...event.Type) Condition {
	return Condition{Events: types}
}

func onTask(t event.Type, taskType string) Condition {
	return Condition{Events: []event.Type{t}, Equals: map[string]any{"task_type": taskType}}
}
