package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "conductor"

// Metrics holds the engine's metric instruments. A nil *Metrics records
// nothing, so services can run without telemetry.
type Metrics struct {
	WorkflowsStarted  metric.Int64Counter
	WorkflowsFinished metric.Int64Counter
	TasksDispatched   metric.Int64Counter
	TasksFinished     metric.Int64Counter
	TaskDuration      metric.Float64Histogram
	AlertsFired       metric.Int64Counter
	AlertsSuppressed  metric.Int64Counter
	Notifications     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("conductor.workflows.started",
		metric.WithDescription("Number of workflows started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFinished, err = meter.Int64Counter("conductor.workflows.finished",
		metric.WithDescription("Number of workflows reaching a terminal status"))
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("conductor.tasks.dispatched",
		metric.WithDescription("Number of task executions sent to agents"))
	if err != nil {
		return nil, err
	}

	m.TasksFinished, err = meter.Int64Counter("conductor.tasks.finished",
		metric.WithDescription("Number of task executions finished, by outcome"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("conductor.task.duration_seconds",
		metric.WithDescription("Agent execution latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.AlertsFired, err = meter.Int64Counter("conductor.alerts.fired",
		metric.WithDescription("Number of alerts fired"))
	if err != nil {
		return nil, err
	}

	m.AlertsSuppressed, err = meter.Int64Counter("conductor.alerts.suppressed",
		metric.WithDescription("Number of rule matches suppressed by cooldown"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("conductor.notifications",
		metric.WithDescription("Notification deliveries per channel and outcome"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) WorkflowStarted(ctx context.Context, workflowType string) {
	if m == nil {
		return
	}
	m.WorkflowsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow.type", workflowType)))
}

func (m *Metrics) WorkflowFinished(ctx context.Context, workflowType, status string) {
	if m == nil {
		return
	}
	m.WorkflowsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.type", workflowType),
		attribute.String("status", status),
	))
}

func (m *Metrics) TaskDispatched(ctx context.Context, taskType string) {
	if m == nil {
		return
	}
	m.TasksDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("task.type", taskType)))
}

// TaskFinished records one execution outcome: "success", "failure" or "timeout".
func (m *Metrics) TaskFinished(ctx context.Context, taskType, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("task.type", taskType), attribute.String("outcome", outcome))
	m.TasksFinished.Add(ctx, 1, attrs)
	m.TaskDuration.Record(ctx, latency.Seconds(), attrs)
}

func (m *Metrics) AlertFired(ctx context.Context, ruleID, severity string) {
	if m == nil {
		return
	}
	m.AlertsFired.Add(ctx, 1, metric.WithAttributes(attribute.String("rule.id", ruleID), attribute.String("severity", severity)))
}

func (m *Metrics) AlertSuppressed(ctx context.Context, ruleID string) {
	if m == nil {
		return
	}
	m.AlertsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("rule.id", ruleID)))
}

func (m *Metrics) Notification(ctx context.Context, channel string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "sent"
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel), attribute.String("outcome", outcome)))
}
