package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "conductor"

// StartTaskSpan starts a span for one agent execution.
func StartTaskSpan(ctx context.Context, workflowID, taskID, taskType, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("task.id", taskID),
			attribute.String("task.type", taskType),
			attribute.String("agent.id", agentID),
		),
	)
}

// StartAlertSpan starts a span for a rule firing and its notification fan-out.
func StartAlertSpan(ctx context.Context, ruleID, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "alert.fire",
		trace.WithAttributes(
			attribute.String("rule.id", ruleID),
			attribute.String("event.type", eventType),
		),
	)
}

// StartNotifySpan starts a span for delivery to one channel.
func StartNotifySpan(ctx context.Context, channel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "notify",
		trace.WithAttributes(attribute.String("channel", channel)),
	)
}
