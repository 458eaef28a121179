package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/messagequeue"
)

// QueueBridge connects the in-process event bus to a message queue:
// engine events are forwarded to events.{type}, external events arrive on
// ingest.{type} and agent heartbeats on agents.heartbeat.
type QueueBridge struct {
	queue    messagequeue.Queue
	registry *AgentRegistry
	publish  func(event.Event)
	reporter EngineErrorReporter

	// failing is set between the first failed publish and the next success.
	failing atomic.Bool
}

// NewQueueBridge creates a bridge. publish receives ingested events;
// reporter, which may be nil, is told when forwarding starts failing.
func NewQueueBridge(queue messagequeue.Queue, registry *AgentRegistry, publish func(event.Event), reporter EngineErrorReporter) *QueueBridge {
	return &QueueBridge{queue: queue, registry: registry, publish: publish, reporter: reporter}
}

// Forward publishes an engine event. It is an EventHandler. A publish
// failure raises one engine error per outage.
func (b *QueueBridge) Forward(ctx context.Context, ev event.Event) {
	data, err := json.Marshal(toPayload(ev))
	if err != nil {
		slog.ErrorContext(ctx, "encode event", "event_type", ev.Type, "error", err)
		return
	}
	if err := b.queue.Publish(ctx, messagequeue.EventSubject(string(ev.Type)), data); err != nil {
		slog.WarnContext(ctx, "forward event failed", "event_type", ev.Type, "error", err)
		if b.failing.CompareAndSwap(false, true) && b.reporter != nil {
			b.reporter.EngineError(ctx, "event queue", err)
		}
		return
	}
	b.failing.Store(false)
}

// Start subscribes to ingest and heartbeat subjects. The returned function
// cancels both subscriptions.
func (b *QueueBridge) Start(ctx context.Context) (func(), error) {
	stopIngest, err := b.queue.Subscribe(ctx, messagequeue.SubjectIngestAll, b.handleIngest)
	if err != nil {
		return nil, fmt.Errorf("subscribe ingest: %w", err)
	}
	stopHeartbeat, err := b.queue.Subscribe(ctx, messagequeue.SubjectHeartbeat, b.handleHeartbeat)
	if err != nil {
		stopIngest()
		return nil, fmt.Errorf("subscribe heartbeat: %w", err)
	}
	return func() {
		stopIngest()
		stopHeartbeat()
	}, nil
}

func (b *QueueBridge) handleIngest(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.EventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	ev := fromPayload(p)
	slog.DebugContext(ctx, "external event ingested", "event_type", ev.Type, "event_id", ev.ID)
	b.publish(ev)
	return nil
}

func (b *QueueBridge) handleHeartbeat(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.HeartbeatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode heartbeat: %w", err)
	}
	if _, err := b.registry.Heartbeat(p.AgentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "heartbeat from unknown agent", "agent_id", p.AgentID)
			return nil
		}
		return err
	}
	return nil
}

func toPayload(ev event.Event) messagequeue.EventPayload {
	return messagequeue.EventPayload{
		ID:         ev.ID,
		Type:       string(ev.Type),
		WorkflowID: ev.WorkflowID,
		TaskID:     ev.TaskID,
		AgentID:    ev.AgentID,
		Message:    ev.Message,
		Payload:    ev.Payload,
		Timestamp:  ev.Timestamp,
	}
}

func fromPayload(p messagequeue.EventPayload) event.Event {
	ev := event.Event{
		ID:         p.ID,
		Type:       event.Type(p.Type),
		WorkflowID: p.WorkflowID,
		TaskID:     p.TaskID,
		AgentID:    p.AgentID,
		Message:    p.Message,
		Payload:    p.Payload,
		Timestamp:  p.Timestamp,
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev
}
