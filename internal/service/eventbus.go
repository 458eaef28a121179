package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/logger"
)

// EventHandler consumes engine events.
type EventHandler func(ctx context.Context, ev event.Event)

const subscriberBuffer = 256

type subscriber struct {
	name string
	ch   chan event.Event
	fn   EventHandler
}

// EventBus fans engine events out to subscribers. Each subscriber has its
// own queue and goroutine, so a slow alert dispatch does not delay the
// history log or the live stream. Events reach a subscriber in publish order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
}

// NewEventBus creates a bus. ctx is handed to every handler call and should
// outlive in-flight deliveries.
func NewEventBus(ctx context.Context) *EventBus {
	return &EventBus{ctx: context.WithoutCancel(ctx)}
}

// Subscribe registers fn under name. Subscribers added after Close are ignored.
func (b *EventBus) Subscribe(name string, fn EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	s := &subscriber{name: name, ch: make(chan event.Event, subscriberBuffer), fn: fn}
	b.subs = append(b.subs, s)
	b.wg.Add(1)
	go b.run(s)
}

func (b *EventBus) run(s *subscriber) {
	defer b.wg.Done()
	for ev := range s.ch {
		b.deliver(s, ev)
	}
}

func (b *EventBus) deliver(s *subscriber, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked", "subscriber", s.name, "event_type", ev.Type, "panic", r)
		}
	}()
	ctx := logger.WithWorkflowID(logger.WithRequestID(b.ctx, ev.ID), ev.WorkflowID)
	s.fn(ctx, ev)
}

// Publish queues ev for every subscriber. It blocks while a subscriber's
// queue is full and is a no-op after Close.
func (b *EventBus) Publish(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		s.ch <- ev
	}
}

// Close stops accepting events and waits until queued events are delivered.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
