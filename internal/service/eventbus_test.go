package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

func TestEventBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus(context.Background())

	var (
		mu   sync.Mutex
		got  []string
		reqs []string
	)
	bus.Subscribe("recorder", func(ctx context.Context, ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Message)
		reqs = append(reqs, logger.RequestID(ctx))
	})
	bus.Subscribe("panicky", func(context.Context, event.Event) { panic("subscriber bug") })

	for _, msg := range []string{"one", "two", "three"} {
		bus.Publish(event.New(event.TypeExternal, msg, nil))
	}
	bus.Close()
	bus.Publish(event.New(event.TypeExternal, "after close", nil))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("unexpected delivery %v", got)
	}
	for _, id := range reqs {
		if id == "" {
			t.Fatal("handler context missing event id")
		}
	}
}

func TestHistoryRecordsEvents(t *testing.T) {
	store := &mockEventStore{}
	h := NewHistory(store, nil)
	ev := event.New(event.TypeWorkflowStarted, "started", nil)
	ev.WorkflowID = "wf-1"
	h.HandleEvent(context.Background(), ev)

	got, err := h.List(context.Background(), eventstore.Filter{WorkflowID: "wf-1"})
	if err != nil || len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("unexpected history %v err=%v", got, err)
	}
}

type recordingReporter struct {
	mu         sync.Mutex
	calls      int
	components []string
}

func (r *recordingReporter) EngineError(_ context.Context, component string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.components = append(r.components, component)
}

func (r *recordingReporter) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.components...)
}

func TestHistoryStoreFailureReportsEngineError(t *testing.T) {
	store := &mockEventStore{appendErr: errors.New("disk full")}
	rep := &recordingReporter{}
	h := NewHistory(store, rep)

	h.HandleEvent(context.Background(), event.New(event.TypeTaskFailed, "x", nil))
	h.HandleEvent(context.Background(), event.New(event.TypeEngineError, "y", nil))
	if rep.calls != 1 {
		t.Fatalf("expected one engine error report, got %d", rep.calls)
	}
}

func TestMonitorHeartbeatSweep(t *testing.T) {
	r := NewAgentRegistry(testRegistryConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	r.now = func() time.Time { return clock }
	registerAgent(t, r, "a1", "create_pr")

	events := &eventRecorder{}
	m := NewMonitor(r, nil, events.Publish, time.Minute, 0)

	if ids := m.CheckHeartbeats(); len(ids) != 0 {
		t.Fatalf("fresh agent reported offline: %v", ids)
	}
	clock = base.Add(10 * time.Minute)
	if ids := m.CheckHeartbeats(); len(ids) != 1 {
		t.Fatalf("expected a1 offline, got %v", ids)
	}
	if events.Count(event.TypeAgentOffline) != 1 {
		t.Fatalf("expected agent_offline event, got %v", events.Types())
	}
}

type countingEscalator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEscalator) CheckEscalations(context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0
}

func TestMonitorRunsEscalationChecks(t *testing.T) {
	esc := &countingEscalator{}
	m := NewMonitor(nil, esc, nil, 0, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	waitFor(t, time.Second, func() bool {
		esc.mu.Lock()
		defer esc.mu.Unlock()
		return esc.calls >= 2
	})
	cancel()
	<-done
}

func TestAgentBackendsCachesPerAgent(t *testing.T) {
	b := NewAgentBackends(nil)
	built := 0
	b.Use(agent.TransportNATS, func(d agent.Descriptor) (agentbackend.Backend, error) {
		built++
		return &mockBackend{}, nil
	})

	d := agent.Descriptor{ID: "a1", Transport: agent.TransportNATS, Endpoint: "agents.a1"}
	first, err := b.Backend(d)
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	second, _ := b.Backend(d)
	if first != second || built != 1 {
		t.Fatalf("backend not cached: built=%d", built)
	}

	d.Endpoint = "agents.a1.v2"
	if _, err := b.Backend(d); err != nil || built != 2 {
		t.Fatalf("endpoint change should rebuild: built=%d err=%v", built, err)
	}

	b.Forget("a1")
	if _, err := b.Backend(d); err != nil || built != 3 {
		t.Fatalf("forgotten agent should rebuild: built=%d err=%v", built, err)
	}

	if _, err := b.Backend(agent.Descriptor{ID: "a2", Transport: "carrier_pigeon"}); err == nil {
		t.Fatal("unknown transport should fail")
	}
}
