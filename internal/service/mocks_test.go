package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
	"github.com/Strob0t/conductor/internal/port/cache"
	"github.com/Strob0t/conductor/internal/port/database"
	"github.com/Strob0t/conductor/internal/port/eventstore"
	"github.com/Strob0t/conductor/internal/port/notifier"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ agentbackend.Backend = (*mockBackend)(nil)
	_ notifier.Notifier    = (*mockNotifier)(nil)
	_ database.Store       = (*mockAlertStore)(nil)
	_ eventstore.Store     = (*mockEventStore)(nil)
	_ cache.Cache          = (*mockCache)(nil)
	_ BackendResolver      = staticBackends{}
	_ AlertDispatcher      = (*mockDispatcher)(nil)
)

// --- agent backend ---

type mockBackend struct {
	mu    sync.Mutex
	calls []agentbackend.Request
	fn    func(ctx context.Context, req agentbackend.Request) (agentbackend.Result, error)
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Execute(ctx context.Context, req agentbackend.Request) (agentbackend.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return agentbackend.Result{Success: true, Output: map[string]any{}}, nil
	}
	return fn(ctx, req)
}

func (m *mockBackend) Calls() []agentbackend.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agentbackend.Request(nil), m.calls...)
}

// staticBackends resolves every agent to the same backend.
type staticBackends struct{ b agentbackend.Backend }

func (s staticBackends) Backend(agent.Descriptor) (agentbackend.Backend, error) { return s.b, nil }

// --- notifier ---

type mockNotifier struct {
	mu    sync.Mutex
	name  string
	err   error
	sent  []notifier.Notification
	tries int
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }

func (m *mockNotifier) Send(_ context.Context, n notifier.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tries++
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) Sent() []notifier.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifier.Notification(nil), m.sent...)
}

func (m *mockNotifier) Tries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tries
}

// --- dispatcher ---

type mockDispatcher struct {
	mu    sync.Mutex
	sends []*alert.Alert
	delay time.Duration
}

func (m *mockDispatcher) Send(_ context.Context, a *alert.Alert, channels []string) []string {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.sends = append(m.sends, &c)
	return append([]string(nil), channels...)
}

func (m *mockDispatcher) Sends() []*alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*alert.Alert(nil), m.sends...)
}

// --- alert store ---

type mockAlertStore struct {
	mu        sync.Mutex
	rules     map[string]alert.Rule
	alerts    []alert.Alert
	triggered map[string]time.Time
	saveErr   error
}

func newMockAlertStore() *mockAlertStore {
	return &mockAlertStore{rules: make(map[string]alert.Rule), triggered: make(map[string]time.Time)}
}

func (m *mockAlertStore) ListRules(_ context.Context) ([]alert.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]alert.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockAlertStore) GetRule(_ context.Context, id string) (*alert.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (m *mockAlertStore) SaveRule(_ context.Context, r *alert.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = *r
	return nil
}

func (m *mockAlertStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *mockAlertStore) MarkTriggered(_ context.Context, ruleID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.triggered[ruleID] = at
	return nil
}

func (m *mockAlertStore) SaveAlert(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *mockAlertStore) GetAlert(_ context.Context, id string) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			a := m.alerts[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockAlertStore) ListAlerts(_ context.Context, f alert.Filter) ([]alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []alert.Alert
	for _, a := range m.alerts {
		if f.RuleID != "" && a.RuleID != f.RuleID {
			continue
		}
		if f.UnresolvedOnly && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAlertStore) ResolveAlert(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockAlertStore) CountUnresolved(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if !a.Resolved {
			n++
		}
	}
	return n, nil
}

func (m *mockAlertStore) Ping(context.Context) error { return nil }
func (m *mockAlertStore) Close() error               { return nil }

func (m *mockAlertStore) Alerts() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alert.Alert(nil), m.alerts...)
}

func (m *mockAlertStore) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// --- event store ---

type mockEventStore struct {
	mu        sync.Mutex
	events    []event.Event
	appendErr error
}

func (m *mockEventStore) Append(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockEventStore) List(_ context.Context, f eventstore.Filter) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, ev := range m.events {
		if f.WorkflowID != "" && ev.WorkflowID != f.WorkflowID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- cache ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- event recorder ---

type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) Publish(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) Count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// --- helpers ---

func testRegistryConfig() config.Registry {
	return config.Registry{
		Alpha:             0.3,
		InitialScore:      0.5,
		ExpectedLatency:   time.Minute,
		HeartbeatInterval: time.Minute,
		MaxMissed:         3,
		FaultThreshold:    3,
	}
}

func registerAgent(t *testing.T, r *AgentRegistry, id string, caps ...string) {
	t.Helper()
	_, _, err := r.Register(agent.Descriptor{
		ID:           id,
		Capabilities: caps,
		Transport:    agent.TransportHTTP,
		Endpoint:     "http://" + id,
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

var errBoom = errors.New("boom")
