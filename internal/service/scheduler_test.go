package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/domain/workflow"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

type testEngine struct {
	manager   *WorkflowManager
	scheduler *Scheduler
	registry  *AgentRegistry
	events    *eventRecorder
	cache     *mockCache
}

func testSchedulerConfig() config.Scheduler {
	return config.Scheduler{
		MaxParallel:  4,
		TaskTimeout:  2 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, backend agentbackend.Backend, cfg config.Scheduler, retries int, templates ...workflow.Template) *testEngine {
	t.Helper()
	if len(templates) == 0 {
		templates = workflow.BuiltinTemplates()
	}
	reg, err := workflow.NewRegistry(templates...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	te := &testEngine{
		registry: NewAgentRegistry(testRegistryConfig()),
		events:   &eventRecorder{},
		cache:    &mockCache{},
	}
	te.scheduler = NewScheduler(te.registry, staticBackends{b: backend}, SchedulerOptions{
		Config:   cfg,
		Publish:  te.events.Publish,
		OnFinish: func(s workflow.Snapshot) { te.manager.StoreSnapshot(s) },
	})
	te.manager = NewWorkflowManager(reg, te.registry, te.scheduler, WorkflowOptions{
		Cache:          te.cache,
		CacheTTL:       time.Hour,
		DefaultRetries: retries,
	})
	return te
}

// run drives the scheduler loop until the test ends.
func (te *testEngine) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = te.scheduler.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (te *testEngine) waitStatus(t *testing.T, id string, want workflow.Status) workflow.Snapshot {
	t.Helper()
	var snap workflow.Snapshot
	waitFor(t, 3*time.Second, func() bool {
		var err error
		snap, err = te.manager.Status(context.Background(), id)
		return err == nil && snap.Workflow.Status == want
	})
	return snap
}

func taskByID(t *testing.T, snap workflow.Snapshot, id string) workflow.Task {
	t.Helper()
	for _, task := range snap.Tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not in snapshot", id)
	return workflow.Task{}
}

func TestSchedulerLinearPipeline(t *testing.T) {
	backend := &mockBackend{fn: func(_ context.Context, req agentbackend.Request) (agentbackend.Result, error) {
		if req.TaskType == "create_pr" {
			return agentbackend.Result{Success: true, Output: map[string]any{"number": 42}}, nil
		}
		return agentbackend.Result{Success: true, Output: map[string]any{"approved": true}}, nil
	}}
	te := newTestEngine(t, backend, testSchedulerConfig(), 0)
	registerAgent(t, te.registry, "pr-agent", "create_pr")
	registerAgent(t, te.registry, "reviewer", "code_review")
	te.run(t)

	snap, err := te.manager.Create(context.Background(), workflow.TypePRWithReview, map[string]any{"repo": "acme/api"}, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.Workflow.Status != workflow.StatusRunning {
		t.Fatalf("expected running after create, got %s", snap.Workflow.Status)
	}

	final := te.waitStatus(t, snap.Workflow.ID, workflow.StatusCompleted)
	if final.Completed != 2 || final.Total != 2 {
		t.Fatalf("unexpected progress %d/%d", final.Completed, final.Total)
	}

	calls := backend.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(calls))
	}
	if calls[1].TaskType != "code_review" || calls[1].Parameters["pr_number"] != 42 {
		t.Fatalf("placeholder not substituted: %+v", calls[1])
	}
	if calls[1].Parameters["repo"] != "acme/api" {
		t.Fatalf("workflow parameter not merged: %+v", calls[1].Parameters)
	}
	if te.events.Count(event.TypeWorkflowCompleted) != 1 || te.events.Count(event.TypeTaskCompleted) != 2 {
		t.Fatalf("unexpected events %v", te.events.Types())
	}

	for _, id := range []string{"pr-agent", "reviewer"} {
		d, _ := te.registry.Get(id)
		if d.Status != agent.StatusAvailable || d.Executions != 1 {
			t.Fatalf("agent %s not released: %+v", id, d)
		}
	}
}

func TestSchedulerDependencyOrdering(t *testing.T) {
	tmpl := workflow.Template{
		Name: "fan_in",
		Tasks: []workflow.TaskSpec{
			{ID: "lint", Type: "lint"},
			{ID: "test", Type: "test"},
			{ID: "merge", Type: "merge", DependsOn: []string{"lint", "test"}},
		},
	}

	var (
		mu        sync.Mutex
		completed = map[string]bool{}
		violation string
	)
	backend := &mockBackend{fn: func(_ context.Context, req agentbackend.Request) (agentbackend.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if req.TaskType == "merge" && (!completed["lint"] || !completed["test"]) {
			violation = "merge dispatched before its dependencies completed"
		}
		time.Sleep(5 * time.Millisecond)
		completed[req.TaskType] = true
		return agentbackend.Result{Success: true}, nil
	}}
	te := newTestEngine(t, backend, testSchedulerConfig(), 0, tmpl)
	registerAgent(t, te.registry, "worker-1", "lint", "test", "merge")
	registerAgent(t, te.registry, "worker-2", "lint", "test", "merge")
	te.run(t)

	snap, err := te.manager.Create(context.Background(), "fan_in", nil, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	te.waitStatus(t, snap.Workflow.ID, workflow.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	if violation != "" {
		t.Fatal(violation)
	}
}

func TestSchedulerRetryExhaustion(t *testing.T) {
	backend := &mockBackend{fn: func(context.Context, agentbackend.Request) (agentbackend.Result, error) {
		return agentbackend.Result{Success: false, Error: "merge conflict"}, nil
	}}
	te := newTestEngine(t, backend, testSchedulerConfig(), 2)
	registerAgent(t, te.registry, "pr-agent", "create_pr")
	registerAgent(t, te.registry, "reviewer", "code_review")
	te.run(t)

	snap, err := te.manager.Create(context.Background(), workflow.TypePRWithReview, nil, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	final := te.waitStatus(t, snap.Workflow.ID, workflow.StatusFailed)

	if n := len(backend.Calls()); n != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d calls", n)
	}
	pr := taskByID(t, final, "create_pr")
	if pr.Status != workflow.TaskFailed || pr.Error == nil || pr.Error.Kind != workflow.KindExecution || pr.RetriesRemaining != 0 {
		t.Fatalf("unexpected create_pr state %+v", pr)
	}
	review := taskByID(t, final, "code_review")
	if review.Status != workflow.TaskFailed || review.Error.Kind != workflow.KindUpstreamFailed {
		t.Fatalf("dependent not cascaded: %+v", review)
	}
	if final.Workflow.Error == nil || final.Workflow.Error.TaskID != "create_pr" {
		t.Fatalf("workflow should carry the first permanent error: %+v", final.Workflow.Error)
	}
	if te.events.Count(event.TypeTaskRetry) != 2 || te.events.Count(event.TypeWorkflowFailed) != 1 {
		t.Fatalf("unexpected events %v", te.events.Types())
	}
}

func TestSchedulerTimeoutDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	backend := &mockBackend{fn: func(context.Context, agentbackend.Request) (agentbackend.Result, error) {
		started <- struct{}{}
		<-release
		return agentbackend.Result{Success: true, Output: map[string]any{"branch": "late"}}, nil
	}}
	cfg := testSchedulerConfig()
	cfg.TaskTimeout = 50 * time.Millisecond
	te := newTestEngine(t, backend, cfg, 0)
	registerAgent(t, te.registry, "git", "create_branch")
	te.run(t)

	snap, err := te.manager.Create(context.Background(), workflow.TypeCreateBranch, nil, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-started
	final := te.waitStatus(t, snap.Workflow.ID, workflow.StatusFailed)
	task := final.Tasks[0]
	if task.Error == nil || task.Error.Kind != workflow.KindTimeout {
		t.Fatalf("expected TimeoutError, got %+v", task.Error)
	}

	d, _ := te.registry.Get("git")
	if d.Status != agent.StatusBusy || d.InFlight == "" {
		t.Fatalf("agent must stay busy until the call returns, got %+v", d)
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		d, _ := te.registry.Get("git")
		return d.Status == agent.StatusAvailable
	})

	after, _ := te.manager.Status(context.Background(), snap.Workflow.ID)
	if after.Tasks[0].Status != workflow.TaskFailed || after.Tasks[0].Result != nil {
		t.Fatalf("late result applied: %+v", after.Tasks[0])
	}
	if te.events.Count(event.TypeTaskCompleted) != 0 {
		t.Fatal("late result emitted task_completed")
	}
}

func TestSchedulerCancel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	backend := &mockBackend{fn: func(_ context.Context, req agentbackend.Request) (agentbackend.Result, error) {
		if req.TaskType == "create_pr" {
			started <- struct{}{}
			<-release
		}
		return agentbackend.Result{Success: true, Output: map[string]any{"number": 7}}, nil
	}}
	te := newTestEngine(t, backend, testSchedulerConfig(), 0)
	registerAgent(t, te.registry, "pr-agent", "create_pr")
	registerAgent(t, te.registry, "reviewer", "code_review")
	te.run(t)

	snap, err := te.manager.Create(context.Background(), workflow.TypePRWithReview, nil, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-started

	cancelled, err := te.manager.Cancel(context.Background(), snap.Workflow.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !cancelled.Workflow.Cancelled || cancelled.Workflow.Status != workflow.StatusFailed {
		t.Fatalf("unexpected workflow after cancel %+v", cancelled.Workflow)
	}
	for _, task := range cancelled.Tasks {
		if task.Status != workflow.TaskFailed || task.Error.Kind != workflow.KindCancelled {
			t.Fatalf("task %s not cancelled: %+v", task.ID, task)
		}
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		d, _ := te.registry.Get("pr-agent")
		return d.Status == agent.StatusAvailable
	})
	time.Sleep(50 * time.Millisecond)

	for _, c := range backend.Calls() {
		if c.TaskType == "code_review" {
			t.Fatal("cancelled workflow dispatched a dependent task")
		}
	}
	after, _ := te.manager.Status(context.Background(), snap.Workflow.ID)
	if pr := taskByID(t, after, "create_pr"); pr.Status != workflow.TaskFailed || pr.Result != nil {
		t.Fatalf("in-flight result applied after cancel: %+v", pr)
	}
	if te.events.Count(event.TypeWorkflowCancelled) != 1 || te.events.Count(event.TypeWorkflowCompleted) != 0 {
		t.Fatalf("unexpected events %v", te.events.Types())
	}

	if _, err := te.manager.Cancel(context.Background(), snap.Workflow.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestSchedulerPriorityOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		repos []any
	)
	backend := &mockBackend{fn: func(_ context.Context, req agentbackend.Request) (agentbackend.Result, error) {
		mu.Lock()
		repos = append(repos, req.Parameters["repo"])
		mu.Unlock()
		return agentbackend.Result{Success: true, Output: map[string]any{"branch": "b"}}, nil
	}}
	cfg := testSchedulerConfig()
	cfg.MaxParallel = 1
	te := newTestEngine(t, backend, cfg, 0)
	registerAgent(t, te.registry, "git", "create_branch")

	ctx := context.Background()
	if _, err := te.manager.Create(ctx, workflow.TypeCreateBranch, map[string]any{"repo": "low"}, 5); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := te.manager.Create(ctx, workflow.TypeCreateBranch, map[string]any{"repo": "urgent"}, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if n := te.scheduler.Pass(ctx); n != 1 {
		t.Fatalf("expected one dispatch with one slot, got %d", n)
	}
	te.scheduler.Wait()
	if n := te.scheduler.Pass(ctx); n != 1 {
		t.Fatalf("expected second dispatch, got %d", n)
	}
	te.scheduler.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(repos) != 2 || repos[0] != "urgent" || repos[1] != "low" {
		t.Fatalf("expected urgent first, got %v", repos)
	}
}

func TestSchedulerStalledWorkflow(t *testing.T) {
	clock := newTestClock()
	reg, _ := workflow.NewRegistry(workflow.BuiltinTemplates()...)
	rcfg := testRegistryConfig()
	rcfg.KnownCapabilities = []string{"create_branch"}
	registry := NewAgentRegistry(rcfg)
	events := &eventRecorder{}
	cfg := testSchedulerConfig()
	cfg.StallThreshold = time.Minute
	s := NewScheduler(registry, staticBackends{b: &mockBackend{}}, SchedulerOptions{Config: cfg, Publish: events.Publish, Now: clock.Now})
	m := NewWorkflowManager(reg, registry, s, WorkflowOptions{Now: clock.Now})

	ctx := context.Background()
	snap, err := m.Create(ctx, workflow.TypeCreateBranch, nil, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s.Pass(ctx)
	clock.Advance(30 * time.Second)
	s.Pass(ctx)
	if events.Count(event.TypeWorkflowStalled) != 0 {
		t.Fatal("stalled before threshold")
	}
	clock.Advance(31 * time.Second)
	s.Pass(ctx)
	s.Pass(ctx)
	if n := events.Count(event.TypeWorkflowStalled); n != 1 {
		t.Fatalf("expected one stalled event per episode, got %d", n)
	}
	if s.Counts()["stalled"] != 1 {
		t.Fatalf("stalled sub-status not reported: %v", s.Counts())
	}
	got, _ := m.Status(ctx, snap.Workflow.ID)
	if !got.Workflow.Stalled || got.Workflow.Status != workflow.StatusRunning {
		t.Fatalf("unexpected workflow %+v", got.Workflow)
	}
}

func TestSchedulerAgentFaultsEmitOffline(t *testing.T) {
	backend := &mockBackend{fn: func(context.Context, agentbackend.Request) (agentbackend.Result, error) {
		return agentbackend.Result{}, agentbackend.ErrUnreachable
	}}
	te := newTestEngine(t, backend, testSchedulerConfig(), 5)
	registerAgent(t, te.registry, "git", "create_branch")
	te.run(t)

	if _, err := te.manager.Create(context.Background(), workflow.TypeCreateBranch, nil, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return te.events.Count(event.TypeAgentOffline) == 1 })

	d, _ := te.registry.Get("git")
	if d.Status != agent.StatusOffline || d.OfflineReason != OfflineFaults {
		t.Fatalf("expected agent offline after faults, got %+v", d)
	}
	if n := len(backend.Calls()); n != 3 {
		t.Fatalf("expected dispatch to stop at the fault threshold, got %d calls", n)
	}
}
