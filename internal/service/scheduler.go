package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	cfotel "github.com/Strob0t/conductor/internal/adapter/otel"
	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/domain/workflow"
	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

// BackendResolver returns the transport used to reach an agent.
type BackendResolver interface {
	Backend(d agent.Descriptor) (agentbackend.Backend, error)
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions struct {
	Config          config.Scheduler
	ExpectedLatency time.Duration
	Metrics         *cfotel.Metrics
	// Publish receives every event after the scheduler lock is released.
	Publish func(event.Event)
	// OnFinish receives the snapshot of each workflow reaching a terminal
	// status. It is called outside the scheduler lock.
	OnFinish func(workflow.Snapshot)
	Now      func() time.Time
}

// execution is one dispatched attempt of a task on an agent.
type execution struct {
	id         string
	workflowID string
	taskID     string
	taskType   string
	agent      agent.Descriptor
	params     map[string]any
	deadline   time.Time
	started    time.Time
	// settled is set once the attempt's outcome has been applied to the
	// graph, by either the result or the deadline watchdog.
	settled bool
}

type entry struct {
	graph        *workflow.Graph
	seq          int
	stalledSince time.Time
	finishedAt   time.Time
}

// Scheduler dispatches ready tasks to agents. A single mutex serialises all
// graph and workflow mutation; agent I/O happens on goroutines outside it.
// Lock order is scheduler then registry.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]*entry
	seq      int
	inflight map[string]*execution
	finished []workflow.Snapshot

	registry *AgentRegistry
	backends BackendResolver
	sem      *semaphore.Weighted
	cfg      config.Scheduler
	opts     SchedulerOptions
	now      func() time.Time

	wake chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler. Run drives it; Pass runs a single
// dispatch round.
func NewScheduler(registry *AgentRegistry, backends BackendResolver, opts SchedulerOptions) *Scheduler {
	cfg := opts.Config
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		entries:  make(map[string]*entry),
		inflight: make(map[string]*execution),
		registry: registry,
		backends: backends,
		sem:      semaphore.NewWeighted(int64(cfg.MaxParallel)),
		cfg:      cfg,
		opts:     opts,
		now:      now,
		wake:     make(chan struct{}, 1),
	}
}

// Submit starts a workflow whose graph has been built and validated.
func (s *Scheduler) Submit(ctx context.Context, g *workflow.Graph) error {
	wf := g.Workflow()
	s.mu.Lock()
	if _, ok := s.entries[wf.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("workflow %s: %w", wf.ID, domain.ErrConflict)
	}
	s.seq++
	s.entries[wf.ID] = &entry{graph: g, seq: s.seq}
	wf.Status = workflow.StatusRunning
	wf.UpdatedAt = s.now().UTC()
	ev := workflowEvent(event.TypeWorkflowStarted, wf, fmt.Sprintf("workflow %s started", wf.Type))
	ev.Payload["tasks"] = g.Len()
	s.mu.Unlock()

	s.opts.Metrics.WorkflowStarted(ctx, wf.Type)
	slog.Info("workflow started", "workflow_id", wf.ID, "type", wf.Type, "tasks", g.Len(), "priority", wf.Priority)
	s.emit([]event.Event{ev})
	s.Wake()
	return nil
}

// Wake triggers a dispatch pass without waiting for the poll interval.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled, then waits for in-flight executions.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "max_parallel", s.cfg.MaxParallel, "poll_interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("scheduler stopped")
			return nil
		case <-s.wake:
		case <-ticker.C:
		}
		s.Pass(ctx)
	}
}

// Wait blocks until every launched execution has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

type candidate struct {
	e *entry
	t *workflow.Task
}

type launch struct {
	exec *execution
}

// Pass runs one dispatch round: collect ready tasks across active
// workflows, order them by (priority, workflow age), and hand each to the
// best available agent while execution slots last. It returns the number
// of executions launched.
func (s *Scheduler) Pass(ctx context.Context) int {
	s.mu.Lock()
	now := s.now()
	var events []event.Event
	var cands []candidate
	for _, e := range s.entries {
		wf := e.graph.Workflow()
		if wf.Cancelled || wf.Status.IsTerminal() {
			continue
		}
		for _, t := range e.graph.ReadyTasks() {
			cands = append(cands, candidate{e: e, t: t})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.t.Priority != b.t.Priority {
			return a.t.Priority < b.t.Priority
		}
		return a.e.seq < b.e.seq
	})

	var launches []launch
	waiting := make(map[*entry]bool)
	for _, c := range cands {
		wf := c.e.graph.Workflow()
		if wf.Cancelled {
			continue
		}
		if !s.sem.TryAcquire(1) {
			break
		}
		execID := uuid.NewString()
		d, ok := s.registry.Acquire(c.t.Type, execID)
		if !ok {
			s.sem.Release(1)
			waiting[c.e] = true
			continue
		}
		if err := c.e.graph.Assign(c.t.ID, d.ID); err != nil {
			s.registry.Release(d.ID, execID)
			s.sem.Release(1)
			slog.Error("task assignment refused", "workflow_id", wf.ID, "task_id", c.t.ID, "error", err)
			continue
		}
		_ = c.e.graph.Start(c.t.ID)

		timeout := c.t.Timeout
		if timeout <= 0 {
			timeout = s.cfg.TaskTimeout
		}
		exec := &execution{
			id:         execID,
			workflowID: wf.ID,
			taskID:     c.t.ID,
			taskType:   c.t.Type,
			agent:      d,
			params:     maps.Clone(c.t.Parameters),
			started:    now,
			deadline:   now.Add(timeout),
		}
		s.inflight[execID] = exec
		launches = append(launches, launch{exec: exec})

		ev := taskEvent(event.TypeTaskAssigned, c.t, fmt.Sprintf("task %s assigned to %s", c.t.ID, d.ID))
		ev.AgentID = d.ID
		ev.Payload["attempt"] = c.t.Attempts
		ev.Payload["execution_id"] = execID
		events = append(events, ev)
	}

	events = append(events, s.trackStalls(now, waiting)...)
	s.prune(now)
	finished := s.unlock()

	s.publish(events, finished)
	for _, l := range launches {
		s.opts.Metrics.TaskDispatched(ctx, l.exec.taskType)
		slog.Info("task dispatched", "workflow_id", l.exec.workflowID, "task_id", l.exec.taskID,
			"agent_id", l.exec.agent.ID, "execution_id", l.exec.id, "deadline", l.exec.deadline)
		s.wg.Add(1)
		go s.execute(ctx, l.exec)
	}
	return len(launches)
}

// trackStalls flags workflows whose ready tasks have waited for an agent
// longer than the stall threshold. One workflow_stalled event is emitted per
// episode; dispatching any task of the workflow ends the episode.
func (s *Scheduler) trackStalls(now time.Time, waiting map[*entry]bool) []event.Event {
	var events []event.Event
	for _, e := range s.entries {
		wf := e.graph.Workflow()
		if !waiting[e] || wf.Status.IsTerminal() || e.graph.InFlight() > 0 {
			e.stalledSince = time.Time{}
			wf.Stalled = false
			continue
		}
		if e.stalledSince.IsZero() {
			e.stalledSince = now
		}
		if wf.Stalled || s.cfg.StallThreshold <= 0 || now.Sub(e.stalledSince) < s.cfg.StallThreshold {
			continue
		}
		wf.Stalled = true
		ev := workflowEvent(event.TypeWorkflowStalled, wf,
			fmt.Sprintf("workflow %s has ready tasks with no available agent for %s", wf.ID, now.Sub(e.stalledSince).Round(time.Second)))
		ev.Payload["stalled_seconds"] = now.Sub(e.stalledSince).Seconds()
		events = append(events, ev)
		slog.Warn("workflow stalled", "workflow_id", wf.ID, "since", e.stalledSince)
	}
	return events
}

// prune drops finished workflows older than the retention window.
func (s *Scheduler) prune(now time.Time) {
	if s.cfg.Retention <= 0 {
		return
	}
	for id, e := range s.entries {
		if !e.finishedAt.IsZero() && e.graph.InFlight() == 0 && now.Sub(e.finishedAt) > s.cfg.Retention {
			delete(s.entries, id)
		}
	}
}

// execute calls the agent outside the lock. The deadline watchdog settles
// the attempt as a timeout if the agent has not answered by then; the
// agent itself is only released once the call returns.
func (s *Scheduler) execute(ctx context.Context, exec *execution) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	ctx = logger.WithWorkflowID(ctx, exec.workflowID)
	ctx, span := cfotel.StartTaskSpan(ctx, exec.workflowID, exec.taskID, exec.taskType, exec.agent.ID)
	defer span.End()

	watchdog := time.AfterFunc(time.Until(exec.deadline), func() { s.timeout(exec) })
	defer watchdog.Stop()

	var res agentbackend.Result
	backend, err := s.backends.Backend(exec.agent)
	if err != nil {
		err = fmt.Errorf("%w: %w", agentbackend.ErrUnreachable, err)
	} else {
		callCtx, cancel := context.WithDeadline(ctx, exec.deadline)
		res, err = backend.Execute(callCtx, agentbackend.Request{
			ExecutionID: exec.id,
			TaskType:    exec.taskType,
			Parameters:  exec.params,
			Deadline:    exec.deadline,
		})
		cancel()
	}
	s.finish(ctx, exec, res, err)
}

// timeout settles an attempt whose deadline passed without a response.
func (s *Scheduler) timeout(exec *execution) {
	s.mu.Lock()
	if exec.settled {
		s.mu.Unlock()
		return
	}
	exec.settled = true
	var events []event.Event
	if e, ok := s.entries[exec.workflowID]; ok && s.live(e, exec.taskID) {
		terr := workflow.NewTaskError(workflow.KindTimeout, "agent %s did not respond before %s", exec.agent.ID, exec.deadline.UTC().Format(time.RFC3339))
		events = append(events, s.failTask(e, exec.taskID, terr)...)
		events = append(events, s.recompute(e)...)
	}
	if s.registry.RecordFault(exec.agent.ID) {
		events = append(events, agentOfflineEvent(exec.agent.ID, OfflineFaults))
	}
	finished := s.unlock()

	s.opts.Metrics.TaskFinished(context.Background(), exec.taskType, "timeout", time.Since(exec.started))
	slog.Warn("task timed out", "workflow_id", exec.workflowID, "task_id", exec.taskID, "agent_id", exec.agent.ID, "execution_id", exec.id)
	s.publish(events, finished)
	s.Wake()
}

// finish applies an agent's answer. Answers for attempts already settled by
// the watchdog, or for workflows cancelled meanwhile, are discarded; the
// agent is released either way.
func (s *Scheduler) finish(ctx context.Context, exec *execution, res agentbackend.Result, callErr error) {
	latency := s.now().Sub(exec.started)
	shutdown := ctx.Err() != nil && !errors.Is(callErr, context.DeadlineExceeded)

	s.mu.Lock()
	delete(s.inflight, exec.id)
	if !s.registry.Release(exec.agent.ID, exec.id) {
		slog.Warn("stale execution result rejected", "agent_id", exec.agent.ID, "execution_id", exec.id)
	}
	if exec.settled {
		s.mu.Unlock()
		slog.Info("late result discarded", "workflow_id", exec.workflowID, "task_id", exec.taskID, "execution_id", exec.id, "latency", latency)
		s.Wake()
		return
	}
	exec.settled = true

	var events []event.Event
	e, ok := s.entries[exec.workflowID]
	var task *workflow.Task
	live := false
	if ok {
		task, _ = e.graph.Task(exec.taskID)
		live = s.live(e, exec.taskID)
	}

	outcome := "success"
	switch {
	case shutdown:
		if live {
			e.graph.Release(exec.taskID)
		}
		outcome = "aborted"
	case callErr != nil:
		outcome = "failure"
		kind := workflow.KindExecution
		if errors.Is(callErr, context.DeadlineExceeded) {
			kind, outcome = workflow.KindTimeout, "timeout"
		}
		if s.registry.RecordFault(exec.agent.ID) {
			events = append(events, agentOfflineEvent(exec.agent.ID, OfflineFaults))
		}
		if live {
			events = append(events, s.failTask(e, exec.taskID, workflow.NewTaskError(kind, "agent %s: %v", exec.agent.ID, callErr))...)
		}
	case !res.Success:
		outcome = "failure"
		s.registry.RecordOutcome(exec.agent.ID, false, latency)
		if live {
			msg := res.Error
			if msg == "" {
				msg = "agent reported failure"
			}
			events = append(events, s.failTask(e, exec.taskID, workflow.NewTaskError(workflow.KindExecution, "%s", msg))...)
		}
	default:
		score := s.registry.RecordOutcome(exec.agent.ID, true, latency)
		if s.opts.ExpectedLatency > 0 && latency > s.opts.ExpectedLatency {
			ev := event.New(event.TypeAgentDegradation,
				fmt.Sprintf("agent %s took %s for %s (expected %s)", exec.agent.ID, latency.Round(time.Millisecond), exec.taskType, s.opts.ExpectedLatency),
				map[string]any{
					"task_type":         exec.taskType,
					"latency_ms":        latency.Milliseconds(),
					"expected_ms":       s.opts.ExpectedLatency.Milliseconds(),
					"performance_score": score,
				})
			ev.AgentID, ev.WorkflowID, ev.TaskID = exec.agent.ID, exec.workflowID, exec.taskID
			events = append(events, ev)
		}
		if live {
			events = append(events, s.resolveTask(e, task, exec, res.Output, latency)...)
		}
	}
	if ok {
		events = append(events, s.recompute(e)...)
	}
	finished := s.unlock()

	if !live && !shutdown {
		slog.Info("result ignored", "workflow_id", exec.workflowID, "task_id", exec.taskID, "execution_id", exec.id)
	}
	s.opts.Metrics.TaskFinished(ctx, exec.taskType, outcome, latency)
	s.publish(events, finished)
	s.Wake()
}

// live reports whether an execution's outcome still applies to the task.
func (s *Scheduler) live(e *entry, taskID string) bool {
	t, ok := e.graph.Task(taskID)
	return ok && t.Status.InFlight() && !e.graph.Workflow().Cancelled
}

// resolveTask must be called with s.mu held.
func (s *Scheduler) resolveTask(e *entry, t *workflow.Task, exec *execution, output map[string]any, latency time.Duration) []event.Event {
	failed, err := e.graph.Resolve(t.ID, output)
	if err != nil {
		slog.Error("resolve task failed", "workflow_id", exec.workflowID, "task_id", t.ID, "error", err)
		return nil
	}
	ev := taskEvent(event.TypeTaskCompleted, t, fmt.Sprintf("task %s completed", t.ID))
	ev.AgentID = exec.agent.ID
	ev.Payload["latency_ms"] = latency.Milliseconds()
	ev.Payload["attempts"] = t.Attempts
	events := []event.Event{ev}
	slog.Info("task completed", "workflow_id", exec.workflowID, "task_id", t.ID, "agent_id", exec.agent.ID, "latency", latency)
	return append(events, s.failedEvents(e, failed)...)
}

// failTask records a failed attempt and either schedules the retry after
// the backoff or emits task_failed for the task and its cascade. Must be
// called with s.mu held.
func (s *Scheduler) failTask(e *entry, taskID string, terr *workflow.TaskError) []event.Event {
	retried, failed, err := e.graph.Fail(taskID, terr, false)
	if err != nil {
		slog.Error("fail task refused", "workflow_id", e.graph.Workflow().ID, "task_id", taskID, "error", err)
		return nil
	}
	if retried {
		t, _ := e.graph.Task(taskID)
		if s.cfg.RetryBackoff > 0 {
			e.graph.Defer(taskID, s.now().Add(s.cfg.RetryBackoff))
		}
		ev := taskEvent(event.TypeTaskRetry, t, fmt.Sprintf("task %s failed, retrying: %s", taskID, terr.Message))
		ev.Payload["error"] = terr.Message
		ev.Payload["error_kind"] = string(terr.Kind)
		ev.Payload["retries_remaining"] = t.RetriesRemaining
		ev.Payload["attempts"] = t.Attempts
		slog.Warn("task failed, will retry", "workflow_id", t.WorkflowID, "task_id", taskID, "kind", terr.Kind, "retries_remaining", t.RetriesRemaining)
		return []event.Event{ev}
	}
	return s.failedEvents(e, failed)
}

func (s *Scheduler) failedEvents(e *entry, ids []string) []event.Event {
	events := make([]event.Event, 0, len(ids))
	for _, id := range ids {
		t, ok := e.graph.Task(id)
		if !ok || t.Error == nil {
			continue
		}
		ev := taskEvent(event.TypeTaskFailed, t, fmt.Sprintf("task %s failed: %s", id, t.Error.Message))
		ev.Payload["error"] = t.Error.Message
		ev.Payload["error_kind"] = string(t.Error.Kind)
		ev.Payload["attempts"] = t.Attempts
		ev.AgentID = t.AssignedAgent
		events = append(events, ev)
		slog.Warn("task failed", "workflow_id", t.WorkflowID, "task_id", id, "kind", t.Error.Kind, "error", t.Error.Message)
	}
	return events
}

// recompute derives the workflow status after a transition and emits the
// terminal event once. A failed workflow abandons its undispatched tasks.
// Must be called with s.mu held.
func (s *Scheduler) recompute(e *entry) []event.Event {
	wf := e.graph.Workflow()
	prev := wf.Status
	status := e.graph.Recompute()
	if status == workflow.StatusFailed && prev != workflow.StatusFailed {
		if abandoned := e.graph.Abandon("workflow failed"); len(abandoned) > 0 {
			slog.Info("tasks abandoned", "workflow_id", wf.ID, "tasks", abandoned)
		}
	}
	if status == prev || !status.IsTerminal() || wf.Cancelled {
		return nil
	}
	return []event.Event{s.finishWorkflow(e)}
}

// finishWorkflow must be called with s.mu held.
func (s *Scheduler) finishWorkflow(e *entry) event.Event {
	wf := e.graph.Workflow()
	e.finishedAt = s.now()
	wf.Stalled = false

	var ev event.Event
	switch wf.Status {
	case workflow.StatusFailed:
		msg := "workflow failed"
		if wf.Error != nil {
			msg = fmt.Sprintf("workflow failed: %s", wf.Error.Message)
		}
		ev = workflowEvent(event.TypeWorkflowFailed, wf, msg)
		if wf.Error != nil {
			ev.Payload["error"] = wf.Error.Message
			ev.Payload["error_kind"] = string(wf.Error.Kind)
			ev.Payload["failed_task"] = wf.Error.TaskID
		}
	default:
		ev = workflowEvent(event.TypeWorkflowCompleted, wf, fmt.Sprintf("workflow %s %s", wf.Type, wf.Status))
	}
	completed, total := e.graph.Progress()
	ev.Payload["completed"] = completed
	ev.Payload["total"] = total
	ev.Payload["duration_seconds"] = e.finishedAt.Sub(wf.CreatedAt).Seconds()

	s.opts.Metrics.WorkflowFinished(context.Background(), wf.Type, string(wf.Status))
	slog.Info("workflow finished", "workflow_id", wf.ID, "status", wf.Status, "completed", completed, "total", total)
	s.finished = append(s.finished, e.graph.Snapshot())
	return ev
}

// Cancel stops a workflow: every unfinished task fails with kind Cancelled.
// In-flight executions run to completion and their results are ignored.
func (s *Scheduler) Cancel(id string) (workflow.Snapshot, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return workflow.Snapshot{}, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	wf := e.graph.Workflow()
	if wf.Status.IsTerminal() {
		snap := e.graph.Snapshot()
		s.mu.Unlock()
		return snap, fmt.Errorf("workflow %s is already %s: %w", id, wf.Status, domain.ErrConflict)
	}

	wf.Cancelled = true
	cancelled := e.graph.Cancel("workflow cancelled")
	if wf.Error == nil {
		wf.Error = &workflow.TaskError{Kind: workflow.KindCancelled, Message: "workflow cancelled", At: s.now().UTC()}
	}
	e.graph.Recompute()
	ev := workflowEvent(event.TypeWorkflowCancelled, wf, fmt.Sprintf("workflow %s cancelled", wf.ID))
	ev.Payload["cancelled_tasks"] = cancelled
	e.finishedAt = s.now()
	snap := e.graph.Snapshot()
	s.opts.Metrics.WorkflowFinished(context.Background(), wf.Type, "cancelled")
	s.finished = append(s.finished, snap)
	finished := s.unlock()

	slog.Info("workflow cancelled", "workflow_id", id, "tasks", cancelled)
	s.publish([]event.Event{ev}, finished)
	return snap, nil
}

// Snapshot returns a copy of a workflow's state.
func (s *Scheduler) Snapshot(id string) (workflow.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return workflow.Snapshot{}, false
	}
	return e.graph.Snapshot(), true
}

// List returns snapshots of every workflow still held in memory, oldest first.
func (s *Scheduler) List() []workflow.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]workflow.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.graph.Snapshot())
	}
	return out
}

// Counts returns the number of workflows per status, with stalled running
// workflows counted under "stalled" as well.
func (s *Scheduler) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, e := range s.entries {
		wf := e.graph.Workflow()
		counts[string(wf.Status)]++
		if wf.Stalled {
			counts["stalled"]++
		}
	}
	return counts
}

// InFlight returns the number of executions awaiting an agent response.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// unlock releases s.mu and hands back the snapshots of workflows finished
// while it was held.
func (s *Scheduler) unlock() []workflow.Snapshot {
	finished := s.finished
	s.finished = nil
	s.mu.Unlock()
	return finished
}

// publish runs the finish callbacks, then emits events. Must be called
// without s.mu held.
func (s *Scheduler) publish(events []event.Event, finished []workflow.Snapshot) {
	if s.opts.OnFinish != nil {
		for _, snap := range finished {
			s.opts.OnFinish(snap)
		}
	}
	s.emit(events)
}

func (s *Scheduler) emit(events []event.Event) {
	if s.opts.Publish == nil {
		return
	}
	for _, ev := range events {
		s.opts.Publish(ev)
	}
}

func workflowEvent(t event.Type, wf *workflow.Workflow, msg string) event.Event {
	ev := event.New(t, msg, map[string]any{
		"workflow_type": wf.Type,
		"status":        string(wf.Status),
		"priority":      wf.Priority,
	})
	ev.WorkflowID = wf.ID
	return ev
}

func taskEvent(t event.Type, task *workflow.Task, msg string) event.Event {
	ev := event.New(t, msg, map[string]any{
		"task_type": task.Type,
		"status":    string(task.Status),
	})
	ev.WorkflowID = task.WorkflowID
	ev.TaskID = task.ID
	return ev
}

func agentOfflineEvent(agentID, reason string) event.Event {
	ev := event.New(event.TypeAgentOffline, fmt.Sprintf("agent %s offline: %s", agentID, reason), map[string]any{"reason": reason})
	ev.AgentID = agentID
	return ev
}
