package workflow

import (
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/Strob0t/conductor/internal/domain"
)

// taskParamsKey is the workflow parameter holding per-task overrides:
//
//	{"repo": "x", "tasks": {"code_review": {"reviewer": "alice"}}}
const taskParamsKey = "tasks"

// Options tune graph construction.
type Options struct {
	// DefaultRetries applies to tasks whose spec does not set Retries.
	DefaultRetries int
	// Known reports whether some agent can execute a task type.
	// Nil accepts every type.
	Known func(taskType string) bool
	// Now is the clock used for timestamps. Nil means time.Now.
	Now func() time.Time
}

// Graph holds a workflow's tasks and dependency edges. It is not safe for
// concurrent use; the scheduler serialises every call.
type Graph struct {
	wf         *Workflow
	tasks      map[string]*Task
	order      []string
	dependents map[string][]string
	// consumers maps a producer task to the tasks holding placeholders on it.
	consumers  map[string][]string
	unresolved map[string][]binding
	now        func() time.Time
}

// NewGraph builds the task graph for wf from tmpl. Any structural problem
// (cycle, unknown dependency, malformed or non-upstream reference, unknown
// capability) is returned wrapped in domain.ErrValidation and no graph is
// produced.
func NewGraph(wf *Workflow, tmpl Template, opts Options) (*Graph, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	g := &Graph{
		wf:         wf,
		tasks:      make(map[string]*Task, len(tmpl.Tasks)),
		dependents: make(map[string][]string),
		consumers:  make(map[string][]string),
		unresolved: make(map[string][]binding),
		now:        now,
	}
	upstream := ancestors(tmpl.Tasks)
	ts := now().UTC()

	for _, spec := range tmpl.Tasks {
		if opts.Known != nil && !opts.Known(spec.Type) {
			return nil, fmt.Errorf("%w: task %s type %s: %w", domain.ErrValidation, spec.ID, spec.Type, ErrUnknownCapability)
		}

		params, err := taskParameters(spec, wf.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: task %s: %w", domain.ErrValidation, spec.ID, err)
		}
		refs, err := scanRefs(params)
		if err != nil {
			return nil, fmt.Errorf("%w: task %s: %w", domain.ErrValidation, spec.ID, err)
		}
		for _, b := range refs {
			if _, ok := upstream[spec.ID][b.Ref.TaskID]; !ok {
				return nil, fmt.Errorf("%w: task %s references %s: %w", domain.ErrValidation, spec.ID, b.Ref.TaskID, ErrRefNotUpstream)
			}
		}

		retries := opts.DefaultRetries
		if spec.Retries != nil {
			retries = *spec.Retries
		}
		priority := wf.Priority
		if spec.Priority != nil {
			priority = *spec.Priority
		}

		g.tasks[spec.ID] = &Task{
			ID:               spec.ID,
			WorkflowID:       wf.ID,
			Type:             spec.Type,
			Parameters:       params,
			DependsOn:        append([]string(nil), spec.DependsOn...),
			Status:           TaskPending,
			RetriesRemaining: retries,
			Priority:         priority,
			Optional:         spec.Optional,
			Timeout:          spec.Timeout(),
			UpdatedAt:        ts,
		}
		g.order = append(g.order, spec.ID)
		for _, dep := range spec.DependsOn {
			g.dependents[dep] = append(g.dependents[dep], spec.ID)
		}
		if len(refs) > 0 {
			g.unresolved[spec.ID] = refs
			seen := make(map[string]bool)
			for _, b := range refs {
				if !seen[b.Ref.TaskID] {
					seen[b.Ref.TaskID] = true
					g.consumers[b.Ref.TaskID] = append(g.consumers[b.Ref.TaskID], spec.ID)
				}
			}
		}
	}

	wf.Tasks = append([]string(nil), g.order...)
	return g, nil
}

// taskParameters merges template defaults, workflow-wide parameters and the
// per-task overrides found under the "tasks" key, later sources winning.
func taskParameters(spec TaskSpec, wfParams map[string]any) (map[string]any, error) {
	params := cloneMap(spec.DefaultParameters)

	global := make(map[string]any, len(wfParams))
	for k, v := range wfParams {
		if k != taskParamsKey {
			global[k] = cloneValue(v)
		}
	}
	if err := mergo.Merge(&params, global, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge workflow parameters: %w", err)
	}

	if perTask, ok := wfParams[taskParamsKey].(map[string]any); ok {
		if own, ok := perTask[spec.ID].(map[string]any); ok {
			if err := mergo.Merge(&params, cloneMap(own), mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge task parameters: %w", err)
			}
		}
	}
	return params, nil
}

// Workflow returns the workflow owning this graph.
func (g *Graph) Workflow() *Workflow { return g.wf }

// Task returns the task with the given id.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.order) }

// ReadyTasks promotes every pending task whose dependencies are all
// completed (and whose retry delay has elapsed) to ready, and returns all
// ready tasks in template order.
func (g *Graph) ReadyTasks() []*Task {
	now := g.now()
	var ready []*Task
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == TaskPending && g.depsCompleted(t) && !now.Before(t.NotBefore) {
			g.set(t, TaskReady)
		}
		if t.Status == TaskReady {
			ready = append(ready, t)
		}
	}
	return ready
}

func (g *Graph) depsCompleted(t *Task) bool {
	for _, dep := range t.DependsOn {
		if g.tasks[dep].Status != TaskCompleted {
			return false
		}
	}
	return true
}

// Assign moves a ready task to assigned. A task with unresolved
// placeholders is refused.
func (g *Graph) Assign(id, agentID string) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != TaskReady || !g.depsCompleted(t) {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	if len(g.unresolved[id]) > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvedParameters, id)
	}
	t.AssignedAgent = agentID
	t.Attempts++
	g.set(t, TaskAssigned)
	return nil
}

// Start marks an assigned task as running.
func (g *Graph) Start(id string) error {
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != TaskAssigned {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	g.set(t, TaskRunning)
	return nil
}

// Release returns an in-flight task to ready without consuming a retry.
// Used when dispatch could not start.
func (g *Graph) Release(id string) {
	if t, ok := g.tasks[id]; ok && t.Status.InFlight() {
		t.AssignedAgent = ""
		t.Attempts--
		g.set(t, TaskReady)
	}
}

// Resolve marks the task completed, stores its result and substitutes its
// output into every task holding a placeholder on it. Tasks whose
// referenced key is absent fail permanently with DependencyResolutionError.
// The ids of all tasks failed as a consequence are returned.
func (g *Graph) Resolve(id string, result map[string]any) ([]string, error) {
	t, ok := g.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	t.Result = result
	t.Error = nil
	g.set(t, TaskCompleted)

	var failed []string
	for _, cid := range g.consumers[id] {
		c := g.tasks[cid]
		if c.Status.IsTerminal() {
			continue
		}
		remaining := g.unresolved[cid][:0]
		var missing *Ref
		for _, b := range g.unresolved[cid] {
			if b.Ref.TaskID != id {
				remaining = append(remaining, b)
				continue
			}
			v, ok := b.Ref.Lookup(result)
			if !ok {
				ref := b.Ref
				missing = &ref
				break
			}
			setParam(c.Parameters, b.Param, cloneValue(v))
		}
		if missing != nil {
			terr := NewTaskError(KindDependencyResolution, "output key %q of task %s is missing", strings.Join(missing.Path, "."), id)
			failed = append(failed, g.failPermanent(c, terr)...)
			continue
		}
		g.unresolved[cid] = remaining
	}
	return failed, nil
}

// Fail records a failed attempt. When permanent is set or no retries remain
// the task fails for good and every transitive dependent fails with
// "upstream dependency failed"; the ids of all failed tasks are returned.
// Otherwise the task returns to pending with one retry consumed and
// retried is true.
func (g *Graph) Fail(id string, terr *TaskError, permanent bool) (retried bool, failed []string, err error) {
	t, ok := g.tasks[id]
	if !ok {
		return false, nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status.IsTerminal() {
		return false, nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	terr.TaskID = id
	if !permanent && !terr.Kind.Permanent() && t.RetriesRemaining > 0 {
		t.RetriesRemaining--
		t.AssignedAgent = ""
		t.Error = terr
		g.set(t, TaskPending)
		return true, nil, nil
	}
	return false, g.failPermanent(t, terr), nil
}

// Defer keeps a pending task from becoming ready before until.
func (g *Graph) Defer(id string, until time.Time) {
	if t, ok := g.tasks[id]; ok && t.Status == TaskPending {
		t.NotBefore = until
	}
}

// failPermanent fails t and cascades to its transitive dependents,
// visiting each exactly once.
func (g *Graph) failPermanent(t *Task, terr *TaskError) []string {
	terr.TaskID = t.ID
	t.Error = terr
	g.set(t, TaskFailed)
	if g.wf.Error == nil && !t.Optional {
		g.wf.Error = terr
	}
	failed := []string{t.ID}

	queue := append([]string(nil), g.dependents[t.ID]...)
	visited := make(map[string]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		d := g.tasks[id]
		if d.Status.IsTerminal() {
			continue
		}
		d.Error = &TaskError{Kind: KindUpstreamFailed, Message: MsgUpstreamFailed, TaskID: id, At: terr.At}
		g.set(d, TaskFailed)
		if g.wf.Error == nil && !d.Optional {
			g.wf.Error = d.Error
		}
		failed = append(failed, id)
		queue = append(queue, g.dependents[id]...)
	}
	return failed
}

// Cancel fails every task that has not finished, with kind Cancelled.
// In-flight tasks are included; their late results are discarded by the
// caller. Completed tasks are left untouched.
func (g *Graph) Cancel(reason string) []string {
	var failed []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status.IsTerminal() {
			continue
		}
		t.Error = &TaskError{Kind: KindCancelled, Message: reason, TaskID: id, At: g.now().UTC()}
		g.set(t, TaskFailed)
		failed = append(failed, id)
	}
	return failed
}

// Abandon fails tasks that were never dispatched. In-flight tasks keep
// running so their outcome is still recorded.
func (g *Graph) Abandon(reason string) []string {
	var failed []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != TaskPending && t.Status != TaskReady {
			continue
		}
		t.Error = &TaskError{Kind: KindCancelled, Message: reason, TaskID: id, At: g.now().UTC()}
		g.set(t, TaskFailed)
		failed = append(failed, id)
	}
	return failed
}

// InFlight returns the number of assigned or running tasks.
func (g *Graph) InFlight() int {
	n := 0
	for _, t := range g.tasks {
		if t.Status.InFlight() {
			n++
		}
	}
	return n
}

// Done reports whether every task reached a terminal state.
func (g *Graph) Done() bool {
	for _, t := range g.tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Progress returns the number of completed tasks and the total.
func (g *Graph) Progress() (completed, total int) {
	for _, t := range g.tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}
	return completed, len(g.tasks)
}

// Recompute derives the workflow status from its tasks and stores it:
// completed iff all tasks completed, failed once any required task failed,
// partially_failed when everything finished and only optional tasks failed.
func (g *Graph) Recompute() Status {
	if g.wf.Status.IsTerminal() && g.wf.Status != StatusFailed {
		return g.wf.Status
	}
	allCompleted, allTerminal := true, true
	requiredFailed, anyFailed := false, false
	for _, t := range g.tasks {
		switch t.Status {
		case TaskCompleted:
		case TaskFailed:
			allCompleted = false
			anyFailed = true
			if !t.Optional {
				requiredFailed = true
			}
		default:
			allCompleted = false
			allTerminal = false
		}
	}

	status := StatusRunning
	switch {
	case allCompleted:
		status = StatusCompleted
	case requiredFailed:
		status = StatusFailed
	case allTerminal && anyFailed:
		status = StatusPartiallyFailed
	}
	if status != g.wf.Status {
		g.wf.Status = status
		g.wf.UpdatedAt = g.now().UTC()
		if status.IsTerminal() {
			ts := g.wf.UpdatedAt
			g.wf.CompletedAt = &ts
		}
	}
	return status
}

// Snapshot copies the workflow and its tasks for readers.
func (g *Graph) Snapshot() Snapshot {
	wf := *g.wf
	wf.Parameters = cloneNullable(g.wf.Parameters)
	wf.Tasks = append([]string(nil), g.wf.Tasks...)
	if g.wf.Error != nil {
		e := *g.wf.Error
		wf.Error = &e
	}

	tasks := make([]Task, 0, len(g.order))
	for _, id := range g.order {
		t := *g.tasks[id]
		t.Parameters = cloneNullable(t.Parameters)
		t.Result = cloneNullable(t.Result)
		t.DependsOn = append([]string(nil), t.DependsOn...)
		if t.Error != nil {
			e := *t.Error
			t.Error = &e
		}
		tasks = append(tasks, t)
	}
	completed, total := g.Progress()
	return Snapshot{Workflow: wf, Completed: completed, Total: total, Tasks: tasks}
}

func (g *Graph) set(t *Task, s TaskStatus) {
	t.Status = s
	t.UpdatedAt = g.now().UTC()
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneNullable is cloneMap that keeps a nil map nil.
func cloneNullable(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return cloneMap(m)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
