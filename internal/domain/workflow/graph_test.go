package workflow_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/workflow"
)

func build(t *testing.T, tmpl workflow.Template, params map[string]any, retries int) (*workflow.Workflow, *workflow.Graph) {
	t.Helper()
	wf := &workflow.Workflow{ID: "wf-1", Type: tmpl.Name, Parameters: params, Status: workflow.StatusRunning}
	g, err := workflow.NewGraph(wf, tmpl, workflow.Options{DefaultRetries: retries})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return wf, g
}

func template(t *testing.T, name string) workflow.Template {
	t.Helper()
	for _, tmpl := range workflow.BuiltinTemplates() {
		if tmpl.Name == name {
			return tmpl
		}
	}
	t.Fatalf("builtin template %s not found", name)
	return workflow.Template{}
}

func readyIDs(g *workflow.Graph) []string {
	var ids []string
	for _, task := range g.ReadyTasks() {
		ids = append(ids, task.ID)
	}
	return ids
}

func mustTask(t *testing.T, g *workflow.Graph, id string) *workflow.Task {
	t.Helper()
	task, ok := g.Task(id)
	if !ok {
		t.Fatalf("task %s missing", id)
	}
	return task
}

func complete(t *testing.T, g *workflow.Graph, id string, result map[string]any) []string {
	t.Helper()
	if err := g.Assign(id, "agent-1"); err != nil {
		t.Fatalf("Assign(%s): %v", id, err)
	}
	if err := g.Start(id); err != nil {
		t.Fatalf("Start(%s): %v", id, err)
	}
	failed, err := g.Resolve(id, result)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", id, err)
	}
	return failed
}

func TestLinearPipelineResolvesPlaceholder(t *testing.T) {
	_, g := build(t, template(t, workflow.TypePRWithReview), map[string]any{"repo": "acme/api"}, 0)

	if got := readyIDs(g); len(got) != 1 || got[0] != "create_pr" {
		t.Fatalf("expected [create_pr] ready, got %v", got)
	}

	review := mustTask(t, g, "code_review")
	if err := g.Assign("code_review", "agent-2"); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before dependency completes, got %v", err)
	}

	if failed := complete(t, g, "create_pr", map[string]any{"number": 42}); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}
	if got := review.Parameters["pr_number"]; got != 42 {
		t.Fatalf("expected pr_number 42, got %v", got)
	}
	if got := review.Parameters["repo"]; got != "acme/api" {
		t.Fatalf("expected workflow parameter to be merged, got %v", got)
	}
	if got := readyIDs(g); len(got) != 1 || got[0] != "code_review" {
		t.Fatalf("expected [code_review] ready, got %v", got)
	}
}

func TestListPlaceholderResolvesBeforeAssign(t *testing.T) {
	tmpl := workflow.Template{Name: "notify_prs", Tasks: []workflow.TaskSpec{
		{ID: "create_pr", Type: "create_pr"},
		{ID: "notify", Type: "notify", DependsOn: []string{"create_pr"}, DefaultParameters: map[string]any{
			"prs":   []any{"$task:create_pr.output.number", "static"},
			"links": []any{map[string]any{"url": "$task:create_pr.output.url"}},
		}},
	}}
	_, g := build(t, tmpl, nil, 0)

	readyIDs(g)
	if failed := complete(t, g, "create_pr", map[string]any{"number": 42, "url": "https://git/pr/42"}); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}
	notify := mustTask(t, g, "notify")
	prs, ok := notify.Parameters["prs"].([]any)
	if !ok || len(prs) != 2 || prs[0] != 42 || prs[1] != "static" {
		t.Fatalf("expected prs [42 static], got %v", notify.Parameters["prs"])
	}
	links, ok := notify.Parameters["links"].([]any)
	if !ok || links[0].(map[string]any)["url"] != "https://git/pr/42" {
		t.Fatalf("expected resolved link url, got %v", notify.Parameters["links"])
	}
	if tmpl.Tasks[1].DefaultParameters["prs"].([]any)[0] != "$task:create_pr.output.number" {
		t.Fatal("template defaults were mutated")
	}
	if got := readyIDs(g); len(got) != 1 || got[0] != "notify" {
		t.Fatalf("expected [notify] ready, got %v", got)
	}
	if err := g.Assign("notify", "agent-1"); err != nil {
		t.Fatalf("Assign(notify): %v", err)
	}
}

func TestListPlaceholderMissingKeyFailsDependent(t *testing.T) {
	tmpl := workflow.Template{Name: "notify_prs", Tasks: []workflow.TaskSpec{
		{ID: "create_pr", Type: "create_pr"},
		{ID: "notify", Type: "notify", DependsOn: []string{"create_pr"}, DefaultParameters: map[string]any{
			"prs": []any{"$task:create_pr.output.number"},
		}},
	}}
	_, g := build(t, tmpl, nil, 0)

	readyIDs(g)
	failed := complete(t, g, "create_pr", map[string]any{"url": "x"})
	if len(failed) != 1 || failed[0] != "notify" {
		t.Fatalf("expected [notify] failed, got %v", failed)
	}
	if err := g.Assign("notify", "agent-1"); err == nil {
		t.Fatal("a task with an unresolved list placeholder must not be assigned")
	}
}

func TestFanInCascadesUpstreamFailure(t *testing.T) {
	wf, g := build(t, template(t, workflow.TypeFullDevelopmentCycle), nil, 0)

	readyIDs(g)
	complete(t, g, "create_pr", map[string]any{"number": 7})

	got := readyIDs(g)
	if len(got) != 2 || got[0] != "analyze_code" || got[1] != "code_review" {
		t.Fatalf("expected analyze_code and code_review ready, got %v", got)
	}
	complete(t, g, "analyze_code", map[string]any{"issues": 0})

	if err := g.Assign("code_review", "agent-3"); err != nil {
		t.Fatal(err)
	}
	retried, failed, err := g.Fail("code_review", workflow.NewTaskError(workflow.KindExecution, "review crashed"), true)
	if err != nil {
		t.Fatal(err)
	}
	if retried {
		t.Fatal("permanent failure must not be retried")
	}
	if len(failed) != 2 || failed[0] != "code_review" || failed[1] != "merge_pr" {
		t.Fatalf("expected code_review and merge_pr failed, got %v", failed)
	}

	merge := mustTask(t, g, "merge_pr")
	if merge.Status != workflow.TaskFailed {
		t.Fatalf("expected merge_pr failed, got %s", merge.Status)
	}
	if merge.Error == nil || merge.Error.Message != workflow.MsgUpstreamFailed {
		t.Fatalf("expected upstream failure reason, got %+v", merge.Error)
	}
	if mustTask(t, g, "analyze_code").Status != workflow.TaskCompleted {
		t.Fatal("analyze_code must stay completed")
	}

	if s := g.Recompute(); s != workflow.StatusFailed {
		t.Fatalf("expected workflow failed, got %s", s)
	}
	if wf.Error == nil || wf.Error.TaskID != "code_review" || wf.Error.Kind != workflow.KindExecution {
		t.Fatalf("expected workflow error to carry the first permanent error, got %+v", wf.Error)
	}
}

func TestRetryExhaustion(t *testing.T) {
	tmpl := workflow.Template{
		Name: "chain",
		Tasks: []workflow.TaskSpec{
			{ID: "a", Type: "build"},
			{ID: "b", Type: "test", DependsOn: []string{"a"}},
			{ID: "c", Type: "deploy", DependsOn: []string{"b"}},
			{ID: "d", Type: "notify", DependsOn: []string{"b", "c"}},
		},
	}
	_, g := build(t, tmpl, nil, 2)

	for attempt := 1; attempt <= 3; attempt++ {
		if got := readyIDs(g); len(got) != 1 || got[0] != "a" {
			t.Fatalf("attempt %d: expected [a] ready, got %v", attempt, got)
		}
		if err := g.Assign("a", "agent-1"); err != nil {
			t.Fatal(err)
		}
		retried, failed, err := g.Fail("a", workflow.NewTaskError(workflow.KindExecution, "boom"), false)
		if err != nil {
			t.Fatal(err)
		}
		if attempt < 3 {
			if !retried || len(failed) != 0 {
				t.Fatalf("attempt %d: expected retry, got retried=%v failed=%v", attempt, retried, failed)
			}
			continue
		}
		if retried {
			t.Fatal("third failure must be permanent")
		}
		seen := map[string]int{}
		for _, id := range failed {
			seen[id]++
		}
		for _, id := range []string{"a", "b", "c", "d"} {
			if seen[id] != 1 {
				t.Errorf("expected %s failed exactly once, got %d", id, seen[id])
			}
		}
	}

	a := mustTask(t, g, "a")
	if a.RetriesRemaining != 0 || a.Attempts != 3 {
		t.Fatalf("expected 0 retries remaining after 3 attempts, got %d/%d", a.RetriesRemaining, a.Attempts)
	}
}

func TestMissingOutputKeyFailsDependent(t *testing.T) {
	_, g := build(t, template(t, workflow.TypeFullDevelopmentCycle), nil, 3)

	readyIDs(g)
	failed := complete(t, g, "create_pr", map[string]any{"url": "https://example/pr/1"})

	if len(failed) != 3 {
		t.Fatalf("expected analyze_code, code_review and merge_pr failed, got %v", failed)
	}
	review := mustTask(t, g, "code_review")
	if review.Error == nil || review.Error.Kind != workflow.KindDependencyResolution {
		t.Fatalf("expected DependencyResolutionError, got %+v", review.Error)
	}
	if review.RetriesRemaining != 3 {
		t.Fatal("dependency resolution failures must not consume retries")
	}
}

func TestCycleRejected(t *testing.T) {
	tmpl := workflow.Template{
		Name: "loop",
		Tasks: []workflow.TaskSpec{
			{ID: "a", Type: "x", DependsOn: []string{"c"}},
			{ID: "b", Type: "x", DependsOn: []string{"a"}},
			{ID: "c", Type: "x", DependsOn: []string{"b"}},
		},
	}
	wf := &workflow.Workflow{ID: "wf"}
	g, err := workflow.NewGraph(wf, tmpl, workflow.Options{})
	if g != nil {
		t.Fatal("expected no graph")
	}
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, workflow.ErrCycle) {
		t.Fatalf("expected validation cycle error, got %v", err)
	}
	if len(wf.Tasks) != 0 {
		t.Fatalf("expected zero registered tasks, got %v", wf.Tasks)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    workflow.Template
		known   func(string) bool
		wantErr error
	}{
		{
			name: "reference to non upstream task",
			tmpl: workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{
				{ID: "a", Type: "x"},
				{ID: "b", Type: "x", DefaultParameters: map[string]any{"v": "$task:a.output.n"}},
			}},
			wantErr: workflow.ErrRefNotUpstream,
		},
		{
			name: "malformed reference",
			tmpl: workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{
				{ID: "a", Type: "x"},
				{ID: "b", Type: "x", DependsOn: []string{"a"}, DefaultParameters: map[string]any{"v": "$task:a.n"}},
			}},
			wantErr: workflow.ErrMalformedRef,
		},
		{
			name: "malformed reference inside a list",
			tmpl: workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{
				{ID: "a", Type: "x"},
				{ID: "b", Type: "x", DependsOn: []string{"a"}, DefaultParameters: map[string]any{
					"bad": []any{"ok", map[string]any{"v": "$task:nope"}},
				}},
			}},
			wantErr: workflow.ErrMalformedRef,
		},
		{
			name:    "unknown dependency",
			tmpl:    workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{{ID: "a", Type: "x", DependsOn: []string{"zzz"}}}},
			wantErr: workflow.ErrUnknownDependency,
		},
		{
			name:    "unknown capability",
			tmpl:    workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{{ID: "a", Type: "teleport"}}},
			known:   func(tt string) bool { return tt != "teleport" },
			wantErr: workflow.ErrUnknownCapability,
		},
		{
			name:    "no tasks",
			tmpl:    workflow.Template{Name: "t"},
			wantErr: workflow.ErrNoTasks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.NewGraph(&workflow.Workflow{ID: "wf"}, tt.tmpl, workflow.Options{Known: tt.known})
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPerTaskParameterOverride(t *testing.T) {
	params := map[string]any{
		"repo":  "acme/api",
		"tasks": map[string]any{"code_review": map[string]any{"reviewer": "sam", "pr_number": 9}},
	}
	_, g := build(t, template(t, workflow.TypePRWithReview), params, 0)

	review := mustTask(t, g, "code_review")
	if review.Parameters["reviewer"] != "sam" {
		t.Fatalf("expected per-task override, got %v", review.Parameters)
	}
	if review.Parameters["pr_number"] != 9 {
		t.Fatalf("expected explicit pr_number to replace placeholder, got %v", review.Parameters["pr_number"])
	}
	if _, ok := mustTask(t, g, "create_pr").Parameters["tasks"]; ok {
		t.Fatal("tasks key must not leak into task parameters")
	}

	readyIDs(g)
	complete(t, g, "create_pr", map[string]any{"number": 1})
	if review.Parameters["pr_number"] != 9 {
		t.Fatal("override must survive producer completion")
	}
}

func TestCancelKeepsCompletedTasks(t *testing.T) {
	wf, g := build(t, template(t, workflow.TypeFullDevelopmentCycle), nil, 0)
	readyIDs(g)
	complete(t, g, "create_pr", map[string]any{"number": 1})

	failed := g.Cancel("Cancelled")
	if len(failed) != 3 {
		t.Fatalf("expected 3 cancelled tasks, got %v", failed)
	}
	if mustTask(t, g, "create_pr").Status != workflow.TaskCompleted {
		t.Fatal("completed task must not be rolled back")
	}
	if e := mustTask(t, g, "merge_pr").Error; e == nil || e.Kind != workflow.KindCancelled {
		t.Fatalf("expected Cancelled error, got %+v", e)
	}
	if g.Recompute() != workflow.StatusFailed {
		t.Fatalf("expected failed, got %s", wf.Status)
	}
	if !g.Done() {
		t.Fatal("expected all tasks terminal")
	}
}

func TestOptionalFailureIsPartial(t *testing.T) {
	tmpl := workflow.Template{Name: "t", Tasks: []workflow.TaskSpec{
		{ID: "main", Type: "x"},
		{ID: "extra", Type: "y", Optional: true},
	}}
	_, g := build(t, tmpl, nil, 0)
	readyIDs(g)
	complete(t, g, "main", nil)
	if err := g.Assign("extra", "agent"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := g.Fail("extra", workflow.NewTaskError(workflow.KindExecution, "nope"), false); err != nil {
		t.Fatal(err)
	}
	if s := g.Recompute(); s != workflow.StatusPartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", s)
	}
}

func TestCompletedWhenAllTasksComplete(t *testing.T) {
	wf, g := build(t, template(t, workflow.TypeBranchAndPR), nil, 0)
	readyIDs(g)
	complete(t, g, "create_branch", map[string]any{"branch": "feature/x"})
	if g.Recompute() != workflow.StatusRunning {
		t.Fatal("expected running while tasks remain")
	}
	readyIDs(g)
	if got := mustTask(t, g, "create_pr").Parameters["head"]; got != "feature/x" {
		t.Fatalf("expected head feature/x, got %v", got)
	}
	complete(t, g, "create_pr", map[string]any{"number": 3})
	if g.Recompute() != workflow.StatusCompleted || wf.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %s", wf.Status)
	}

	snap := g.Snapshot()
	if snap.Completed != 2 || snap.Total != 2 || snap.Progress() != 1 {
		t.Fatalf("unexpected progress %d/%d", snap.Completed, snap.Total)
	}
}

func TestSnapshotKeepsUnsetResultNil(t *testing.T) {
	_, g := build(t, template(t, workflow.TypePRWithReview), nil, 0)
	readyIDs(g)
	complete(t, g, "create_pr", map[string]any{"number": 42})

	snap := g.Snapshot()
	for _, task := range snap.Tasks {
		switch task.ID {
		case "create_pr":
			if task.Result["number"] != 42 {
				t.Fatalf("expected create_pr result copied, got %v", task.Result)
			}
		case "code_review":
			if task.Result != nil {
				t.Fatalf("expected nil result for unfinished task, got %v", task.Result)
			}
		}
	}
	snap.Tasks[0].Result["number"] = 1
	if mustTask(t, g, "create_pr").Result["number"] != 42 {
		t.Fatal("snapshot shares the result map with the graph")
	}
}
