package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/workflow"
	"github.com/Strob0t/conductor/internal/port/cache"
)

const snapshotKeyPrefix = "workflow:"

// WorkflowOptions configure a WorkflowManager.
type WorkflowOptions struct {
	// Cache keeps snapshots of finished workflows after the scheduler
	// evicts them. Nil disables it.
	Cache          cache.Cache
	CacheTTL       time.Duration
	DefaultRetries int
	Now            func() time.Time
}

// WorkflowManager creates workflows from templates, reports their status and
// cancels them.
type WorkflowManager struct {
	templates *workflow.Registry
	registry  *AgentRegistry
	scheduler *Scheduler
	opts      WorkflowOptions
	now       func() time.Time
}

// NewWorkflowManager wires the template registry, agent registry and scheduler.
func NewWorkflowManager(templates *workflow.Registry, registry *AgentRegistry, scheduler *Scheduler, opts WorkflowOptions) *WorkflowManager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &WorkflowManager{
		templates: templates,
		registry:  registry,
		scheduler: scheduler,
		opts:      opts,
		now:       now,
	}
}

// Create validates workflowType, builds the task graph and starts the
// workflow. Cyclic graphs, malformed references and task types no agent can
// execute are rejected with domain.ErrValidation before anything runs.
func (m *WorkflowManager) Create(ctx context.Context, workflowType string, params map[string]any, priority int) (workflow.Snapshot, error) {
	tmpl, ok := m.templates.Get(workflowType)
	if !ok {
		return workflow.Snapshot{}, fmt.Errorf("%w: %w: %q", domain.ErrValidation, workflow.ErrUnknownTemplate, workflowType)
	}
	if params == nil {
		params = map[string]any{}
	}

	ts := m.now().UTC()
	wf := &workflow.Workflow{
		ID:         uuid.NewString(),
		Type:       workflowType,
		Parameters: params,
		Priority:   priority,
		Status:     workflow.StatusPending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	g, err := workflow.NewGraph(wf, tmpl, workflow.Options{
		DefaultRetries: m.opts.DefaultRetries,
		Known:          m.registry.Known,
		Now:            m.now,
	})
	if err != nil {
		slog.Warn("workflow rejected", "type", workflowType, "error", err)
		return workflow.Snapshot{}, err
	}
	if err := m.scheduler.Submit(ctx, g); err != nil {
		return workflow.Snapshot{}, err
	}
	snap, _ := m.scheduler.Snapshot(wf.ID)
	return snap, nil
}

// CreateFromIntent maps a classified intent to its workflow type and creates it.
func (m *WorkflowManager) CreateFromIntent(ctx context.Context, intent workflow.Intent, params map[string]any, priority int) (workflow.Snapshot, error) {
	name, ok := workflow.TemplateFor(intent)
	if !ok {
		return workflow.Snapshot{}, fmt.Errorf("%w: unknown intent %q", domain.ErrValidation, intent)
	}
	return m.Create(ctx, name, params, priority)
}

// Status returns the workflow's status, progress and per-task detail.
// Workflows already evicted from memory are served from the snapshot cache.
func (m *WorkflowManager) Status(ctx context.Context, id string) (workflow.Snapshot, error) {
	if snap, ok := m.scheduler.Snapshot(id); ok {
		return snap, nil
	}
	if m.opts.Cache != nil {
		data, ok, err := m.opts.Cache.Get(ctx, snapshotKeyPrefix+id)
		if err != nil {
			slog.Warn("snapshot cache read failed", "workflow_id", id, "error", err)
		}
		if ok {
			var snap workflow.Snapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				return snap, nil
			}
			slog.Warn("snapshot cache entry corrupt", "workflow_id", id)
		}
	}
	return workflow.Snapshot{}, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
}

// Cancel fails every non-completed task with reason Cancelled. Completed
// work is not rolled back.
func (m *WorkflowManager) Cancel(ctx context.Context, id string) (workflow.Snapshot, error) {
	snap, err := m.scheduler.Cancel(id)
	if errors.Is(err, domain.ErrNotFound) {
		if _, cerr := m.Status(ctx, id); cerr == nil {
			return workflow.Snapshot{}, fmt.Errorf("workflow %s already finished: %w", id, domain.ErrConflict)
		}
	}
	return snap, err
}

// List returns the workflows held in memory.
func (m *WorkflowManager) List() []workflow.Snapshot {
	return m.scheduler.List()
}

// Templates returns the available workflow templates.
func (m *WorkflowManager) Templates() []workflow.Template {
	return m.templates.List()
}

// Counts returns workflows per status.
func (m *WorkflowManager) Counts() map[string]int {
	return m.scheduler.Counts()
}

// StoreSnapshot caches a finished workflow's snapshot. It is the
// scheduler's finish callback.
func (m *WorkflowManager) StoreSnapshot(snap workflow.Snapshot) {
	if m.opts.Cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("encode workflow snapshot", "workflow_id", snap.Workflow.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.opts.Cache.Set(ctx, snapshotKeyPrefix+snap.Workflow.ID, data, m.opts.CacheTTL); err != nil {
		slog.Warn("snapshot cache write failed", "workflow_id", snap.Workflow.ID, "error", err)
	}
}
