package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/domain/workflow"
	"github.com/Strob0t/conductor/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workflows *service.WorkflowManager
	Agents    *service.AgentRegistry
	// Scheduler is woken when agent availability changes.
	Scheduler *service.Scheduler
	// Backends caches dialled agent backends. Nil when unused.
	Backends   *service.AgentBackends
	Alerts     *service.AlertEngine
	Dispatcher *service.NotificationDispatcher
	// History serves stored events. Nil disables the events endpoint.
	History *service.History
	// Publish emits engine events raised by API calls (agent registration).
	Publish func(event.Event)
	// Ready reports dependency health for /health/ready.
	Ready func(ctx context.Context) error
	// Version is reported by GET /api/v1/.
	Version string
}

func (h *Handlers) publish(ev event.Event) {
	if h.Publish != nil {
		h.Publish(ev)
	}
}

func (h *Handlers) wake() {
	if h.Scheduler != nil {
		h.Scheduler.Wake()
	}
}

// --- Workflows ---

// CreateWorkflowRequest is the body of POST /workflows. Exactly one of
// WorkflowType and Intent is set.
type CreateWorkflowRequest struct {
	WorkflowType string          `json:"workflow_type"`
	Intent       workflow.Intent `json:"intent,omitempty"`
	Parameters   map[string]any  `json:"parameters"`
	Priority     int             `json:"priority"`
}

// WorkflowStatus is a snapshot plus its progress fraction.
type WorkflowStatus struct {
	workflow.Snapshot
	Progress float64 `json:"progress"`
}

func statusOf(s workflow.Snapshot) WorkflowStatus {
	return WorkflowStatus{Snapshot: s, Progress: s.Progress()}
}

func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CreateWorkflowRequest](w, r)
	if !ok {
		return
	}
	var (
		snap workflow.Snapshot
		err  error
	)
	switch {
	case req.WorkflowType != "" && req.Intent != "":
		writeError(w, http.StatusBadRequest, "workflow_type and intent are mutually exclusive")
		return
	case req.Intent != "":
		snap, err = h.Workflows.CreateFromIntent(r.Context(), req.Intent, req.Parameters, req.Priority)
	default:
		if !requireField(w, req.WorkflowType, "workflow_type") {
			return
		}
		snap, err = h.Workflows.Create(r.Context(), req.WorkflowType, req.Parameters, req.Priority)
	}
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusCreated, statusOf(snap))
}

func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	status := workflow.Status(r.URL.Query().Get("status"))
	snaps := h.Workflows.List()
	out := make([]WorkflowStatus, 0, len(snaps))
	for _, s := range snaps {
		if status != "" && s.Workflow.Status != status {
			continue
		}
		out = append(out, statusOf(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Workflows.Status(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, statusOf(snap))
}

func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Workflows.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, statusOf(snap))
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Workflows.Templates())
}
