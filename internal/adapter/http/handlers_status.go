package http

import (
	"net/http"
	"strings"

	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/eventstore"
	"github.com/Strob0t/conductor/internal/service"
)

// StatusResponse summarises the engine for GET /status.
type StatusResponse struct {
	Workflows map[string]int       `json:"workflows"`
	Agents    map[agent.Status]int `json:"agents"`
	Alerts    service.AlertStats   `json:"alerts"`
	Channels  []string             `json:"channels"`
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Workflows: h.Workflows.Counts(),
		Agents:    h.Agents.Counts(),
		Alerts:    h.Alerts.Stats(r.Context()),
		Channels:  []string{},
	}
	if h.Dispatcher != nil {
		resp.Channels = h.Dispatcher.Channels()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotFound, "event history disabled")
		return
	}
	q := r.URL.Query()
	f := eventstore.Filter{
		WorkflowID: q.Get("workflow_id"),
		AgentID:    q.Get("agent_id"),
	}
	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, event.Type(t))
			}
		}
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	f.Limit = limit
	h.writeEvents(w, r, f)
}

// WorkflowEvents returns the stored events of one workflow.
func (h *Handlers) WorkflowEvents(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotFound, "event history disabled")
		return
	}
	h.writeEvents(w, r, eventstore.Filter{WorkflowID: urlParam(r, "id")})
}

func (h *Handlers) writeEvents(w http.ResponseWriter, r *http.Request, f eventstore.Filter) {
	events, err := h.History.List(r.Context(), f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}
