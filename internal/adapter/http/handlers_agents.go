package http

import (
	"net/http"
	"sort"

	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/event"
)

func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.Descriptor](w, r)
	if !ok {
		return
	}
	d, created, err := h.Agents.Register(req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	if h.Backends != nil {
		// Drop a backend dialled for a previous endpoint.
		h.Backends.Forget(d.ID)
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		ev := event.New(event.TypeAgentRegistered, "agent "+d.ID+" registered", map[string]any{
			"capabilities": d.Capabilities,
			"transport":    string(d.Transport),
		})
		ev.AgentID = d.ID
		h.publish(ev)
	}
	h.wake()
	writeJSON(w, status, d)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	status := agent.Status(r.URL.Query().Get("status"))
	capability := r.URL.Query().Get("capability")
	agents := h.Agents.List()
	out := make([]agent.Descriptor, 0, len(agents))
	for i := range agents {
		if status != "" && agents[i].Status != status {
			continue
		}
		if capability != "" && !agents[i].Can(capability) {
			continue
		}
		out = append(out, agents[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	d, ok := h.Agents.Get(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) DeregisterAgent(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Agents.Deregister(id); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	if h.Backends != nil {
		h.Backends.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	d, err := h.Agents.Heartbeat(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	h.wake()
	writeJSON(w, http.StatusOK, d)
}
