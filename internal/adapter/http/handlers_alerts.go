package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/conductor/internal/domain/alert"
)

// --- Rules ---

func (h *Handlers) ListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.Rules())
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Alerts.Rule(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) AddRule(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[alert.CreateRuleRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.ID, "id") {
		return
	}
	rule, err := h.Alerts.AddRule(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handlers) RemoveRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Alerts.RemoveRule(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestRule fires a synthetic alert for the rule, bypassing its cooldown.
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.TestAlert(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- Alerts ---

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alert.Filter{RuleID: q.Get("rule_id")}
	if raw := q.Get("severity"); raw != "" {
		sev, err := alert.ParseSeverity(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Severity = sev
	}
	if raw := q.Get("unresolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unresolved must be a boolean")
			return
		}
		f.UnresolvedOnly = v
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = since
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	f.Limit = limit

	alerts, err := h.Alerts.ListAlerts(r.Context(), f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.ResolveAlert(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// --- Channels ---

// ChannelInfo describes a configured notification channel.
type ChannelInfo struct {
	Channel string `json:"channel"`
	Breaker string `json:"breaker"`
}

func (h *Handlers) ListChannels(w http.ResponseWriter, _ *http.Request) {
	states := h.Dispatcher.BreakerStates()
	out := make([]ChannelInfo, 0, len(states))
	for _, id := range h.Dispatcher.Channels() {
		out = append(out, ChannelInfo{Channel: id, Breaker: string(states[id])})
	}
	writeJSON(w, http.StatusOK, out)
}

// TestChannels sends a test notification through every channel.
func (h *Handlers) TestChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Dispatcher.TestChannels(r.Context()))
}
