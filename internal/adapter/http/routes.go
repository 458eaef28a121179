package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mounts are optional handlers served next to the API. Nil entries are
// not mounted.
type Mounts struct {
	WS      http.HandlerFunc
	MCP     http.Handler
	Metrics http.Handler
	// API wraps /api/v1 only, keeping long-lived /ws and /mcp streams out
	// of request timeouts.
	API []func(http.Handler) http.Handler
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, m Mounts) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Readiness)
	if m.Metrics != nil {
		r.Handle("/metrics", m.Metrics)
	}
	if m.WS != nil {
		r.Get("/ws", m.WS)
	}
	if m.MCP != nil {
		r.Handle("/mcp", m.MCP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.API...)

		r.Get("/", h.GetVersion)
		r.Get("/status", h.Status)

		// Workflows
		r.Get("/templates", h.ListTemplates)
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/cancel", h.CancelWorkflow)
		r.Get("/workflows/{id}/events", h.WorkflowEvents)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.RegisterAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Delete("/agents/{id}", h.DeregisterAgent)
		r.Post("/agents/{id}/heartbeat", h.AgentHeartbeat)

		// Alert rules
		r.Get("/alert-rules", h.ListRules)
		r.Post("/alert-rules", h.AddRule)
		r.Get("/alert-rules/{id}", h.GetRule)
		r.Delete("/alert-rules/{id}", h.RemoveRule)
		r.Post("/alert-rules/{id}/test", h.TestRule)

		// Alerts
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/{id}/resolve", h.ResolveAlert)

		// Notification channels
		r.Get("/channels", h.ListChannels)
		r.Post("/channels/test", h.TestChannels)

		// Event history
		r.Get("/events", h.ListEvents)
	})
}
