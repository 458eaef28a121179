package mcp

import (
	"context"

	"github.com/goccy/go-json"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers read-only views of agents and rules.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"conductor://agents",
			"Agents",
			mcplib.WithResourceDescription("Registered agents with status and performance score"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgentsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"conductor://alert-rules",
			"Alert Rules",
			mcplib.WithResourceDescription("Configured alert rules"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRulesResource,
	)
}

func (s *Server) handleAgentsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return jsonResource(req.Params.URI, map[string]string{"error": "agent registry not configured"})
	}
	return jsonResource(req.Params.URI, s.deps.Agents.List())
}

func (s *Server) handleRulesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Rules == nil {
		return jsonResource(req.Params.URI, map[string]string{"error": "alert engine not configured"})
	}
	return jsonResource(req.Params.URI, s.deps.Rules.Rules())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
