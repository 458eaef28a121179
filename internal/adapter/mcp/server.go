// Package mcp exposes the engine's query API as Model Context Protocol
// tools and implements the MCP agent transport.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/domain/workflow"
)

// WorkflowService creates workflows and reports their status.
type WorkflowService interface {
	Create(ctx context.Context, workflowType string, params map[string]any, priority int) (workflow.Snapshot, error)
	Status(ctx context.Context, id string) (workflow.Snapshot, error)
}

// AgentLister lists registered agents.
type AgentLister interface {
	List() []agent.Descriptor
}

// RuleManager manages alert rules.
type RuleManager interface {
	Rules() []alert.Rule
	AddRule(ctx context.Context, req alert.CreateRuleRequest) (alert.Rule, error)
	RemoveRule(ctx context.Context, id string) error
	TestAlert(ctx context.Context, id string) (*alert.Alert, error)
}

// ServerConfig holds MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the services backing the tools. Nil dependencies make
// their tools answer with an error result.
type ServerDeps struct {
	Workflows WorkflowService
	Agents    AgentLister
	Rules     RuleManager
}

// Server wraps an MCP server exposing the query API.
type Server struct {
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP handler, mounted by the HTTP API.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}
