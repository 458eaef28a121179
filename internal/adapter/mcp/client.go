package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

const transportName = "mcp"

// AgentBackend executes tasks as tool calls on an agent's MCP server
// (streamable HTTP). The session is opened on first use and reopened
// after a failed call.
type AgentBackend struct {
	agentID  string
	endpoint string
	tools    map[string]string

	mu     sync.Mutex
	client *mcpclient.Client
}

// NewAgentBackend creates an MCP backend for one agent.
func NewAgentBackend(agentID, endpoint string, tools map[string]string) *AgentBackend {
	return &AgentBackend{agentID: agentID, endpoint: endpoint, tools: tools}
}

// Name implements agentbackend.Backend.
func (b *AgentBackend) Name() string { return transportName }

func (b *AgentBackend) session(ctx context.Context) (*mcpclient.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	c, err := mcpclient.NewStreamableHttpClient(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	init := mcplib.InitializeRequest{}
	init.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcplib.Implementation{Name: "conductor", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, init); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	b.client = c
	return c, nil
}

// reset drops c if it is still the current session.
func (b *AgentBackend) reset(c *mcpclient.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == c {
		_ = c.Close()
		b.client = nil
	}
}

// Execute implements agentbackend.Backend. Session and call failures are
// transport faults; a tool result flagged as error is an agent-side failure.
func (b *AgentBackend) Execute(ctx context.Context, req agentbackend.Request) (agentbackend.Result, error) {
	c, err := b.session(ctx)
	if err != nil {
		return agentbackend.Result{}, fmt.Errorf("mcp agent %s: %w: %w", b.agentID, agentbackend.ErrUnreachable, err)
	}

	call := mcplib.CallToolRequest{}
	call.Params.Name = agentbackend.ToolName(b.tools, req.TaskType)
	call.Params.Arguments = req.Parameters

	res, err := c.CallTool(ctx, call)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return agentbackend.Result{}, err
		}
		b.reset(c)
		slog.Warn("mcp call failed", "agent_id", b.agentID, "tool", call.Params.Name, "error", err)
		return agentbackend.Result{}, fmt.Errorf("mcp agent %s: %w: %w", b.agentID, agentbackend.ErrUnreachable, err)
	}
	return toResult(res), nil
}

// Close ends the session.
func (b *AgentBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func toResult(res *mcplib.CallToolResult) agentbackend.Result {
	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return agentbackend.Result{Error: text}
	}

	if out, ok := res.StructuredContent.(map[string]any); ok {
		return agentbackend.Result{Success: true, Output: out}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return agentbackend.Result{Success: true, Output: out}
	}
	return agentbackend.Result{Success: true, Output: map[string]any{"text": text}}
}

func resultText(res *mcplib.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var (
	_ agentbackend.Backend = (*AgentBackend)(nil)
	_ agentbackend.Closer  = (*AgentBackend)(nil)
)
