package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/conductor/internal/domain/alert"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.createWorkflowTool(),
		s.getWorkflowStatusTool(),
		s.listAgentsTool(),
		s.getAlertRulesTool(),
		s.addAlertRuleTool(),
		s.removeAlertRuleTool(),
		s.testAlertTool(),
	)
}

func (s *Server) createWorkflowTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_workflow",
		mcplib.WithDescription("Create a workflow from a template and schedule it"),
		mcplib.WithString("workflow_type",
			mcplib.Required(),
			mcplib.Description("Template name, e.g. pr_with_review"),
		),
		mcplib.WithObject("parameters",
			mcplib.Description("Workflow parameters passed to every task"),
		),
		mcplib.WithNumber("priority",
			mcplib.Description("Lower values are dispatched first"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateWorkflow}
}

func (s *Server) getWorkflowStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_workflow_status",
		mcplib.WithDescription("Get the status, progress and task errors of a workflow"),
		mcplib.WithString("workflow_id",
			mcplib.Required(),
			mcplib.Description("The workflow ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetWorkflowStatus}
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List registered agents with status and performance score"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgents}
}

func (s *Server) getAlertRulesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_alert_rules",
		mcplib.WithDescription("List all alert rules"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetAlertRules}
}

func (s *Server) addAlertRuleTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_alert_rule",
		mcplib.WithDescription("Add or replace an alert rule"),
		mcplib.WithObject("rule",
			mcplib.Required(),
			mcplib.Description("Rule with id, name, condition, severity and channels"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAddAlertRule}
}

func (s *Server) removeAlertRuleTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("remove_alert_rule",
		mcplib.WithDescription("Remove an alert rule by ID"),
		mcplib.WithString("rule_id", mcplib.Required()),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRemoveAlertRule}
}

func (s *Server) testAlertTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("test_alert",
		mcplib.WithDescription("Fire a synthetic alert for a rule, bypassing cooldown"),
		mcplib.WithString("rule_id", mcplib.Required()),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTestAlert}
}

func (s *Server) handleCreateWorkflow(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow service not configured"), nil
	}
	workflowType, err := req.RequireString("workflow_type")
	if err != nil {
		return mcplib.NewToolResultError("workflow_type is required"), nil
	}
	args := req.GetArguments()
	params, _ := args["parameters"].(map[string]any)
	priority := req.GetInt("priority", 0)

	snap, err := s.deps.Workflows.Create(ctx, workflowType, params, priority)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to create workflow", err), nil
	}
	return toolResultJSON(snap)
}

func (s *Server) handleGetWorkflowStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workflows == nil {
		return mcplib.NewToolResultError("workflow service not configured"), nil
	}
	id, err := req.RequireString("workflow_id")
	if err != nil || id == "" {
		return mcplib.NewToolResultError("workflow_id is required"), nil
	}
	snap, err := s.deps.Workflows.Status(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get workflow %s", id), err), nil
	}
	return toolResultJSON(snap)
}

func (s *Server) handleListAgents(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent registry not configured"), nil
	}
	return toolResultJSON(s.deps.Agents.List())
}

func (s *Server) handleGetAlertRules(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Rules == nil {
		return mcplib.NewToolResultError("alert engine not configured"), nil
	}
	return toolResultJSON(s.deps.Rules.Rules())
}

func (s *Server) handleAddAlertRule(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Rules == nil {
		return mcplib.NewToolResultError("alert engine not configured"), nil
	}
	raw, ok := req.GetArguments()["rule"]
	if !ok {
		return mcplib.NewToolResultError("rule is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid rule", err), nil
	}
	var rr alert.CreateRuleRequest
	if err := json.Unmarshal(data, &rr); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid rule", err), nil
	}
	rule, err := s.deps.Rules.AddRule(ctx, rr)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to add rule", err), nil
	}
	return toolResultJSON(rule)
}

func (s *Server) handleRemoveAlertRule(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Rules == nil {
		return mcplib.NewToolResultError("alert engine not configured"), nil
	}
	id, err := req.RequireString("rule_id")
	if err != nil || id == "" {
		return mcplib.NewToolResultError("rule_id is required"), nil
	}
	if err := s.deps.Rules.RemoveRule(ctx, id); err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to remove rule %s", id), err), nil
	}
	return toolResultJSON(map[string]string{"removed": id})
}

func (s *Server) handleTestAlert(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Rules == nil {
		return mcplib.NewToolResultError("alert engine not configured"), nil
	}
	id, err := req.RequireString("rule_id")
	if err != nil || id == "" {
		return mcplib.NewToolResultError("rule_id is required"), nil
	}
	a, err := s.deps.Rules.TestAlert(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to test rule %s", id), err), nil
	}
	return toolResultJSON(a)
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
