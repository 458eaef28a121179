// Package httpagent implements the HTTP tool bridge agent transport: a task
// is executed by POSTing {"tool", "arguments"} to {endpoint}/call.
package httpagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

const (
	transportName = "http"

	maxResponseBytes = 4 << 20
)

// callRequest is the bridge request body.
type callRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// callResponse accepts both the structured result shape and a bare JSON
// object, which is taken as the output of a successful call.
type callResponse struct {
	Success *bool          `json:"success"`
	Output  map[string]any `json:"output"`
	Error   string         `json:"error"`
}

// Backend calls one agent's tool bridge.
type Backend struct {
	agentID    string
	endpoint   string
	tools      map[string]string
	httpClient *http.Client
}

// NewBackend creates a bridge backend. tools maps task types to tool
// names; unmapped task types are sent under their own name.
func NewBackend(agentID, endpoint string, tools map[string]string) *Backend {
	return &Backend{
		agentID:  agentID,
		endpoint: strings.TrimRight(endpoint, "/"),
		tools:    tools,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name implements agentbackend.Backend.
func (b *Backend) Name() string { return transportName }

// Tool returns the bridge tool name for a task type.
func (b *Backend) Tool(taskType string) string {
	return agentbackend.ToolName(b.tools, taskType)
}

// Execute implements agentbackend.Backend. Connection failures and 5xx
// answers are transport faults; 4xx answers are agent-side failures.
func (b *Backend) Execute(ctx context.Context, req agentbackend.Request) (agentbackend.Result, error) {
	body, err := json.Marshal(callRequest{Tool: b.Tool(req.TaskType), Arguments: req.Parameters})
	if err != nil {
		return agentbackend.Result{}, fmt.Errorf("http agent %s: marshal: %w", b.agentID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/call", bytes.NewReader(body))
	if err != nil {
		return agentbackend.Result{}, fmt.Errorf("http agent %s: create request: %w", b.agentID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Execution-ID", req.ExecutionID)
	if id := logger.RequestID(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return agentbackend.Result{}, err
		}
		return agentbackend.Result{}, fmt.Errorf("http agent %s: %w: %w", b.agentID, agentbackend.ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return agentbackend.Result{}, fmt.Errorf("http agent %s: %w: %w", b.agentID, agentbackend.ErrUnreachable, err)
		}
		return agentbackend.Result{}, fmt.Errorf("http agent %s: read body: %w", b.agentID, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return agentbackend.Result{}, fmt.Errorf("http agent %s: %w: status %d: %s",
			b.agentID, agentbackend.ErrUnreachable, resp.StatusCode, truncate(data))
	case resp.StatusCode >= 400:
		return agentbackend.Result{Error: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(data))}, nil
	}

	return decode(data)
}

func decode(data []byte) (agentbackend.Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return agentbackend.Result{Success: true, Output: map[string]any{}}, nil
	}
	var cr callResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return agentbackend.Result{}, fmt.Errorf("decode bridge response: %w", err)
	}
	if cr.Success != nil {
		return agentbackend.Result{Success: *cr.Success, Output: cr.Output, Error: cr.Error}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return agentbackend.Result{}, fmt.Errorf("decode bridge response: %w", err)
	}
	if cr.Error != "" {
		return agentbackend.Result{Error: cr.Error}, nil
	}
	return agentbackend.Result{Success: true, Output: raw}, nil
}

func truncate(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

var _ agentbackend.Backend = (*Backend)(nil)
