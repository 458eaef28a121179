package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
	"github.com/Strob0t/conductor/internal/port/messagequeue"
)

// AgentBackend executes tasks on an agent listening on agents.call.{id}
// using core NATS request/reply.
type AgentBackend struct {
	nc      *nats.Conn
	agentID string
	ttl     time.Duration
}

// NewAgentBackend creates a backend for one agent. ttl bounds a request
// whose context carries no deadline.
func NewAgentBackend(nc *nats.Conn, agentID string, ttl time.Duration) *AgentBackend {
	return &AgentBackend{nc: nc, agentID: agentID, ttl: ttl}
}

// Name implements agentbackend.Backend.
func (b *AgentBackend) Name() string { return "nats" }

// Execute implements agentbackend.Backend.
func (b *AgentBackend) Execute(ctx context.Context, req agentbackend.Request) (agentbackend.Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return agentbackend.Result{}, fmt.Errorf("nats agent %s: encode request: %w", b.agentID, err)
	}

	if _, ok := ctx.Deadline(); !ok && b.ttl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.ttl)
		defer cancel()
	}

	msg := nats.NewMsg(messagequeue.AgentSubject(b.agentID))
	msg.Data = data
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}

	reply, err := b.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return agentbackend.Result{}, err
		}
		return agentbackend.Result{}, fmt.Errorf("nats agent %s: %w: %w", b.agentID, agentbackend.ErrUnreachable, err)
	}

	var res agentbackend.Result
	if err := json.Unmarshal(reply.Data, &res); err != nil {
		return agentbackend.Result{}, fmt.Errorf("nats agent %s: decode reply: %w", b.agentID, err)
	}
	return res, nil
}

// AgentHandler runs one task on the agent side of the transport.
type AgentHandler func(ctx context.Context, req agentbackend.Request) agentbackend.Result

// ServeAgent answers calls addressed to agentID with fn until the returned
// subscription is drained or unsubscribed. Workers written in Go and the
// transport tests use it.
func ServeAgent(nc *nats.Conn, agentID string, fn AgentHandler) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(messagequeue.AgentSubject(agentID), func(m *nats.Msg) {
		ctx := context.Background()
		if id := m.Header.Get(headerRequestID); id != "" {
			ctx = logger.WithRequestID(ctx, id)
		}

		var req agentbackend.Request
		res := agentbackend.Result{}
		if err := json.Unmarshal(m.Data, &req); err != nil {
			res.Error = "malformed request: " + err.Error()
		} else {
			if !req.Deadline.IsZero() {
				var cancel context.CancelFunc
				ctx, cancel = context.WithDeadline(ctx, req.Deadline)
				defer cancel()
			}
			res = fn(ctx, req)
		}

		data, err := json.Marshal(res)
		if err != nil {
			data = []byte(`{"success":false,"error":"unencodable result"}`)
		}
		_ = m.Respond(data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats serve agent %s: %w", agentID, err)
	}
	return sub, nil
}

var _ agentbackend.Backend = (*AgentBackend)(nil)
