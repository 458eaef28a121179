package service

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
)

// BackendFunc builds a backend for transports that need live dependencies
// (such as a message queue connection) the factory registry cannot carry.
type BackendFunc func(d agent.Descriptor) (agentbackend.Backend, error)

type cachedBackend struct {
	transport agent.Transport
	endpoint  string
	backend   agentbackend.Backend
}

// AgentBackends resolves and caches one backend per agent. A cached backend
// is rebuilt when the agent re-registers with a different transport or
// endpoint.
type AgentBackends struct {
	mu        sync.Mutex
	cache     map[string]cachedBackend
	settings  map[string]string
	overrides map[agent.Transport]BackendFunc
}

// NewAgentBackends creates a resolver. settings are passed to every
// factory in addition to agent_id and endpoint.
func NewAgentBackends(settings map[string]string) *AgentBackends {
	return &AgentBackends{
		cache:     make(map[string]cachedBackend),
		settings:  maps.Clone(settings),
		overrides: make(map[agent.Transport]BackendFunc),
	}
}

// Use routes a transport through fn instead of the factory registry.
func (b *AgentBackends) Use(t agent.Transport, fn BackendFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[t] = fn
}

// Backend implements BackendResolver.
func (b *AgentBackends) Backend(d agent.Descriptor) (agentbackend.Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.cache[d.ID]; ok && c.transport == d.Transport && c.endpoint == d.Endpoint {
		return c.backend, nil
	}
	if old, ok := b.cache[d.ID]; ok {
		closeBackend(old.backend)
		delete(b.cache, d.ID)
	}

	var (
		backend agentbackend.Backend
		err     error
	)
	if fn, ok := b.overrides[d.Transport]; ok {
		backend, err = fn(d)
	} else {
		cfg := maps.Clone(b.settings)
		if cfg == nil {
			cfg = make(map[string]string, 2)
		}
		cfg["agent_id"] = d.ID
		cfg["endpoint"] = d.Endpoint
		backend, err = agentbackend.New(string(d.Transport), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("backend for agent %s (%s): %w", d.ID, d.Transport, err)
	}
	b.cache[d.ID] = cachedBackend{transport: d.Transport, endpoint: d.Endpoint, backend: backend}
	slog.Debug("agent backend created", "agent_id", d.ID, "transport", d.Transport, "endpoint", d.Endpoint)
	return backend, nil
}

// Forget drops the cached backend of a deregistered agent.
func (b *AgentBackends) Forget(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cache[agentID]; ok {
		closeBackend(c.backend)
		delete(b.cache, agentID)
	}
}

// Close releases every cached backend.
func (b *AgentBackends) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.cache {
		closeBackend(c.backend)
		delete(b.cache, id)
	}
}

func closeBackend(backend agentbackend.Backend) {
	if c, ok := backend.(agentbackend.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close agent backend", "backend", backend.Name(), "error", err)
		}
	}
}
