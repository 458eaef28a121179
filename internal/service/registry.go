package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/agent"
)

// Offline reasons recorded on the descriptor.
const (
	OfflineHeartbeat = "missed heartbeats"
	OfflineFaults    = "consecutive execution faults"
	OfflineManual    = "marked offline"
)

// AgentRegistry tracks workers, their capabilities and health. MarkBusy,
// MarkAvailable and MarkOffline are the only status mutators; everything
// else goes through them.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Descriptor
	cfg    config.Registry
	known  map[string]bool
	now    func() time.Time
}

// NewAgentRegistry creates an empty registry. known lists capabilities that
// are accepted for workflow validation even before an agent declares them.
func NewAgentRegistry(cfg config.Registry) *AgentRegistry {
	known := make(map[string]bool, len(cfg.KnownCapabilities))
	for _, c := range cfg.KnownCapabilities {
		known[c] = true
	}
	return &AgentRegistry{
		agents: make(map[string]*agent.Descriptor),
		cfg:    cfg,
		known:  known,
		now:    time.Now,
	}
}

// Register adds an agent or refreshes an existing registration. A
// re-registration keeps the performance score and counts as a heartbeat.
// It returns true when the agent is new.
func (r *AgentRegistry) Register(d agent.Descriptor) (agent.Descriptor, bool, error) {
	if err := d.Validate(); err != nil {
		return agent.Descriptor{}, false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if cur, ok := r.agents[d.ID]; ok {
		cur.Name = d.Name
		cur.Capabilities = slices.Clone(d.Capabilities)
		cur.Transport = d.Transport
		cur.Endpoint = d.Endpoint
		cur.LastHeartbeat = now
		cur.ConsecutiveFault = 0
		if cur.Status == agent.StatusOffline && cur.InFlight == "" {
			r.markAvailable(cur)
		}
		slog.Info("agent re-registered", "agent_id", d.ID, "capabilities", d.Capabilities)
		return cloneAgent(cur), false, nil
	}

	nd := &agent.Descriptor{
		ID:               d.ID,
		Name:             d.Name,
		Capabilities:     slices.Clone(d.Capabilities),
		Transport:        d.Transport,
		Endpoint:         d.Endpoint,
		Status:           agent.StatusAvailable,
		PerformanceScore: r.cfg.InitialScore,
		LastHeartbeat:    now,
		RegisteredAt:     now,
	}
	r.agents[d.ID] = nd
	slog.Info("agent registered", "agent_id", d.ID, "transport", d.Transport, "capabilities", d.Capabilities)
	return cloneAgent(nd), true, nil
}

// Deregister removes an agent. An agent with an execution in flight is
// refused with domain.ErrConflict.
func (r *AgentRegistry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if d.InFlight != "" {
		return fmt.Errorf("agent %s has an execution in flight: %w", id, domain.ErrConflict)
	}
	delete(r.agents, id)
	slog.Info("agent deregistered", "agent_id", id)
	return nil
}

// Get returns a copy of the agent's descriptor.
func (r *AgentRegistry) Get(id string) (agent.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.agents[id]
	if !ok {
		return agent.Descriptor{}, false
	}
	return cloneAgent(d), true
}

// List returns copies of all agents ordered by id.
func (r *AgentRegistry) List() []agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Descriptor, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, cloneAgent(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of agents per status.
func (r *AgentRegistry) Counts() map[agent.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[agent.Status]int{}
	for _, d := range r.agents {
		counts[d.Status]++
	}
	return counts
}

// Known reports whether taskType is a configured capability or declared by
// any registered agent, online or not.
func (r *AgentRegistry) Known(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.known[taskType] {
		return true
	}
	for _, d := range r.agents {
		if d.Can(taskType) {
			return true
		}
	}
	return false
}

// Select returns the best available agent for taskType: highest
// performance score, ties broken by the oldest heartbeat.
func (r *AgentRegistry) Select(taskType string) (agent.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.selectLocked(taskType)
	if best == nil {
		return agent.Descriptor{}, false
	}
	return cloneAgent(best), true
}

func (r *AgentRegistry) selectLocked(taskType string) *agent.Descriptor {
	var best *agent.Descriptor
	for _, d := range r.agents {
		if d.Status != agent.StatusAvailable || !d.Can(taskType) {
			continue
		}
		switch {
		case best == nil:
			best = d
		case d.PerformanceScore > best.PerformanceScore:
			best = d
		case d.PerformanceScore == best.PerformanceScore && d.LastHeartbeat.Before(best.LastHeartbeat):
			best = d
		case d.PerformanceScore == best.PerformanceScore && d.LastHeartbeat.Equal(best.LastHeartbeat) && d.ID < best.ID:
			best = d
		}
	}
	return best
}

// Acquire selects an agent for taskType and marks it busy with executionID
// in one step, so no other dispatch can pick the same agent in between.
func (r *AgentRegistry) Acquire(taskType, executionID string) (agent.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.selectLocked(taskType)
	if d == nil {
		return agent.Descriptor{}, false
	}
	r.markBusy(d, executionID)
	return cloneAgent(d), true
}

// MarkBusy assigns executionID to an available agent.
func (r *AgentRegistry) MarkBusy(id, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if d.Status != agent.StatusAvailable {
		return fmt.Errorf("agent %s is %s: %w", id, d.Status, domain.ErrConflict)
	}
	r.markBusy(d, executionID)
	return nil
}

func (r *AgentRegistry) markBusy(d *agent.Descriptor, executionID string) {
	d.Status = agent.StatusBusy
	d.InFlight = executionID
}

// MarkAvailable returns an agent to the pool. Refused while an execution is
// still in flight.
func (r *AgentRegistry) MarkAvailable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	if d.InFlight != "" {
		return fmt.Errorf("agent %s has execution %s in flight: %w", id, d.InFlight, domain.ErrConflict)
	}
	r.markAvailable(d)
	return nil
}

func (r *AgentRegistry) markAvailable(d *agent.Descriptor) {
	d.Status = agent.StatusAvailable
	d.OfflineReason = ""
	d.ConsecutiveFault = 0
}

// MarkOffline takes an agent out of selection. An in-flight execution keeps
// its id so the late result can still be matched. It returns true when the
// status changed.
func (r *AgentRegistry) MarkOffline(id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return false, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return r.markOffline(d, reason), nil
}

func (r *AgentRegistry) markOffline(d *agent.Descriptor, reason string) bool {
	if d.Status == agent.StatusOffline {
		return false
	}
	d.Status = agent.StatusOffline
	d.OfflineReason = reason
	slog.Warn("agent offline", "agent_id", d.ID, "reason", reason)
	return true
}

// Release ends the execution executionID on agent id. Responses for any
// other execution id are stale and rejected with false. An agent that went
// offline meanwhile stays offline.
func (r *AgentRegistry) Release(id, executionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok || d.InFlight == "" || d.InFlight != executionID {
		return false
	}
	d.InFlight = ""
	if d.Status == agent.StatusBusy {
		d.Status = agent.StatusAvailable
	}
	return true
}

// RecordOutcome folds a handled execution result into the agent's score and
// returns the new score. A handled failure is not a transport fault.
func (r *AgentRegistry) RecordOutcome(id string, success bool, latency time.Duration) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return 0
	}
	outcome := agent.Outcome(success, latency, r.cfg.ExpectedLatency)
	d.PerformanceScore = agent.UpdateScore(d.PerformanceScore, outcome, r.cfg.Alpha)
	d.Executions++
	if !success {
		d.Failures++
	}
	d.ConsecutiveFault = 0
	ts := r.now().UTC()
	d.LastExecution = &ts
	return d.PerformanceScore
}

// RecordFault counts a transport error or timeout. After FaultThreshold
// consecutive faults the agent goes offline; the return value reports that
// transition.
func (r *AgentRegistry) RecordFault(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return false
	}
	d.PerformanceScore = agent.UpdateScore(d.PerformanceScore, 0, r.cfg.Alpha)
	d.Executions++
	d.Failures++
	d.ConsecutiveFault++
	ts := r.now().UTC()
	d.LastExecution = &ts
	if r.cfg.FaultThreshold > 0 && d.ConsecutiveFault >= r.cfg.FaultThreshold {
		return r.markOffline(d, OfflineFaults)
	}
	return false
}

// Heartbeat records liveness. An agent taken offline for missed heartbeats
// returns to the pool once its in-flight execution, if any, is released.
func (r *AgentRegistry) Heartbeat(id string) (agent.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.agents[id]
	if !ok {
		return agent.Descriptor{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	d.LastHeartbeat = r.now().UTC()
	if d.Status == agent.StatusOffline && d.OfflineReason == OfflineHeartbeat && d.InFlight == "" {
		r.markAvailable(d)
		slog.Info("agent back online", "agent_id", id)
	}
	return cloneAgent(d), nil
}

// CheckHeartbeats marks agents offline whose last heartbeat is older than
// MaxMissed heartbeat intervals and returns their ids.
func (r *AgentRegistry) CheckHeartbeats() []string {
	if r.cfg.HeartbeatInterval <= 0 || r.cfg.MaxMissed <= 0 {
		return nil
	}
	limit := time.Duration(r.cfg.MaxMissed) * r.cfg.HeartbeatInterval

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var offline []string
	for _, d := range r.agents {
		if now.Sub(d.LastHeartbeat) > limit && r.markOffline(d, OfflineHeartbeat) {
			offline = append(offline, d.ID)
		}
	}
	sort.Strings(offline)
	return offline
}

func cloneAgent(d *agent.Descriptor) agent.Descriptor {
	c := *d
	c.Capabilities = slices.Clone(d.Capabilities)
	if d.LastExecution != nil {
		ts := *d.LastExecution
		c.LastExecution = &ts
	}
	return c
}
