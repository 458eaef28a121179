package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/conductor/internal/domain/event"
)

// Escalator re-dispatches alerts left unresolved past their rule's window.
type Escalator interface {
	CheckEscalations(ctx context.Context) int
}

// Monitor runs the periodic health sweeps: agents that stopped sending
// heartbeats are taken offline, and stale alerts are escalated.
type Monitor struct {
	registry          *AgentRegistry
	escalator         Escalator
	publish           func(event.Event)
	heartbeatInterval time.Duration
	escalationCheck   time.Duration
}

// NewMonitor creates a monitor. A zero interval disables that sweep.
func NewMonitor(registry *AgentRegistry, escalator Escalator, publish func(event.Event), heartbeatInterval, escalationCheck time.Duration) *Monitor {
	return &Monitor{
		registry:          registry,
		escalator:         escalator,
		publish:           publish,
		heartbeatInterval: heartbeatInterval,
		escalationCheck:   escalationCheck,
	}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	var hbC, escC <-chan time.Time
	if m.heartbeatInterval > 0 && m.registry != nil {
		t := time.NewTicker(m.heartbeatInterval)
		defer t.Stop()
		hbC = t.C
	}
	if m.escalationCheck > 0 && m.escalator != nil {
		t := time.NewTicker(m.escalationCheck)
		defer t.Stop()
		escC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hbC:
			m.CheckHeartbeats()
		case <-escC:
			if n := m.escalator.CheckEscalations(ctx); n > 0 {
				slog.Info("alerts escalated", "count", n)
			}
		}
	}
}

// CheckHeartbeats takes silent agents offline and emits agent_offline for
// each. It returns the affected agent ids.
func (m *Monitor) CheckHeartbeats() []string {
	ids := m.registry.CheckHeartbeats()
	for _, id := range ids {
		slog.Warn("agent missed heartbeats", "agent_id", id)
		if m.publish != nil {
			m.publish(agentOfflineEvent(id, OfflineHeartbeat))
		}
	}
	return ids
}
