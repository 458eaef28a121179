// Package agent defines the worker descriptors tracked by the agent registry.
package agent

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Status represents the current availability of an agent.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusOffline   Status = "offline"
)

// Transport names how the engine reaches an agent.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportMCP  Transport = "mcp"
	TransportNATS Transport = "nats"
)

var (
	ErrIDRequired           = errors.New("agent id is required")
	ErrCapabilitiesRequired = errors.New("agent must declare at least one capability")
	ErrEndpointRequired     = errors.New("agent endpoint is required")
)

// Descriptor is a registered worker.
type Descriptor struct {
	ID               string     `json:"id" yaml:"id"`
	Name             string     `json:"name,omitempty" yaml:"name,omitempty"`
	Capabilities     []string   `json:"capabilities" yaml:"capabilities"`
	Transport        Transport  `json:"transport" yaml:"transport"`
	Endpoint         string     `json:"endpoint" yaml:"endpoint"`
	Status           Status     `json:"status" yaml:"-"`
	PerformanceScore float64    `json:"performance_score" yaml:"-"`
	LastHeartbeat    time.Time  `json:"last_heartbeat" yaml:"-"`
	RegisteredAt     time.Time  `json:"registered_at" yaml:"-"`
	InFlight         string     `json:"in_flight,omitempty" yaml:"-"`
	ConsecutiveFault int        `json:"consecutive_faults" yaml:"-"`
	Executions       int        `json:"executions" yaml:"-"`
	Failures         int        `json:"failures" yaml:"-"`
	OfflineReason    string     `json:"offline_reason,omitempty" yaml:"-"`
	LastExecution    *time.Time `json:"last_execution,omitempty" yaml:"-"`
}

// Validate checks the registration fields supplied by the caller.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return ErrIDRequired
	}
	if len(d.Capabilities) == 0 {
		return ErrCapabilitiesRequired
	}
	if d.Endpoint == "" {
		return ErrEndpointRequired
	}
	switch d.Transport {
	case TransportHTTP, TransportMCP, TransportNATS:
	default:
		return fmt.Errorf("unknown transport %q", d.Transport)
	}
	return nil
}

// Can reports whether the agent declares the capability.
func (d *Descriptor) Can(taskType string) bool {
	return slices.Contains(d.Capabilities, taskType)
}
