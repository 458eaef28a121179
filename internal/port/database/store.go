// Package database defines the alert store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/conductor/internal/domain/alert"
)

// Store persists alert rules and fired alerts. Implementations must be
// safe for concurrent use.
type Store interface {
	// Rules
	ListRules(ctx context.Context) ([]alert.Rule, error)
	GetRule(ctx context.Context, id string) (*alert.Rule, error)
	SaveRule(ctx context.Context, r *alert.Rule) error
	DeleteRule(ctx context.Context, id string) error
	MarkTriggered(ctx context.Context, ruleID string, at time.Time) error

	// Alerts
	SaveAlert(ctx context.Context, a *alert.Alert) error
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)
	ListAlerts(ctx context.Context, f alert.Filter) ([]alert.Alert, error)
	ResolveAlert(ctx context.Context, id string, at time.Time) error
	CountUnresolved(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
