// Package notifier defines the notification channel port (interface) and capabilities.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	Target   string         `json:"target,omitempty"` // address, phone number or webhook override
	Severity string         `json:"severity"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	MaxLength      int  `json:"max_length,omitempty"` // 0 means unlimited
}

// Notifier is the port interface for one notification channel.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack", "email").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification. A nil error means the channel accepted it.
	Send(ctx context.Context, notification Notification) error
}
