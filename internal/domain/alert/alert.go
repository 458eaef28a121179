// Package alert defines alert rules, their conditions and the persisted
// alert records produced when a rule fires.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity ranks how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities, higher is more urgent. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// AtLeast reports whether s is as urgent as min. An empty min accepts all.
func (s Severity) AtLeast(min Severity) bool {
	return min == "" || s.Rank() >= min.Rank()
}

var ErrInvalidSeverity = errors.New("severity must be critical, high, medium or low")

// ParseSeverity converts a case-insensitive name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// Alert is the persisted record of a rule firing. Only Resolved and
// ResolvedAt change after it is written.
type Alert struct {
	ID           string         `json:"id"`
	RuleID       string         `json:"rule_id"`
	RuleName     string         `json:"rule_name,omitempty"`
	Severity     Severity       `json:"severity"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	ChannelsSent []string       `json:"channels_sent"`
	Resolved     bool           `json:"resolved"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
}

// Title is the one-line subject used by every channel: "[SEVERITY] message".
func (a *Alert) Title() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Message)
}

// Filter narrows alert history queries. Zero values match everything.
type Filter struct {
	RuleID         string
	Severity       Severity
	UnresolvedOnly bool
	Since          time.Time
	Limit          int
}
