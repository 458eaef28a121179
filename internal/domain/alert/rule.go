package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/conductor/internal/domain/event"
)

var (
	ErrRuleIDRequired     = errors.New("rule id is required")
	ErrRuleNameRequired   = errors.New("rule name is required")
	ErrNoChannels         = errors.New("rule must declare at least one channel")
	ErrNoEvents           = errors.New("rule condition must name at least one event type")
	ErrNegativeCooldown   = errors.New("cooldown_minutes must be >= 0")
	ErrNegativeEscalation = errors.New("escalation_minutes must be >= 0")
)

// Defaults applied to rules that leave the field unset.
const (
	DefaultCooldownMinutes   = 5
	DefaultEscalationMinutes = 30
)

// Rule maps a condition over events to a set of notification channels,
// rate limited by a cooldown.
type Rule struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Condition         Condition  `json:"condition"`
	Severity          Severity   `json:"severity"`
	Channels          []string   `json:"channels"`
	CooldownMinutes   int        `json:"cooldown_minutes"`
	EscalationMinutes int        `json:"escalation_minutes"`
	Enabled           bool       `json:"enabled"`
	NonSuppressible   bool       `json:"non_suppressible"`
	LastTriggered     *time.Time `json:"last_triggered,omitempty"`
}

// Validate checks the rule for structural correctness.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return ErrRuleIDRequired
	}
	if r.Name == "" {
		return ErrRuleNameRequired
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: %w", r.ID, ErrInvalidSeverity)
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNoChannels)
	}
	if len(r.Condition.Events) == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNoEvents)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNegativeCooldown)
	}
	if r.EscalationMinutes < 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNegativeEscalation)
	}
	return nil
}

// Cooldown returns the minimum interval between notifications.
func (r *Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Escalation returns how long an alert may stay unresolved before it is
// escalated. Zero disables escalation.
func (r *Rule) Escalation() time.Duration {
	return time.Duration(r.EscalationMinutes) * time.Minute
}

// InCooldown reports whether the rule fired less than its cooldown ago.
// Non-suppressible rules are never in cooldown.
func (r *Rule) InCooldown(now time.Time) bool {
	if r.NonSuppressible || r.LastTriggered == nil || r.CooldownMinutes == 0 {
		return false
	}
	return now.Sub(*r.LastTriggered) < r.Cooldown()
}

// Matches reports whether an enabled rule's condition holds for ev.
func (r *Rule) Matches(ev event.Event) bool {
	return r.Enabled && r.Condition.Match(ev)
}

// CreateRuleRequest is the external shape of a rule definition. Unset
// optional fields take the engine defaults.
type CreateRuleRequest struct {
	ID                string    `json:"id" yaml:"id" toml:"id"`
	Name              string    `json:"name" yaml:"name" toml:"name"`
	Description       string    `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Condition         Condition `json:"condition" yaml:"condition" toml:"condition"`
	Severity          string    `json:"severity" yaml:"severity" toml:"severity"`
	Channels          []string  `json:"channels" yaml:"channels" toml:"channels"`
	CooldownMinutes   *int      `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes,omitempty" toml:"cooldown_minutes"`
	EscalationMinutes *int      `json:"escalation_minutes,omitempty" yaml:"escalation_minutes,omitempty" toml:"escalation_minutes"`
	Enabled           *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled"`
	NonSuppressible   bool      `json:"non_suppressible,omitempty" yaml:"non_suppressible,omitempty" toml:"non_suppressible"`
}

// Rule converts the request into a validated Rule.
func (req *CreateRuleRequest) Rule() (Rule, error) {
	sev, err := ParseSeverity(req.Severity)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", req.ID, err)
	}
	r := Rule{
		ID:                req.ID,
		Name:              req.Name,
		Description:       req.Description,
		Condition:         req.Condition,
		Severity:          sev,
		Channels:          append([]string(nil), req.Channels...),
		CooldownMinutes:   DefaultCooldownMinutes,
		EscalationMinutes: DefaultEscalationMinutes,
		Enabled:           true,
		NonSuppressible:   req.NonSuppressible,
	}
	if req.CooldownMinutes != nil {
		r.CooldownMinutes = *req.CooldownMinutes
	}
	if req.EscalationMinutes != nil {
		r.EscalationMinutes = *req.EscalationMinutes
	}
	if req.Enabled != nil {
		r.Enabled = *req.Enabled
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Request returns the external shape of r, e.g. for submitting a rule
// loaded from a file to a remote engine.
func (r *Rule) Request() CreateRuleRequest {
	cooldown, escalation, enabled := r.CooldownMinutes, r.EscalationMinutes, r.Enabled
	return CreateRuleRequest{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Condition:         r.Condition,
		Severity:          string(r.Severity),
		Channels:          append([]string(nil), r.Channels...),
		CooldownMinutes:   &cooldown,
		EscalationMinutes: &escalation,
		Enabled:           &enabled,
		NonSuppressible:   r.NonSuppressible,
	}
}
