package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	cfotel "github.com/Strob0t/conductor/internal/adapter/otel"
	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/database"
)

const escalatedPrefix = "[ESCALATED] "

// AlertDispatcher delivers an alert to channels and reports which accepted it.
type AlertDispatcher interface {
	Send(ctx context.Context, a *alert.Alert, channels []string) []string
}

// AlertOptions tune the AlertEngine.
type AlertOptions struct {
	// DedupeSize bounds the set of recently seen event ids; redelivered
	// events are ignored. Zero disables dedupe.
	DedupeSize int
	// EscalationChannels receive escalations. Empty means the rule's channels.
	EscalationChannels []string
	Metrics            *cfotel.Metrics
	Now                func() time.Time
}

type ruleState struct {
	mu   sync.Mutex // serialises cooldown check, dispatch and last_triggered update
	rule alert.Rule
}

// AlertEngine evaluates rules against events, enforces cooldowns, persists
// alerts and hands them to the dispatcher.
type AlertEngine struct {
	store      database.Store
	dispatcher AlertDispatcher
	opts       AlertOptions
	now        func() time.Time

	mu    sync.RWMutex
	rules map[string]*ruleState

	seen *lru.Cache[string, struct{}]

	escMu     sync.Mutex
	escalated map[string]bool

	fired      atomic.Int64
	suppressed atomic.Int64
	lastError  atomic.Pointer[string]
}

// NewAlertEngine creates an engine with no rules; call LoadRules to populate it.
func NewAlertEngine(store database.Store, dispatcher AlertDispatcher, opts AlertOptions) (*AlertEngine, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	e := &AlertEngine{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		now:        now,
		rules:      make(map[string]*ruleState),
		escalated:  make(map[string]bool),
	}
	if opts.DedupeSize > 0 {
		seen, err := lru.New[string, struct{}](opts.DedupeSize)
		if err != nil {
			return nil, fmt.Errorf("alert dedupe cache: %w", err)
		}
		e.seen = seen
	}
	return e, nil
}

// LoadRules reads the rules from the store. An empty store is seeded with
// defaults. The engine_error rule is always present.
func (e *AlertEngine) LoadRules(ctx context.Context, defaults []alert.Rule) error {
	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		for i := range defaults {
			if err := e.store.SaveRule(ctx, &defaults[i]); err != nil {
				return fmt.Errorf("seed rule %s: %w", defaults[i].ID, err)
			}
		}
		rules = defaults
		slog.Info("alert rules seeded", "count", len(defaults))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string]*ruleState, len(rules)+1)
	for _, r := range rules {
		e.rules[r.ID] = &ruleState{rule: r}
	}
	if _, ok := e.rules[alert.RuleEngineError]; !ok {
		r := alert.EngineErrorRule()
		e.rules[r.ID] = &ruleState{rule: r}
		if err := e.store.SaveRule(ctx, &r); err != nil {
			slog.Warn("persist engine_error rule failed", "error", err)
		}
	}
	slog.Info("alert rules loaded", "count", len(e.rules))
	return nil
}

// Rules returns a copy of every rule ordered by id.
func (e *AlertEngine) Rules() []alert.Rule {
	e.mu.RLock()
	states := make([]*ruleState, 0, len(e.rules))
	for _, rs := range e.rules {
		states = append(states, rs)
	}
	e.mu.RUnlock()

	out := make([]alert.Rule, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		out = append(out, rs.rule)
		rs.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rule returns one rule by id.
func (e *AlertEngine) Rule(id string) (alert.Rule, error) {
	rs, ok := e.ruleState(id)
	if !ok {
		return alert.Rule{}, fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.rule, nil
}

func (e *AlertEngine) ruleState(id string) (*ruleState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rs, ok := e.rules[id]
	return rs, ok
}

// AddRule validates and adds a new rule. Existing ids are refused with
// domain.ErrConflict.
func (e *AlertEngine) AddRule(ctx context.Context, req alert.CreateRuleRequest) (alert.Rule, error) {
	r, err := req.Rule()
	if err != nil {
		return alert.Rule{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if _, exists := e.ruleState(r.ID); exists {
		return alert.Rule{}, fmt.Errorf("rule %s: %w", r.ID, domain.ErrConflict)
	}
	if err := e.store.SaveRule(ctx, &r); err != nil {
		return alert.Rule{}, fmt.Errorf("save rule: %w", err)
	}

	e.mu.Lock()
	e.rules[r.ID] = &ruleState{rule: r}
	e.mu.Unlock()
	slog.Info("alert rule added", "rule_id", r.ID, "severity", r.Severity, "channels", r.Channels)
	return r, nil
}

// PutRules inserts or replaces rules, keeping the last-triggered time of
// rules that already exist. Used for rule files.
func (e *AlertEngine) PutRules(ctx context.Context, rules []alert.Rule) error {
	for i := range rules {
		r := rules[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		if rs, ok := e.ruleState(r.ID); ok {
			rs.mu.Lock()
			r.LastTriggered = rs.rule.LastTriggered
			rs.mu.Unlock()
		}
		if err := e.store.SaveRule(ctx, &r); err != nil {
			return fmt.Errorf("save rule %s: %w", r.ID, err)
		}
		e.mu.Lock()
		if rs, ok := e.rules[r.ID]; ok {
			rs.mu.Lock()
			rs.rule = r
			rs.mu.Unlock()
		} else {
			e.rules[r.ID] = &ruleState{rule: r}
		}
		e.mu.Unlock()
	}
	slog.Info("alert rules updated", "count", len(rules))
	return nil
}

// RemoveRule deletes a rule. The engine_error rule cannot be removed.
func (e *AlertEngine) RemoveRule(ctx context.Context, id string) error {
	if id == alert.RuleEngineError {
		return fmt.Errorf("%w: rule %s is required by the engine", domain.ErrValidation, id)
	}
	if _, ok := e.ruleState(id); !ok {
		return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
	}
	if err := e.store.DeleteRule(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete rule: %w", err)
	}
	e.mu.Lock()
	delete(e.rules, id)
	e.mu.Unlock()
	slog.Info("alert rule removed", "rule_id", id)
	return nil
}

// HandleEvent is the event bus subscriber: it drops redelivered events and
// evaluates the rest.
func (e *AlertEngine) HandleEvent(ctx context.Context, ev event.Event) {
	if e.seen != nil && ev.ID != "" {
		if seen, _ := e.seen.ContainsOrAdd(ev.ID, struct{}{}); seen {
			slog.Debug("duplicate event ignored", "event_id", ev.ID, "type", ev.Type)
			return
		}
	}
	e.Evaluate(ctx, ev)
}

// Evaluate runs every enabled rule against ev and returns the alerts fired.
// A rule in cooldown is counted as suppressed and its last_triggered is left
// unchanged.
func (e *AlertEngine) Evaluate(ctx context.Context, ev event.Event) []*alert.Alert {
	e.mu.RLock()
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	states := make([]*ruleState, len(ids))
	for i, id := range ids {
		states[i] = e.rules[id]
	}
	e.mu.RUnlock()

	var fired []*alert.Alert
	for _, rs := range states {
		if a := e.fire(ctx, rs, ev); a != nil {
			fired = append(fired, a)
		}
	}
	return fired
}

func (e *AlertEngine) fire(ctx context.Context, rs *ruleState, ev event.Event) *alert.Alert {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.rule.Matches(ev) {
		return nil
	}
	now := e.now().UTC()
	if rs.rule.InCooldown(now) {
		e.suppressed.Add(1)
		e.opts.Metrics.AlertSuppressed(ctx, rs.rule.ID)
		slog.Debug("alert suppressed by cooldown", "rule_id", rs.rule.ID, "event_type", ev.Type, "last_triggered", rs.rule.LastTriggered)
		return nil
	}

	ctx, span := cfotel.StartAlertSpan(ctx, rs.rule.ID, string(ev.Type))
	defer span.End()

	ts := now
	rs.rule.LastTriggered = &ts
	a := &alert.Alert{
		ID:        uuid.NewString(),
		RuleID:    rs.rule.ID,
		RuleName:  rs.rule.Name,
		Severity:  rs.rule.Severity,
		Message:   alertMessage(rs.rule, ev),
		Data:      alertData(ev),
		Timestamp: ts,
	}
	a.ChannelsSent = e.dispatcher.Send(ctx, a, rs.rule.Channels)
	e.fired.Add(1)
	e.opts.Metrics.AlertFired(ctx, a.RuleID, string(a.Severity))
	slog.Info("alert fired", "alert_id", a.ID, "rule_id", a.RuleID, "severity", a.Severity, "channels_sent", a.ChannelsSent)

	err := e.store.SaveAlert(ctx, a)
	if err == nil {
		err = e.store.MarkTriggered(ctx, rs.rule.ID, ts)
	}
	if err != nil {
		if rs.rule.ID == alert.RuleEngineError {
			// Already the self-alert; raising another would recurse.
			slog.Error("engine error alert not persisted", "alert_id", a.ID, "error", err)
			return a
		}
		e.engineError(ctx, "alert store", err)
	}
	return a
}

// EngineError raises the non-suppressible engine_error self-alert. It is
// dispatched directly and persisted best-effort so a failing store cannot
// swallow it.
func (e *AlertEngine) EngineError(ctx context.Context, component string, err error) {
	e.engineError(ctx, component, err)
}

func (e *AlertEngine) engineError(ctx context.Context, component string, cause error) {
	msg := fmt.Sprintf("%s: %v", component, cause)
	e.lastError.Store(&msg)
	slog.Error("engine error", "component", component, "error", cause)

	rs, ok := e.ruleState(alert.RuleEngineError)
	var rule alert.Rule
	if ok {
		rs.mu.Lock()
		rule = rs.rule
		rs.mu.Unlock()
	} else {
		rule = alert.EngineErrorRule()
	}
	if !rule.Enabled {
		return
	}

	now := e.now().UTC()
	a := &alert.Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Message:   "Engine error in " + component,
		Data:      map[string]any{"component": component, "error": cause.Error()},
		Timestamp: now,
	}
	a.ChannelsSent = e.dispatcher.Send(ctx, a, rule.Channels)
	e.fired.Add(1)
	e.opts.Metrics.AlertFired(ctx, a.RuleID, string(a.Severity))
	if err := e.store.SaveAlert(ctx, a); err != nil {
		slog.Error("engine error alert not persisted", "alert_id", a.ID, "error", err)
	}
}

// TestAlert fires rule id once with synthetic data, bypassing cooldown and
// leaving last_triggered untouched.
func (e *AlertEngine) TestAlert(ctx context.Context, id string) (*alert.Alert, error) {
	rule, err := e.Rule(id)
	if err != nil {
		return nil, err
	}
	a := &alert.Alert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Message:   "Test alert: " + rule.Name,
		Data:      map[string]any{"test": true, "description": rule.Description},
		Timestamp: e.now().UTC(),
	}
	a.ChannelsSent = e.dispatcher.Send(ctx, a, rule.Channels)
	if err := e.store.SaveAlert(ctx, a); err != nil {
		return a, fmt.Errorf("save alert: %w", err)
	}
	slog.Info("test alert sent", "rule_id", id, "channels_sent", a.ChannelsSent)
	return a, nil
}

// ResolveAlert marks an alert resolved.
func (e *AlertEngine) ResolveAlert(ctx context.Context, id string) (*alert.Alert, error) {
	if err := e.store.ResolveAlert(ctx, id, e.now().UTC()); err != nil {
		return nil, err
	}
	e.escMu.Lock()
	delete(e.escalated, id)
	e.escMu.Unlock()
	return e.store.GetAlert(ctx, id)
}

// ListAlerts returns alert history.
func (e *AlertEngine) ListAlerts(ctx context.Context, f alert.Filter) ([]alert.Alert, error) {
	return e.store.ListAlerts(ctx, f)
}

// CheckEscalations re-dispatches unresolved alerts older than their rule's
// escalation window. Each alert escalates once per process lifetime.
func (e *AlertEngine) CheckEscalations(ctx context.Context) int {
	open, err := e.store.ListAlerts(ctx, alert.Filter{UnresolvedOnly: true})
	if err != nil {
		e.engineError(ctx, "alert store", err)
		return 0
	}

	now := e.now()
	n := 0
	for i := range open {
		a := open[i]
		if a.RuleID == alert.RuleEngineError || a.Data["test"] == true {
			continue
		}
		rule, err := e.Rule(a.RuleID)
		if err != nil || rule.Escalation() == 0 || now.Sub(a.Timestamp) < rule.Escalation() {
			continue
		}
		e.escMu.Lock()
		done := e.escalated[a.ID]
		e.escalated[a.ID] = true
		e.escMu.Unlock()
		if done {
			continue
		}

		channels := e.opts.EscalationChannels
		if len(channels) == 0 {
			channels = rule.Channels
		}
		esc := a
		esc.Message = escalatedPrefix + a.Message
		sent := e.dispatcher.Send(ctx, &esc, channels)
		slog.Warn("alert escalated", "alert_id", a.ID, "rule_id", a.RuleID, "age", now.Sub(a.Timestamp).Round(time.Second), "channels_sent", sent)
		n++
	}
	return n
}

// AlertStats summarises engine activity for the status endpoint.
type AlertStats struct {
	Rules        int    `json:"rules"`
	EnabledRules int    `json:"enabled_rules"`
	Fired        int64  `json:"fired"`
	Suppressed   int64  `json:"suppressed"`
	Unresolved   int    `json:"unresolved"`
	LastError    string `json:"last_error,omitempty"`
}

// Stats returns counters since start plus the unresolved alert count.
func (e *AlertEngine) Stats(ctx context.Context) AlertStats {
	rules := e.Rules()
	st := AlertStats{
		Rules:      len(rules),
		Fired:      e.fired.Load(),
		Suppressed: e.suppressed.Load(),
	}
	for i := range rules {
		if rules[i].Enabled {
			st.EnabledRules++
		}
	}
	if n, err := e.store.CountUnresolved(ctx); err == nil {
		st.Unresolved = n
	} else {
		slog.Warn("count unresolved alerts failed", "error", err)
	}
	if msg := e.lastError.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

func alertMessage(r alert.Rule, ev event.Event) string {
	if ev.Message == "" {
		return r.Name
	}
	return r.Name + ": " + ev.Message
}

// alertData flattens the event envelope into the payload so channels and
// history carry the full context.
func alertData(ev event.Event) map[string]any {
	data := make(map[string]any, len(ev.Payload)+5)
	for k, v := range ev.Payload {
		data[k] = v
	}
	data["event_id"] = ev.ID
	data["event_type"] = string(ev.Type)
	if ev.WorkflowID != "" {
		data["workflow_id"] = ev.WorkflowID
	}
	if ev.TaskID != "" {
		data["task_id"] = ev.TaskID
	}
	if ev.AgentID != "" {
		data["agent_id"] = ev.AgentID
	}
	return data
}
