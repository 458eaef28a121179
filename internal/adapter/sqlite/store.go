package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/port/database"
)

// Store implements database.Store on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store on an opened database.
func NewStore(d *DB) *Store {
	return &Store{db: d.db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const ruleColumns = `id, name, description, condition, severity, channels, cooldown_minutes, escalation_minutes, enabled, non_suppressible, last_triggered`

func scanRule(row rowScanner) (alert.Rule, error) {
	var (
		r         alert.Rule
		cond      string
		sev       string
		channels  string
		triggered sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &cond, &sev, &channels,
		&r.CooldownMinutes, &r.EscalationMinutes, &r.Enabled, &r.NonSuppressible, &triggered); err != nil {
		return alert.Rule{}, err
	}
	if err := json.Unmarshal([]byte(cond), &r.Condition); err != nil {
		return alert.Rule{}, fmt.Errorf("decode condition of rule %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
		return alert.Rule{}, fmt.Errorf("decode channels of rule %s: %w", r.ID, err)
	}
	if r.Channels == nil {
		r.Channels = []string{}
	}
	r.Severity = alert.Severity(sev)
	r.LastTriggered = millisToTimePtr(triggered)
	return r, nil
}

func (s *Store) ListRules(ctx context.Context) ([]alert.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []alert.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) GetRule(ctx context.Context, id string) (*alert.Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get rule %s", id)
	}
	return &r, nil
}

// SaveRule inserts or replaces a rule, keeping last_triggered when the
// incoming rule carries none.
func (s *Store) SaveRule(ctx context.Context, r *alert.Rule) error {
	cond, err := encodeJSON(r.Condition, "{}")
	if err != nil {
		return fmt.Errorf("encode condition of rule %s: %w", r.ID, err)
	}
	channels, err := encodeJSON(r.Channels, "[]")
	if err != nil {
		return fmt.Errorf("encode channels of rule %s: %w", r.ID, err)
	}
	now := toMillis(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   condition = excluded.condition,
		   severity = excluded.severity,
		   channels = excluded.channels,
		   cooldown_minutes = excluded.cooldown_minutes,
		   escalation_minutes = excluded.escalation_minutes,
		   enabled = excluded.enabled,
		   non_suppressible = excluded.non_suppressible,
		   last_triggered = COALESCE(excluded.last_triggered, alert_rules.last_triggered),
		   updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, cond, string(r.Severity), channels,
		r.CooldownMinutes, r.EscalationMinutes, r.Enabled, r.NonSuppressible,
		nullableMillis(r.LastTriggered), now, now)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	return execExpectOne(res, err, "delete rule %s", id)
}

func (s *Store) MarkTriggered(ctx context.Context, ruleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_triggered = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(time.Now()), ruleID)
	return execExpectOne(res, err, "mark rule %s triggered", ruleID)
}

const alertColumns = `id, rule_id, rule_name, severity, message, data, fired_at, channels_sent, resolved, resolved_at`

func scanAlert(row rowScanner) (alert.Alert, error) {
	var (
		a        alert.Alert
		sev      string
		data     string
		firedAt  int64
		channels string
		resolved sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.RuleID, &a.RuleName, &sev, &a.Message, &data,
		&firedAt, &channels, &a.Resolved, &resolved); err != nil {
		return alert.Alert{}, err
	}
	if err := json.Unmarshal([]byte(data), &a.Data); err != nil {
		return alert.Alert{}, fmt.Errorf("decode data of alert %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(channels), &a.ChannelsSent); err != nil {
		return alert.Alert{}, fmt.Errorf("decode channels of alert %s: %w", a.ID, err)
	}
	if a.ChannelsSent == nil {
		a.ChannelsSent = []string{}
	}
	a.Severity = alert.Severity(sev)
	a.Timestamp = fromMillis(firedAt)
	a.ResolvedAt = millisToTimePtr(resolved)
	return a, nil
}

func (s *Store) SaveAlert(ctx context.Context, a *alert.Alert) error {
	data, err := encodeJSON(a.Data, "{}")
	if err != nil {
		return fmt.Errorf("encode alert data: %w", err)
	}
	channels, err := encodeJSON(a.ChannelsSent, "[]")
	if err != nil {
		return fmt.Errorf("encode channels of alert %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   channels_sent = excluded.channels_sent,
		   resolved = excluded.resolved,
		   resolved_at = excluded.resolved_at`,
		a.ID, a.RuleID, a.RuleName, string(a.Severity), a.Message, data,
		toMillis(a.Timestamp), channels, a.Resolved, nullableMillis(a.ResolvedAt))
	if err != nil {
		return fmt.Errorf("save alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get alert %s", id)
	}
	return &a, nil
}

// ListAlerts returns matching alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, f alert.Filter) ([]alert.Alert, error) {
	var (
		conditions []string
		args       []any
	)
	if f.RuleID != "" {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, f.RuleID)
	}
	if f.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(f.Severity))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "fired_at >= ?")
		args = append(args, toMillis(f.Since))
	}
	if f.UnresolvedOnly {
		conditions = append(conditions, "resolved = 0")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY fired_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
		toMillis(at), id)
	return execExpectOne(res, err, "resolve alert %s", id)
}

func (s *Store) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE resolved = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved alerts: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the shared database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ database.Store = (*Store)(nil)
