package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Rules ---

const ruleColumns = `id, name, description, condition, severity, channels, cooldown_minutes, escalation_minutes, enabled, non_suppressible, last_triggered`

func scanRule(row scannable) (alert.Rule, error) {
	var (
		r    alert.Rule
		cond []byte
		sev  string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &cond, &sev, &r.Channels,
		&r.CooldownMinutes, &r.EscalationMinutes, &r.Enabled, &r.NonSuppressible, &r.LastTriggered)
	if err != nil {
		return alert.Rule{}, err
	}
	if err := json.Unmarshal(cond, &r.Condition); err != nil {
		return alert.Rule{}, fmt.Errorf("decode condition of rule %s: %w", r.ID, err)
	}
	r.Severity = alert.Severity(sev)
	r.Channels = orEmpty(r.Channels)
	return r, nil
}

func (s *Store) ListRules(ctx context.Context) ([]alert.Rule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

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
	r, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get rule %s", id)
	}
	return &r, nil
}

// SaveRule inserts or replaces a rule. last_triggered is kept when the
// incoming rule carries none.
func (s *Store) SaveRule(ctx context.Context, r *alert.Rule) error {
	cond, err := json.Marshal(r.Condition)
	if err != nil {
		return fmt.Errorf("encode condition of rule %s: %w", r.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   condition = EXCLUDED.condition,
		   severity = EXCLUDED.severity,
		   channels = EXCLUDED.channels,
		   cooldown_minutes = EXCLUDED.cooldown_minutes,
		   escalation_minutes = EXCLUDED.escalation_minutes,
		   enabled = EXCLUDED.enabled,
		   non_suppressible = EXCLUDED.non_suppressible,
		   last_triggered = COALESCE(EXCLUDED.last_triggered, alert_rules.last_triggered),
		   updated_at = now()`,
		r.ID, r.Name, r.Description, cond, string(r.Severity), textArray(r.Channels),
		r.CooldownMinutes, r.EscalationMinutes, r.Enabled, r.NonSuppressible, r.LastTriggered)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete rule %s", id)
}

func (s *Store) MarkTriggered(ctx context.Context, ruleID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_rules SET last_triggered = $2, updated_at = now() WHERE id = $1`, ruleID, at)
	return execExpectOne(tag, err, "mark rule %s triggered", ruleID)
}

// --- Alerts ---

const alertColumns = `id, rule_id, rule_name, severity, message, data, fired_at, channels_sent, resolved, resolved_at`

func scanAlert(row scannable) (alert.Alert, error) {
	var (
		a    alert.Alert
		data []byte
		sev  string
	)
	err := row.Scan(&a.ID, &a.RuleID, &a.RuleName, &sev, &a.Message, &data,
		&a.Timestamp, &a.ChannelsSent, &a.Resolved, &a.ResolvedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return alert.Alert{}, fmt.Errorf("decode data of alert %s: %w", a.ID, err)
		}
	}
	a.Severity = alert.Severity(sev)
	a.ChannelsSent = orEmpty(a.ChannelsSent)
	return a, nil
}

func (s *Store) SaveAlert(ctx context.Context, a *alert.Alert) error {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("encode alert data: %w", err)
	}
	if a.Data == nil {
		data = []byte("{}")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   channels_sent = EXCLUDED.channels_sent,
		   resolved = EXCLUDED.resolved,
		   resolved_at = EXCLUDED.resolved_at`,
		a.ID, a.RuleID, a.RuleName, string(a.Severity), a.Message, data,
		a.Timestamp, textArray(a.ChannelsSent), a.Resolved, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("save alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
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
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if f.RuleID != "" {
		add("rule_id = $%d", f.RuleID)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if !f.Since.IsZero() {
		add("fired_at >= $%d", f.Since)
	}
	if f.UnresolvedOnly {
		conditions = append(conditions, "NOT resolved")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY fired_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

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
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET resolved = TRUE, resolved_at = COALESCE(resolved_at, $2) WHERE id = $1`, id, at)
	return execExpectOne(tag, err, "resolve alert %s", id)
}

func (s *Store) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE NOT resolved`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved alerts: %w", err)
	}
	return n, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ database.Store = (*Store)(nil)
