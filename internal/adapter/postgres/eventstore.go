package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts an event. Re-appending an id already stored is a no-op.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if ev.Payload == nil {
		payload = []byte("{}")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, type, workflow_id, task_id, agent_id, message, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Type), ev.WorkflowID, ev.TaskID, ev.AgentID, ev.Message, payload, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List returns matching events, oldest first. With a limit the most recent
// events are returned.
func (s *EventStore) List(ctx context.Context, f eventstore.Filter) ([]event.Event, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if f.WorkflowID != "" {
		add("workflow_id = $%d", f.WorkflowID)
	}
	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		add("type = ANY($%d)", types)
	}
	if f.After != nil {
		add("occurred_at > $%d", *f.After)
	}

	inner := `SELECT seq, id, type, workflow_id, task_id, agent_id, message, payload, occurred_at FROM events`
	if len(conditions) > 0 {
		inner += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	inner += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		inner += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	query := `SELECT id, type, workflow_id, task_id, agent_id, message, payload, occurred_at FROM (` + inner + `) e ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev      event.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.WorkflowID, &ev.TaskID, &ev.AgentID, &ev.Message, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(typ)
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ eventstore.Store = (*EventStore)(nil)
