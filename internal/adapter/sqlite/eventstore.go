package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

// EventStore implements eventstore.Store on SQLite (append-only).
type EventStore struct {
	db *sql.DB
}

// NewEventStore returns an EventStore on an opened database.
func NewEventStore(d *DB) *EventStore {
	return &EventStore{db: d.db}
}

// Append inserts an event. Re-appending an id already stored is a no-op.
func (s *EventStore) Append(ctx context.Context, ev *event.Event) error {
	payload, err := encodeJSON(ev.Payload, "{}")
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, workflow_id, task_id, agent_id, message, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Type), ev.WorkflowID, ev.TaskID, ev.AgentID, ev.Message, payload, toMillis(ev.Timestamp))
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
	if f.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.After != nil {
		conditions = append(conditions, "occurred_at > ?")
		args = append(args, toMillis(*f.After))
	}

	inner := `SELECT seq, id, type, workflow_id, task_id, agent_id, message, payload, occurred_at FROM events`
	if len(conditions) > 0 {
		inner += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	inner += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		inner += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	query := `SELECT id, type, workflow_id, task_id, agent_id, message, payload, occurred_at FROM (` + inner + `) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []event.Event
	for rows.Next() {
		var (
			ev      event.Event
			typ     string
			payload string
			at      int64
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.WorkflowID, &ev.TaskID, &ev.AgentID, &ev.Message, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(typ)
		ev.Timestamp = fromMillis(at)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ eventstore.Store = (*EventStore)(nil)
