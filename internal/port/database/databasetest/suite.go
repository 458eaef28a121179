// Package databasetest holds behaviour tests shared by every alert store
// and event history implementation.
package databasetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Strob0t/conductor/internal/domain"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/database"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

func testRule(id string) alert.Rule {
	return alert.Rule{
		ID:   id,
		Name: "Rule " + id,
		Condition: alert.Condition{
			Events: []event.Type{event.TypeTaskFailed},
			Equals: map[string]any{"task_type": "create_pr"},
			Above:  map[string]float64{"latency_seconds": 30},
		},
		Severity:          alert.SeverityHigh,
		Channels:          []string{"email", "slack"},
		CooldownMinutes:   5,
		EscalationMinutes: 30,
		Enabled:           true,
	}
}

func testAlert(ruleID string, at time.Time) alert.Alert {
	return alert.Alert{
		ID:           uuid.NewString(),
		RuleID:       ruleID,
		RuleName:     "Rule " + ruleID,
		Severity:     alert.SeverityHigh,
		Message:      "task create_pr failed",
		Data:         map[string]any{"workflow_id": "wf-1"},
		Timestamp:    at,
		ChannelsSent: []string{"slack"},
	}
}

// RunStore exercises a database.Store. newStore must return an empty store.
func RunStore(t *testing.T, newStore func(t *testing.T) database.Store) {
	t.Run("RuleRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := testRule("pr_failed-" + uuid.NewString()[:8])
		require.NoError(t, s.SaveRule(ctx, &r))

		got, err := s.GetRule(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, r.Name, got.Name)
		require.Equal(t, r.Severity, got.Severity)
		require.Equal(t, r.Channels, got.Channels)
		require.Equal(t, r.Condition.Events, got.Condition.Events)
		require.Equal(t, "create_pr", got.Condition.Equals["task_type"])
		require.InDelta(t, 30.0, got.Condition.Above["latency_seconds"], 0.001)
		require.Nil(t, got.LastTriggered)

		r.Severity = alert.SeverityCritical
		r.Enabled = false
		require.NoError(t, s.SaveRule(ctx, &r))
		got, err = s.GetRule(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, alert.SeverityCritical, got.Severity)
		require.False(t, got.Enabled)

		rules, err := s.ListRules(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, rules)
	})

	t.Run("MarkTriggeredSurvivesSave", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := testRule("cooldown-" + uuid.NewString()[:8])
		require.NoError(t, s.SaveRule(ctx, &r))
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.MarkTriggered(ctx, r.ID, at))

		r.Name = "renamed"
		require.NoError(t, s.SaveRule(ctx, &r))
		got, err := s.GetRule(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastTriggered)
		require.True(t, got.LastTriggered.Equal(at))

		require.ErrorIs(t, s.MarkTriggered(ctx, "missing-rule", at), domain.ErrNotFound)
	})

	t.Run("DeleteRule", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		r := testRule("delete-" + uuid.NewString()[:8])
		require.NoError(t, s.SaveRule(ctx, &r))
		require.NoError(t, s.DeleteRule(ctx, r.ID))

		_, err := s.GetRule(ctx, r.ID)
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.ErrorIs(t, s.DeleteRule(ctx, r.ID), domain.ErrNotFound)
	})

	t.Run("AlertHistory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ruleID := "history-" + uuid.NewString()[:8]
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		older := testAlert(ruleID, base)
		newer := testAlert(ruleID, base.Add(time.Minute))
		other := testAlert(ruleID+"-other", base.Add(2*time.Minute))
		other.Severity = alert.SeverityLow
		for _, a := range []*alert.Alert{&older, &newer, &other} {
			require.NoError(t, s.SaveAlert(ctx, a))
		}

		got, err := s.ListAlerts(ctx, alert.Filter{RuleID: ruleID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, newer.ID, got[0].ID, "newest first")
		require.Equal(t, []string{"slack"}, got[0].ChannelsSent)
		require.Equal(t, "wf-1", got[0].Data["workflow_id"])

		got, err = s.ListAlerts(ctx, alert.Filter{RuleID: ruleID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = s.ListAlerts(ctx, alert.Filter{Severity: alert.SeverityLow, Since: base.Add(90 * time.Second)})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		for _, a := range got {
			require.Equal(t, alert.SeverityLow, a.Severity)
		}
	})

	t.Run("ResolveAlert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testAlert("resolve-"+uuid.NewString()[:8], time.Now().UTC())
		require.NoError(t, s.SaveAlert(ctx, &a))
		before, err := s.CountUnresolved(ctx)
		require.NoError(t, err)

		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.ResolveAlert(ctx, a.ID, at))

		got, err := s.GetAlert(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, got.Resolved)
		require.NotNil(t, got.ResolvedAt)
		require.True(t, got.ResolvedAt.Equal(at))

		after, err := s.CountUnresolved(ctx)
		require.NoError(t, err)
		require.Equal(t, before-1, after)

		open, err := s.ListAlerts(ctx, alert.Filter{RuleID: a.RuleID, UnresolvedOnly: true})
		require.NoError(t, err)
		require.Empty(t, open)

		require.ErrorIs(t, s.ResolveAlert(ctx, "missing-alert", at), domain.ErrNotFound)
		_, err = s.GetAlert(ctx, "missing-alert")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})
}

// RunEventStore exercises an eventstore.Store. newStore must return an
// empty store.
func RunEventStore(t *testing.T, newStore func(t *testing.T) eventstore.Store) {
	t.Run("AppendAndFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		wf := "wf-" + uuid.NewString()[:8]
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		types := []event.Type{event.TypeWorkflowStarted, event.TypeTaskAssigned, event.TypeTaskCompleted, event.TypeWorkflowCompleted}
		for i, typ := range types {
			ev := event.New(typ, string(typ), map[string]any{"step": float64(i)})
			ev.WorkflowID = wf
			ev.AgentID = "agent-1"
			ev.Timestamp = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, s.Append(ctx, &ev))
		}

		got, err := s.List(ctx, eventstore.Filter{WorkflowID: wf})
		require.NoError(t, err)
		require.Len(t, got, 4)
		require.Equal(t, event.TypeWorkflowStarted, got[0].Type, "oldest first")
		require.InDelta(t, 3.0, got[3].Payload["step"], 0.001)

		got, err = s.List(ctx, eventstore.Filter{WorkflowID: wf, Types: []event.Type{event.TypeTaskAssigned, event.TypeTaskCompleted}})
		require.NoError(t, err)
		require.Len(t, got, 2)

		got, err = s.List(ctx, eventstore.Filter{WorkflowID: wf, Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, event.TypeTaskCompleted, got[0].Type, "limit keeps the most recent")

		after := base.Add(1500 * time.Millisecond)
		got, err = s.List(ctx, eventstore.Filter{WorkflowID: wf, After: &after})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("AppendIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ev := event.New(event.TypeExternal, "deploy", nil)
		ev.WorkflowID = "wf-" + uuid.NewString()[:8]
		require.NoError(t, s.Append(ctx, &ev))
		require.NoError(t, s.Append(ctx, &ev))

		got, err := s.List(ctx, eventstore.Filter{WorkflowID: ev.WorkflowID})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}
