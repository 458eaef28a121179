package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	cfotel "github.com/Strob0t/conductor/internal/adapter/otel"
	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/port/notifier"
	"github.com/Strob0t/conductor/internal/resilience"
)

// ErrUnknownChannel is reported by TestChannels for ids with no notifier.
var ErrUnknownChannel = errors.New("unknown notification channel")

// Channel is one configured delivery target.
type Channel struct {
	ID          string
	Notifier    notifier.Notifier
	Target      string
	MinSeverity alert.Severity
}

type channelEntry struct {
	Channel
	breaker *resilience.Breaker
}

// NotificationDispatcher fans an alert out to its rule's channels. Every
// channel is attempted independently with bounded retry; one channel's
// failure never stops the others.
type NotificationDispatcher struct {
	channels map[string]*channelEntry
	backoff  resilience.Backoff
	metrics  *cfotel.Metrics
}

// NewNotificationDispatcher creates a dispatcher over the given channels.
func NewNotificationDispatcher(channels []Channel, backoff resilience.Backoff, breaker config.Breaker, metrics *cfotel.Metrics) *NotificationDispatcher {
	d := &NotificationDispatcher{
		channels: make(map[string]*channelEntry, len(channels)),
		backoff:  backoff,
		metrics:  metrics,
	}
	for _, ch := range channels {
		d.channels[ch.ID] = &channelEntry{
			Channel: ch,
			breaker: resilience.NewBreaker(breaker.MaxFailures, breaker.Timeout),
		}
	}
	return d
}

// Send delivers a to each channel in order and returns the ids of the
// channels that confirmed delivery. It never fails: an empty result means
// no channel accepted the alert.
func (d *NotificationDispatcher) Send(ctx context.Context, a *alert.Alert, channelIDs []string) []string {
	n := notifier.Notification{
		Severity: string(a.Severity),
		Title:    a.Title(),
		Body:     body(a),
		Data:     a.Data,
	}

	sent := make([]string, 0, len(channelIDs))
	for _, id := range channelIDs {
		ch, ok := d.channels[id]
		if !ok {
			slog.Warn("alert channel not configured", "channel", id, "alert_id", a.ID, "rule_id", a.RuleID)
			continue
		}
		if !a.Severity.AtLeast(ch.MinSeverity) {
			slog.Debug("alert below channel severity", "channel", id, "severity", a.Severity, "min_severity", ch.MinSeverity)
			continue
		}
		if err := d.deliver(ctx, ch, n); err != nil {
			slog.Warn("alert delivery failed", "channel", id, "alert_id", a.ID, "rule_id", a.RuleID, "error", err)
			d.metrics.Notification(ctx, id, false)
			continue
		}
		d.metrics.Notification(ctx, id, true)
		sent = append(sent, id)
	}
	return sent
}

func (d *NotificationDispatcher) deliver(ctx context.Context, ch *channelEntry, n notifier.Notification) error {
	ctx, span := cfotel.StartNotifySpan(ctx, ch.ID)
	defer span.End()

	if ch.Target != "" {
		n.Target = ch.Target
	}
	return d.backoff.Do(ctx, func(attempt int) error {
		err := ch.breaker.Execute(func() error {
			return ch.Notifier.Send(ctx, n)
		})
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			slog.Debug("notification attempt failed", "channel", ch.ID, "attempt", attempt, "error", err)
		}
		if errors.Is(err, notifier.ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	})
}

// ChannelResult is the outcome of a channel test.
type ChannelResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// TestChannels sends a test notification to every configured channel,
// bypassing severity filters and retries.
func (d *NotificationDispatcher) TestChannels(ctx context.Context) []ChannelResult {
	ids := d.Channels()
	results := make([]ChannelResult, 0, len(ids))
	for _, id := range ids {
		ch := d.channels[id]
		err := ch.Notifier.Send(ctx, notifier.Notification{
			Target:   ch.Target,
			Severity: string(alert.SeverityLow),
			Title:    "[TEST] conductor notification channel test",
			Body:     fmt.Sprintf("Test message for channel %s sent at %s.", id, time.Now().UTC().Format(time.RFC3339)),
			Data:     map[string]any{"test": true},
		})
		res := ChannelResult{Channel: id, OK: err == nil}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// Channels returns the configured channel ids in sorted order.
func (d *NotificationDispatcher) Channels() []string {
	ids := make([]string, 0, len(d.channels))
	for id := range d.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BreakerStates reports each channel's circuit breaker state.
func (d *NotificationDispatcher) BreakerStates() map[string]resilience.State {
	states := make(map[string]resilience.State, len(d.channels))
	for id, ch := range d.channels {
		states[id] = ch.breaker.State()
	}
	return states
}

func body(a *alert.Alert) string {
	if a.RuleName == "" {
		return a.Message
	}
	return fmt.Sprintf("Rule: %s\n%s\nAt: %s", a.RuleName, a.Message, a.Timestamp.UTC().Format(time.RFC3339))
}

// ChannelsFromConfig builds the enabled channels through the notifier
// factory registry. Channels that fail to build are logged and skipped.
func ChannelsFromConfig(cfg config.Channels) []Channel {
	entries := []struct {
		id string
		ch config.Channel
	}{
		{"email", cfg.Email},
		{"slack", cfg.Slack},
		{"discord", cfg.Discord},
		{"teams", cfg.Teams},
		{"sms", cfg.SMS},
	}

	var out []Channel
	for _, e := range entries {
		if !e.ch.Enabled {
			continue
		}
		settings := make(map[string]string, len(e.ch.Settings)+1)
		for k, v := range e.ch.Settings {
			settings[k] = v
		}
		settings["target"] = e.ch.Target
		n, err := notifier.New(e.id, settings)
		if err != nil {
			slog.Warn("notification channel disabled", "channel", e.id, "error", err)
			continue
		}
		var minSev alert.Severity
		if e.ch.MinSeverity != "" {
			if minSev, err = alert.ParseSeverity(e.ch.MinSeverity); err != nil {
				slog.Warn("invalid channel min_severity, accepting all", "channel", e.id, "error", err)
				minSev = ""
			}
		}
		out = append(out, Channel{ID: e.id, Notifier: n, Target: e.ch.Target, MinSeverity: minSev})
	}
	return out
}
