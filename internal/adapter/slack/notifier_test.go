package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Notifier = (*Notifier)(nil)

func TestNotifierName(t *testing.T) {
	n := NewNotifier("", "")
	if n.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", n.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("", "")
	err := n.Send(context.Background(), notifier.Notification{Title: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRegisterRequiresURL(t *testing.T) {
	if _, err := notifier.New("slack", map[string]string{}); !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	n, err := notifier.New("slack", map[string]string{"url": "http://hook", "target": "#ops"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.(*Notifier).channel != "#ops" {
		t.Fatalf("expected channel #ops, got %q", n.(*Notifier).channel)
	}
}

func TestSendSuccess(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "#alerts")
	err := n.Send(context.Background(), notifier.Notification{
		Severity: "critical",
		Title:    "[CRITICAL] workflow failed",
		Body:     "create_pr failed after 3 attempts",
		Data:     map[string]any{"workflow_id": "w1", "error": "boom"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Channel != "#alerts" {
		t.Fatalf("expected channel #alerts, got %q", got.Channel)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("expected header, section and context blocks, got %d", len(got.Blocks))
	}
	if !strings.Contains(got.Blocks[0].Text.Text, ":rotating_light:") {
		t.Fatalf("expected critical emoji in header, got %q", got.Blocks[0].Text.Text)
	}
	if ctx := got.Blocks[2].Elements[0].Text; ctx != "*error:* boom  |  *workflow_id:* w1" {
		t.Fatalf("unexpected context block %q", ctx)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	err := n.Send(context.Background(), notifier.Notification{Title: "Test", Severity: "low"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
