package teams

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

var _ notifier.Notifier = (*Notifier)(nil)

func TestSendMessageCard(t *testing.T) {
	var got messageCard
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("1"))
	}))
	defer srv.Close()

	err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{
		Severity: "medium",
		Title:    "[MEDIUM] workflow stalled",
		Data:     map[string]any{"workflow_id": "w1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != "MessageCard" || got.ThemeColor != "F39C12" {
		t.Fatalf("unexpected card %+v", got)
	}
	if len(got.Sections) != 1 || len(got.Sections[0].Facts) != 1 || got.Sections[0].Facts[0].Value != "w1" {
		t.Fatalf("unexpected sections %+v", got.Sections)
	}
}

func TestSendNotConfigured(t *testing.T) {
	if err := NewNotifier("").Send(context.Background(), notifier.Notification{}); err != notifier.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if err := NewNotifier(srv.URL).Send(context.Background(), notifier.Notification{Title: "x"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
