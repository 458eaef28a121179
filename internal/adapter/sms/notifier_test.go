package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

var _ notifier.Notifier = (*Notifier)(nil)

func TestSendPostsForm(t *testing.T) {
	var path, user, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		body = r.PostForm.Get("Body")
		if r.PostForm.Get("To") != "+15550100" {
			t.Errorf("unexpected To %q", r.PostForm.Get("To"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n := NewNotifier(Config{BaseURL: srv.URL, AccountSID: "AC1", Token: "secret", From: "+15550000", To: "+15550100"})
	err := n.Send(context.Background(), notifier.Notification{Severity: "critical", Title: "[CRITICAL] engine error", Body: "store unavailable"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/Accounts/AC1/Messages.json" {
		t.Fatalf("unexpected path %q", path)
	}
	if user != "AC1" {
		t.Fatalf("expected basic auth user AC1, got %q", user)
	}
	if body != "[CRITICAL] engine error\nstore unavailable" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSendTruncates(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		body = r.PostForm.Get("Body")
	}))
	defer srv.Close()

	n := NewNotifier(Config{BaseURL: srv.URL, AccountSID: "AC1", Token: "t", From: "+1", To: "+2"})
	if err := n.Send(context.Background(), notifier.Notification{Title: strings.Repeat("x", 2000)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != maxBody || !strings.HasSuffix(body, "...") {
		t.Fatalf("expected truncated body of %d, got %d", maxBody, len(body))
	}
}

func TestSendNotConfigured(t *testing.T) {
	if err := NewNotifier(Config{}).Send(context.Background(), notifier.Notification{}); err != notifier.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
