package notifier_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Strob0t/conductor/internal/port/notifier"
)

type pagerNotifier struct{}

func (pagerNotifier) Name() string                         { return "pager" }
func (pagerNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{MaxLength: 160} }
func (pagerNotifier) Send(context.Context, notifier.Notification) error {
	return nil
}

var _ notifier.Notifier = pagerNotifier{}

func TestRegistry(t *testing.T) {
	notifier.Register("pager", func(settings map[string]string) (notifier.Notifier, error) {
		if settings["target"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return pagerNotifier{}, nil
	})

	_, err := notifier.New("pager", map[string]string{"target": ""})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "channel pager") {
		t.Fatalf("error should name the channel: %v", err)
	}

	n, err := notifier.New("pager", map[string]string{"target": "oncall"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.Name() != "pager" {
		t.Fatalf("expected pager, got %s", n.Name())
	}

	_, err = notifier.New("carrier-pigeon", nil)
	if !errors.Is(err, notifier.ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if !strings.Contains(err.Error(), "pager") {
		t.Fatalf("error should list available channels: %v", err)
	}

	names := notifier.Available()
	if !slices.Contains(names, "pager") || !slices.IsSorted(names) {
		t.Fatalf("unexpected channel list %v", names)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	notifier.Register("pager-dup", func(map[string]string) (notifier.Notifier, error) { return pagerNotifier{}, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	notifier.Register("pager-dup", func(map[string]string) (notifier.Notifier, error) { return pagerNotifier{}, nil })
}
