package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
}

func TestReloadsDirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	w := New([]Target{{
		Name: "templates",
		Path: dir,
		Reload: func(context.Context) error {
			reloads.Add(1)
			return nil
		},
	}}, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte("name: deploy\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return reloads.Load() >= 1 })
}

func TestFileTargetIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rules, []byte("rules: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w := New([]Target{{
		Name: "rules",
		Path: rules,
		Reload: func(context.Context) error {
			reloads.Add(1)
			return nil
		},
	}}, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Fatalf("sibling change triggered %d reloads", n)
	}

	if err := os.WriteFile(rules, []byte("rules: []\n# edited\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return reloads.Load() >= 1 })
}

func TestBurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	w := New([]Target{{
		Name:   "templates",
		Path:   dir,
		Reload: func(context.Context) error { reloads.Add(1); return nil },
	}}, WithDebounce(200*time.Millisecond))
	startWatcher(t, w)

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "t.yaml")
		if err := os.WriteFile(name, []byte{byte('a' + i)}, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return reloads.Load() >= 1 })
	time.Sleep(300 * time.Millisecond)
	if n := reloads.Load(); n != 1 {
		t.Fatalf("expected one reload for the burst, got %d", n)
	}
}

func TestEmptyTargetsBlockUntilCancelled(t *testing.T) {
	w := New([]Target{{Name: "none"}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
