package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/conductor/internal/adapter/ristretto"
)

func TestCacheRoundTrip(t *testing.T) {
	c, err := ristretto.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "workflow:wf-1", []byte(`{"status":"completed"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "workflow:wf-1")
	if err != nil || !ok || string(val) != `{"status":"completed"}` {
		t.Fatalf("Get: %q ok=%v err=%v", val, ok, err)
	}

	if err := c.Delete(ctx, "workflow:wf-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "workflow:wf-1"); ok {
		t.Fatal("expected miss after delete")
	}
}
