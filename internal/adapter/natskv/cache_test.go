package natskv_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/conductor/internal/adapter/natskv"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"workflow:0b5e-11", "workflow.0b5e-11"},
		{"plain_key", "plain_key"},
		{"a b*c>", "a.b.c."},
	}
	for _, tt := range tests {
		if got := natskv.Key(tt.in); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCacheIntegration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping NATS KV integration test")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	ctx := context.Background()
	c, err := natskv.Open(ctx, js, "CONDUCTOR_TEST_SNAPSHOTS", time.Minute)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Set(ctx, "workflow:test", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "workflow:test")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("Get: %q ok=%v err=%v", val, ok, err)
	}
	if err := c.Delete(ctx, "workflow:test"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, "workflow:never-set"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
