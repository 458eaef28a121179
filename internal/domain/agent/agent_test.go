package agent

import (
	"math"
	"testing"
	"time"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name     string
		success  bool
		latency  time.Duration
		expected time.Duration
		want     float64
	}{
		{"failure", false, time.Second, 30 * time.Second, 0},
		{"fast success", true, time.Second, 30 * time.Second, 1},
		{"on the limit", true, 30 * time.Second, 30 * time.Second, 1},
		{"twice as slow", true, 60 * time.Second, 30 * time.Second, 0.5},
		{"no expectation", true, time.Hour, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.success, tt.latency, tt.expected); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Outcome() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpdateScore(t *testing.T) {
	got := UpdateScore(0.5, 1, 0.2)
	if math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("expected 0.6, got %v", got)
	}
	if UpdateScore(0.5, 1, 0) != 0.5 {
		t.Fatal("alpha 0 must leave the score unchanged")
	}
}

func TestValidate(t *testing.T) {
	d := Descriptor{ID: "pr_agent", Capabilities: []string{"create_pr"}, Transport: TransportHTTP, Endpoint: "http://bridge"}
	if err := d.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	d.Transport = "carrier-pigeon"
	if err := d.Validate(); err == nil {
		t.Fatal("expected unknown transport error")
	}
	d = Descriptor{ID: "x", Transport: TransportHTTP, Endpoint: "e"}
	if err := d.Validate(); err != ErrCapabilitiesRequired {
		t.Fatalf("expected ErrCapabilitiesRequired, got %v", err)
	}
	if !(&Descriptor{Capabilities: []string{"a", "b"}}).Can("b") {
		t.Fatal("expected capability b")
	}
}
