package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/Strob0t/conductor/internal/config"
)

func TestNewReturnsWorkingLogger(t *testing.T) {
	for _, async := range []bool{false, true} {
		l, closer := New(config.Logging{Level: "debug", Service: "conductor", Async: async})
		if l == nil {
			t.Fatalf("async=%v: nil logger", async)
		}
		l.Info("started")
		closer.Close()
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || WorkflowID(ctx) != "" {
		t.Fatal("empty context must carry no ids")
	}
	ctx = WithWorkflowID(WithRequestID(ctx, "ev-1"), "wf-1")
	if RequestID(ctx) != "ev-1" || WorkflowID(ctx) != "wf-1" {
		t.Fatalf("ids not stored: %q %q", RequestID(ctx), WorkflowID(ctx))
	}
	if WithWorkflowID(ctx, "") != ctx {
		t.Fatal("empty workflow id must leave the context untouched")
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		rec := map[string]any{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestContextHandlerAddsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(&contextHandler{inner: slog.NewJSONHandler(&buf, nil)})

	ctx := WithWorkflowID(WithRequestID(context.Background(), "ev-1"), "wf-1")
	l.InfoContext(ctx, "task assigned")
	l.InfoContext(ctx, "explicit", "workflow_id", "wf-2")

	recs := decodeLines(t, &buf)
	if recs[0]["request_id"] != "ev-1" || recs[0]["workflow_id"] != "wf-1" {
		t.Fatalf("missing correlation ids: %v", recs[0])
	}
	if recs[1]["workflow_id"] != "wf-2" {
		t.Fatalf("explicit workflow_id must win: %v", recs[1])
	}
	if n := strings.Count(buf.String(), `"workflow_id"`); n != 2 {
		t.Fatalf("expected one workflow_id per record, got %d", n)
	}
}
