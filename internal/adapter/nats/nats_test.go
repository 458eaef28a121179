package nats

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
	"github.com/Strob0t/conductor/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url, "CONDUCTOR_TEST")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns an ingest subject unique to the test.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return messagequeue.SubjectIngest + "." + strings.ReplaceAll(t.Name(), "/", "_")
}

func ingestPayload(t *testing.T, typ string) []byte {
	t.Helper()
	data, err := json.Marshal(messagequeue.EventPayload{ID: "e1", Type: typ, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestRetryCount(t *testing.T) {
	h := nats.Header{}
	if got := retryCount(h); got != 0 {
		t.Fatalf("empty header = %d", got)
	}
	h.Set(headerRetryCount, "2")
	if got := retryCount(h); got != 2 {
		t.Fatalf("retryCount = %d, want 2", got)
	}
	h.Set(headerRetryCount, "garbage")
	if got := retryCount(h); got != 0 {
		t.Fatalf("garbage header = %d, want 0", got)
	}
	if got := retryCount(nil); got != 0 {
		t.Fatalf("nil header = %d", got)
	}
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	var (
		mu       sync.Mutex
		received messagequeue.EventPayload
		done     = make(chan struct{})
		once     sync.Once
	)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got messagequeue.EventPayload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, ingestPayload(t, "deploy_failed")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received.Type != "deploy_failed" {
		t.Errorf("type = %q, want deploy_failed", received.Type)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)
	const wantReqID = "req-abc-123"

	got := make(chan string, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		select {
		case got <- logger.RequestID(ctx):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, ingestPayload(t, "external")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case id := <-got:
		if id != wantReqID {
			t.Errorf("request ID = %q, want %q", id, wantReqID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// dlqWatch consumes the dead letter subject for subject and returns the
// first payload parked there.
func dlqWatch(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		FilterSubject: dlqPrefix + subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	out := make(chan []byte, 1)
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case out <- msg.Data():
		default:
		}
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	t.Cleanup(sub.Stop)
	return out
}

func TestQueue_InvalidMessageGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)
	dlq := dlqWatch(t, q, subject)

	called := make(chan struct{}, 1)
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		called <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte("not-json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != "not-json" {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
	select {
	case <-called:
		t.Fatal("handler must not see invalid messages")
	default:
	}
}

func TestQueue_RetryExhaustionGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)
	dlq := dlqWatch(t, q, subject)

	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, string, []byte) error {
		return errors.New("handler always fails")
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	payload := ingestPayload(t, "external")
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(headerRetryCount, "3")
	if _, err := q.js.PublishMsg(context.Background(), msg); err != nil {
		t.Fatalf("PublishMsg: %v", err)
	}

	select {
	case data := <-dlq:
		if string(data) != string(payload) {
			t.Errorf("DLQ data = %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for DLQ message after retry exhaustion")
	}
}

func TestAgentBackend_RequestReply(t *testing.T) {
	q := testConnect(t)
	agentID := "agent-" + strings.ReplaceAll(t.Name(), "/", "_")

	sub, err := ServeAgent(q.Conn(), agentID, func(_ context.Context, req agentbackend.Request) agentbackend.Result {
		return agentbackend.Result{Success: true, Output: map[string]any{"task_type": req.TaskType}}
	})
	if err != nil {
		t.Fatalf("ServeAgent: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	b := NewAgentBackend(q.Conn(), agentID, 2*time.Second)
	res, err := b.Execute(context.Background(), agentbackend.Request{ExecutionID: "x1", TaskType: "create_pr"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Output["task_type"] != "create_pr" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAgentBackend_NoResponders(t *testing.T) {
	q := testConnect(t)
	b := NewAgentBackend(q.Conn(), "nobody-home", time.Second)

	_, err := b.Execute(context.Background(), agentbackend.Request{ExecutionID: "x1", TaskType: "create_pr"})
	if !errors.Is(err, agentbackend.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}
