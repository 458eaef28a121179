package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/conductor/internal/middleware"
	"github.com/Strob0t/conductor/internal/port/cache"
)

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

var _ cache.Cache = (*memCache)(nil)

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func countingHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func post(handler http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	store := newMemCache()
	handler := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusCreated))

	post(handler, "/api/v1/workflows", "")
	post(handler, "/api/v1/workflows", "")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
	if store.len() != 0 {
		t.Fatal("nothing should be stored without a key")
	}
}

func TestIdempotency_SecondRequestReplays(t *testing.T) {
	counter := 0
	store := newMemCache()
	handler := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusCreated))

	first := post(handler, "/api/v1/workflows", "key-1")
	second := post(handler, "/api/v1/workflows", "key-1")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q, want %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
	for _, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("expected ttl 1h, got %v", ttl)
		}
	}
}

func TestIdempotency_ScopedToPath(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMemCache(), time.Hour)(countingHandler(&counter, http.StatusCreated))

	post(handler, "/api/v1/workflows", "same")
	post(handler, "/api/v1/alert-rules", "same")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	counter := 0
	store := newMemCache()
	handler := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", http.NoBody)
	req.Header.Set("Idempotency-Key", "key-get")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if counter != 1 || store.len() != 0 {
		t.Fatalf("GET must pass through, calls=%d stored=%d", counter, store.len())
	}
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMemCache(), time.Hour)(countingHandler(&counter, http.StatusInternalServerError))

	post(handler, "/api/v1/workflows", "retry-me")
	post(handler, "/api/v1/workflows", "retry-me")

	if counter != 2 {
		t.Fatalf("expected server errors to be retried, got %d calls", counter)
	}
}

func TestIdempotency_CacheDown(t *testing.T) {
	counter := 0
	store := newMemCache()
	store.err = errors.New("kv unavailable")
	handler := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusCreated))

	rec := post(handler, "/api/v1/workflows", "key-x")
	if rec.Code != http.StatusCreated || counter != 1 {
		t.Fatalf("expected request served despite cache outage, code=%d calls=%d", rec.Code, counter)
	}
}
