package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"repo=acme/api", "number=42", "draft=true", "labels=[\"a\"]"})
	if err != nil {
		t.Fatal(err)
	}
	if params["repo"] != "acme/api" {
		t.Errorf("repo = %v", params["repo"])
	}
	if params["number"] != float64(42) {
		t.Errorf("number = %#v", params["number"])
	}
	if params["draft"] != true {
		t.Errorf("draft = %#v", params["draft"])
	}
	if l, ok := params["labels"].([]any); !ok || len(l) != 1 {
		t.Errorf("labels = %#v", params["labels"])
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Fatal("expected error for missing '='")
	}
}

func TestClientSendsKeyAndDecodesErrors(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/workflows/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"workflow not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"version":"1.2.3"}`))
	}))
	defer srv.Close()

	c := (&clientOptions{server: srv.URL + "/", apiKey: "secret"}).client()

	var out map[string]string
	if err := c.do(context.Background(), http.MethodGet, "/", nil, &out); err != nil {
		t.Fatal(err)
	}
	if out["version"] != "1.2.3" || gotKey != "secret" || gotPath != "/api/v1/" {
		t.Fatalf("out=%v key=%q path=%q", out, gotKey, gotPath)
	}

	err := c.do(context.Background(), http.MethodGet, "/workflows/missing", nil, &out)
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "workflow not found" {
		t.Fatalf("unexpected error %v", err)
	}
}
