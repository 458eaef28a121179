package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// untraced paths are probes, scrapes and long-lived streams.
var untraced = map[string]bool{
	"/health":       true,
	"/health/ready": true,
	"/metrics":      true,
	"/ws":           true,
}

// HTTPMiddleware traces requests under service. A span starts as
// "<service> <METHOD>" and is renamed to the matched chi route, e.g.
// "GET /api/v1/workflows/{id}", once routing is done.
func HTTPMiddleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
				}
			}
		})
		return otelhttp.NewHandler(routed, service,
			otelhttp.WithFilter(func(r *http.Request) bool { return !untraced[r.URL.Path] }),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return service + " " + r.Method
			}),
		)
	}
}
