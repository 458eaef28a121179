package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/conductor/internal/domain/event"
	"github.com/Strob0t/conductor/internal/port/eventstore"
)

// EngineErrorReporter raises the engine_error self-alert.
type EngineErrorReporter interface {
	EngineError(ctx context.Context, component string, err error)
}

// History appends every engine event to the event store.
type History struct {
	store    eventstore.Store
	reporter EngineErrorReporter
}

// NewHistory creates the history subscriber. reporter may be nil.
func NewHistory(store eventstore.Store, reporter EngineErrorReporter) *History {
	return &History{store: store, reporter: reporter}
}

// HandleEvent is an EventHandler.
func (h *History) HandleEvent(ctx context.Context, ev event.Event) {
	if err := h.store.Append(ctx, &ev); err != nil {
		slog.Error("append event", "event_id", ev.ID, "event_type", ev.Type, "error", err)
		// engine_error events raised by this failure would fail the same way.
		if h.reporter != nil && ev.Type != event.TypeEngineError {
			h.reporter.EngineError(ctx, "event history", err)
		}
	}
}

// List returns stored events matching f.
func (h *History) List(ctx context.Context, f eventstore.Filter) ([]event.Event, error) {
	return h.store.List(ctx, f)
}
