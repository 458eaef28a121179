// Package broadcast defines the port for broadcasting engine events to connected clients.
package broadcast

import (
	"context"

	"github.com/Strob0t/conductor/internal/domain/event"
)

// Broadcaster sends engine events to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, ev event.Event)
}
