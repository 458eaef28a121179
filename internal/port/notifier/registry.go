package notifier

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownChannel is returned by New for a channel no adapter registered.
var ErrUnknownChannel = errors.New("notifier: unknown channel")

// Factory builds a channel from its settings. The dispatcher always passes
// a "target" key, empty when the channel has no default recipient.
type Factory func(settings map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a channel available by name. Adapters call it from init,
// so cmd/conductor enables a channel with a blank import.
func Register(channel string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[channel]; exists {
		panic(fmt.Sprintf("notifier: channel %q registered twice", channel))
	}
	factories[channel] = factory
}

// New builds the named channel. Factory errors are wrapped with the channel
// name and keep ErrNotConfigured detectable.
func New(channel string, settings map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[channel]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownChannel, channel, strings.Join(Available(), ", "))
	}
	n, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channel, err)
	}
	return n, nil
}

// Available returns the registered channel names in sorted order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
