package provider

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Registry holds one shared adapter instance per vendor, constructed once
// at process start and passed by reference into the orchestrator and the
// sweeper. This keeps "one connection pool per vendor" without hidden
// global mutable state.
type Registry struct {
	byChannel map[notification.Channel][]Adapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters with the same name on one channel is a construction error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byChannel: make(map[notification.Channel][]Adapter)}
	for _, a := range adapters {
		for _, existing := range r.byChannel[a.Channel()] {
			if existing.Name() == a.Name() {
				return nil, fmt.Errorf("duplicate adapter %q for channel %s", a.Name(), a.Channel())
			}
		}
		r.byChannel[a.Channel()] = append(r.byChannel[a.Channel()], a)
	}
	return r, nil
}

// Get returns the named adapter for a channel.
func (r *Registry) Get(channel notification.Channel, name string) (Adapter, error) {
	for _, a := range r.byChannel[channel] {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownProvider, channel, name)
}

// Channel returns all adapters registered for a channel, in registration
// order.
func (r *Registry) Channel(channel notification.Channel) []Adapter {
	out := make([]Adapter, len(r.byChannel[channel]))
	copy(out, r.byChannel[channel])
	return out
}

// Channels lists the channels that have at least one adapter.
func (r *Registry) Channels() []notification.Channel {
	out := make([]notification.Channel, 0, len(r.byChannel))
	for ch := range r.byChannel {
		out = append(out, ch)
	}
	return out
}
