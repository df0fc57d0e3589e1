package collect

import (
	"sync"

	"github.com/ibis-bot/ibis/internal/platform"
)

// Source hands out collectors scoped to one message. Flow code depends on
// this instead of the concrete registry so tests can drive activations
// directly.
type Source interface {
	Collect(msg platform.MessageRef, filter Filter, opts Options) *Collector
}

// Registry routes component activations from the gateway to the collectors
// scoped to the activated message. It is the adapter-facing half of the
// collector capability.
type Registry struct {
	mu        sync.Mutex
	byMessage map[string][]*Collector
}

func NewRegistry() *Registry {
	return &Registry{byMessage: make(map[string][]*Collector)}
}

func refKey(ref platform.MessageRef) string {
	return ref.ChannelID + "/" + ref.MessageID
}

// Collect registers a collector for activations on msg. The collector removes
// itself from the registry when it ends.
func (r *Registry) Collect(msg platform.MessageRef, filter Filter, opts Options) *Collector {
	c := New(filter, opts)
	key := refKey(msg)

	c.mu.Lock()
	c.onStop = func(ended *Collector) { r.remove(key, ended) }
	c.mu.Unlock()

	r.mu.Lock()
	r.byMessage[key] = append(r.byMessage[key], c)
	r.mu.Unlock()

	return c
}

// Dispatch offers an activation to every collector scoped to its message.
// It reports whether any collector accepted it.
func (r *Registry) Dispatch(ev platform.ComponentEvent) bool {
	r.mu.Lock()
	registered := r.byMessage[refKey(ev.Message)]
	cols := make([]*Collector, len(registered))
	copy(cols, registered)
	r.mu.Unlock()

	handled := false
	for _, c := range cols {
		if c.Dispatch(ev) {
			handled = true
		}
	}
	return handled
}

func (r *Registry) remove(key string, target *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cols := r.byMessage[key]
	for i, c := range cols {
		if c == target {
			r.byMessage[key] = append(cols[:i], cols[i+1:]...)
			break
		}
	}
	if len(r.byMessage[key]) == 0 {
		delete(r.byMessage, key)
	}
}

// StopAll stops every collector scoped to msg, for example when the message
// itself was deleted.
func (r *Registry) StopAll(msg platform.MessageRef) {
	r.mu.Lock()
	registered := r.byMessage[refKey(msg)]
	cols := make([]*Collector, len(registered))
	copy(cols, registered)
	r.mu.Unlock()

	for _, c := range cols {
		c.Stop(EndStopped)
	}
}

// Active reports how many collectors are currently scoped to msg.
func (r *Registry) Active(msg platform.MessageRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byMessage[refKey(msg)])
}
