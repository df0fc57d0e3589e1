// Package collect implements the component-activation collector: a scoped,
// bounded stream of button/select activations on one message, plus the text
// reply wait and the race combinator the editing flows are built from.
package collect

import (
	"context"
	"sync"
	"time"

	"github.com/ibis-bot/ibis/internal/platform"
)

// Filter accepts or rejects an activation, usually by comparing the
// interacting user against the command invoker.
type Filter func(platform.ComponentEvent) bool

// Options bounds a collector. Both bounds are enforced by the same collector
// instance; whichever triggers first ends it.
type Options struct {
	Max    int           // stop after this many accepted activations (0 = no cap)
	Window time.Duration // stop after this much time (0 = no deadline)
}

// EndReason tags why a collector stopped.
type EndReason string

const (
	EndLimit   EndReason = "limit"
	EndTime    EndReason = "time"
	EndStopped EndReason = "stopped"
)

// Collector delivers accepted activations on Events until it ends. A stopped
// collector never accepts another activation; Stop is idempotent and safe to
// call after the collector already ended on its own.
type Collector struct {
	filter Filter
	opts   Options

	mu        sync.Mutex
	stopped   bool
	reason    EndReason
	collected int
	timer     *time.Timer
	onStop    func(*Collector)

	events chan platform.ComponentEvent
	done   chan struct{}
}

// New builds a free-standing collector. Most callers go through
// Registry.Collect so the adapter can route activations to it.
func New(filter Filter, opts Options) *Collector {
	buf := opts.Max
	if buf <= 0 {
		buf = 8
	}

	c := &Collector{
		filter: filter,
		opts:   opts,
		events: make(chan platform.ComponentEvent, buf),
		done:   make(chan struct{}),
	}

	if opts.Window > 0 {
		c.timer = time.AfterFunc(opts.Window, func() { c.Stop(EndTime) })
	}

	return c
}

// Dispatch offers an activation to the collector. It reports whether the
// activation was accepted. Nothing is accepted after the collector ends.
func (c *Collector) Dispatch(ev platform.ComponentEvent) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	if c.filter != nil && !c.filter(ev) {
		c.mu.Unlock()
		return false
	}

	select {
	case c.events <- ev:
	default:
		// buffer full, drop rather than block the gateway goroutine
		c.mu.Unlock()
		return false
	}

	c.collected++
	hitLimit := c.opts.Max > 0 && c.collected >= c.opts.Max
	c.mu.Unlock()

	if hitLimit {
		c.Stop(EndLimit)
	}
	return true
}

// Stop ends the collector with the given reason. The first call wins; later
// calls (including the internal limit/deadline paths) are no-ops.
func (c *Collector) Stop(reason EndReason) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.reason = reason
	if c.timer != nil {
		c.timer.Stop()
	}
	onStop := c.onStop
	close(c.done)
	c.mu.Unlock()

	if onStop != nil {
		onStop(c)
	}
}

// Events streams accepted activations. The channel is never closed; select on
// Done to observe the end of the collector.
func (c *Collector) Events() <-chan platform.ComponentEvent {
	return c.events
}

// Done is closed when the collector ends, by any path.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Reason returns the end reason; empty until the collector ends.
func (c *Collector) Reason() EndReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Next waits for the next accepted activation. ok is false when the collector
// ended first; the accompanying reason tells why. An activation that was
// accepted before the end is still delivered in preference to the end event.
func (c *Collector) Next(ctx context.Context) (platform.ComponentEvent, EndReason, bool) {
	select {
	case ev := <-c.events:
		return ev, "", true
	default:
	}

	select {
	case ev := <-c.events:
		return ev, "", true
	case <-c.done:
		select {
		case ev := <-c.events:
			return ev, "", true
		default:
		}
		return platform.ComponentEvent{}, c.Reason(), false
	case <-ctx.Done():
		c.Stop(EndStopped)
		return platform.ComponentEvent{}, EndStopped, false
	}
}
