// Package repair replaces broken link previews: when the platform fails to
// render a tweet or article link, the bot posts a repaired preview and keeps
// a short-lived record tying it to the origin message.
package repair

import (
	"sync"

	"github.com/ibis-bot/ibis/internal/platform"
)

// DefaultQueueSize bounds how many repaired messages stay tracked.
const DefaultQueueSize = 10

// Entry ties an origin message to the repaired preview posted for it.
type Entry struct {
	Origin   platform.MessageRef
	Repaired platform.MessageRef
}

// Queue is a bounded FIFO of repair entries. When full, the oldest entry is
// dropped from tracking; the repaired message itself stays in the channel.
type Queue struct {
	mu      sync.Mutex
	size    int
	entries []Entry
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{size: size}
}

// Add tracks a new repair, evicting the oldest entry past capacity.
func (q *Queue) Add(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, e)
	if len(q.entries) > q.size {
		q.entries = q.entries[1:]
	}
}

// RemoveRepaired drops the entry whose repaired message has the given ID.
func (q *Queue) RemoveRepaired(repairedID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.Repaired.MessageID == repairedID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// TakeByOrigin removes and returns the entry for a deleted origin message.
func (q *Queue) TakeByOrigin(originID string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.Origin.MessageID == originID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// Len reports how many repairs are tracked.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
