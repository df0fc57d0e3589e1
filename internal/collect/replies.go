package collect

import (
	"sync"

	"github.com/ibis-bot/ibis/internal/platform"
)

// MessageFilter accepts or rejects an inbound text message for a reply wait.
type MessageFilter func(platform.Message) bool

// ReplyWait resolves with the first channel message matching its filter. It
// resolves at most once; Cancel is idempotent and a cancelled wait never
// consumes a message.
type ReplyWait struct {
	filter MessageFilter

	mu     sync.Mutex
	ended  bool
	onEnd  func(*ReplyWait)
	result chan platform.Message
	done   chan struct{}
}

// C delivers the matched message. At most one message is ever sent.
func (w *ReplyWait) C() <-chan platform.Message {
	return w.result
}

// Done is closed once the wait resolved or was cancelled.
func (w *ReplyWait) Done() <-chan struct{} {
	return w.done
}

// Cancel ends the wait without consuming anything. Safe to call repeatedly
// and after the wait already resolved.
func (w *ReplyWait) Cancel() {
	w.end()
}

func (w *ReplyWait) end() bool {
	w.mu.Lock()
	if w.ended {
		w.mu.Unlock()
		return false
	}
	w.ended = true
	onEnd := w.onEnd
	close(w.done)
	w.mu.Unlock()

	if onEnd != nil {
		onEnd(w)
	}
	return true
}

// Dispatch offers a message; reports whether the wait consumed it.
func (w *ReplyWait) Dispatch(msg platform.Message) bool {
	w.mu.Lock()
	if w.ended || (w.filter != nil && !w.filter(msg)) {
		w.mu.Unlock()
		return false
	}

	// The result lands in the buffered channel before done closes, so an
	// observer of Done can always drain the settlement.
	w.ended = true
	w.result <- msg
	onEnd := w.onEnd
	close(w.done)
	w.mu.Unlock()

	if onEnd != nil {
		onEnd(w)
	}
	return true
}

// ReplySource opens reply waits; implemented by Replies and by test fakes.
type ReplySource interface {
	Await(channelID string, filter MessageFilter) *ReplyWait
}

// Replies tracks pending reply waits per channel and routes inbound messages
// to them. A message is consumed by at most one wait.
type Replies struct {
	mu        sync.Mutex
	byChannel map[string][]*ReplyWait
}

func NewReplies() *Replies {
	return &Replies{byChannel: make(map[string][]*ReplyWait)}
}

// Await opens a wait for the next matching message in channelID.
func (r *Replies) Await(channelID string, filter MessageFilter) *ReplyWait {
	w := &ReplyWait{
		filter: filter,
		result: make(chan platform.Message, 1),
		done:   make(chan struct{}),
	}

	w.mu.Lock()
	w.onEnd = func(ended *ReplyWait) { r.remove(channelID, ended) }
	w.mu.Unlock()

	r.mu.Lock()
	r.byChannel[channelID] = append(r.byChannel[channelID], w)
	r.mu.Unlock()

	return w
}

// Dispatch routes a channel message to the oldest matching wait. It reports
// whether any wait consumed the message.
func (r *Replies) Dispatch(msg platform.Message) bool {
	r.mu.Lock()
	pending := r.byChannel[msg.Ref.ChannelID]
	waits := make([]*ReplyWait, len(pending))
	copy(waits, pending)
	r.mu.Unlock()

	for _, w := range waits {
		if w.Dispatch(msg) {
			return true
		}
	}
	return false
}

func (r *Replies) remove(channelID string, target *ReplyWait) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waits := r.byChannel[channelID]
	for i, w := range waits {
		if w == target {
			r.byChannel[channelID] = append(waits[:i], waits[i+1:]...)
			break
		}
	}
	if len(r.byChannel[channelID]) == 0 {
		delete(r.byChannel, channelID)
	}
}
