// Package gate implements the image confirmation step of the editing flows:
// the bot shows the candidate image with yes/no buttons and resolves exactly
// once, to accepted, rejected or timed out.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
)

const (
	confirmYes = "gate:yes"
	confirmNo  = "gate:no"
)

// ErrActive means the target message already has a confirmation in flight.
var ErrActive = errors.New("confirmation already active for this message")

// Request describes one confirmation to run. Editable is the bot's own status
// message; the gate edits it in place through every phase.
type Request struct {
	Editable platform.MessageRef
	Author   platform.User
	Keyword  string
	ImageURL string
}

// Gate runs confirmations. At most one confirmation can be active per
// editable message at a time.
type Gate struct {
	msgr platform.Messenger
	cols collect.Source

	window      time.Duration
	deleteDelay time.Duration

	mu     sync.Mutex
	active map[platform.MessageRef]struct{}
}

type Option func(*Gate)

// WithWindow overrides the 60 second decision window.
func WithWindow(d time.Duration) Option {
	return func(g *Gate) { g.window = d }
}

// WithDeleteDelay overrides the 5 second grace before a cancelled
// confirmation message is removed.
func WithDeleteDelay(d time.Duration) Option {
	return func(g *Gate) { g.deleteDelay = d }
}

func New(msgr platform.Messenger, cols collect.Source, opts ...Option) *Gate {
	g := &Gate{
		msgr:        msgr,
		cols:        cols,
		window:      60 * time.Second,
		deleteDelay: 5 * time.Second,
		active:      make(map[platform.MessageRef]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Confirm shows the confirmation controls and blocks until the author
// decides or the window elapses. It returns true only on an explicit yes.
// The no and timeout paths edit the message to a cancel notice and remove it
// shortly after.
func (g *Gate) Confirm(ctx context.Context, req Request) (bool, error) {
	if !validImageURL(req.ImageURL) {
		err := g.msgr.Edit(ctx, req.Editable, platform.Outgoing{
			Content: "\\❌ | 圖片網址不正確。",
		})
		return false, err
	}

	if !g.acquire(req.Editable) {
		return false, ErrActive
	}
	defer g.release(req.Editable)

	embed := platform.Embed{
		AuthorName: "請確認以下內容是否正確",
		Fields: []platform.EmbedField{
			{Name: "觸發詞", Value: req.Keyword},
		},
		ImageURL:   req.ImageURL,
		FooterText: fmt.Sprintf("時限 %d 秒", int(g.window/time.Second)),
	}
	rows := []platform.Row{{Buttons: []platform.Button{
		{ID: confirmYes, Label: "Yes", Style: platform.ButtonSuccess},
		{ID: confirmNo, Label: "No", Style: platform.ButtonDanger},
	}}}

	err := g.msgr.Edit(ctx, req.Editable, platform.Outgoing{
		Content: "確認階段",
		Embeds:  []platform.Embed{embed},
		Rows:    rows,
	})
	if err != nil {
		return false, err
	}

	filter := func(ev platform.ComponentEvent) bool {
		if ev.User.ID != req.Author.ID {
			return false
		}
		return ev.CustomID == confirmYes || ev.CustomID == confirmNo
	}
	col := g.cols.Collect(req.Editable, filter, collect.Options{
		Max:    1,
		Window: g.window,
	})

	ev, reason, ok := col.Next(ctx)
	switch {
	case ok && ev.CustomID == confirmYes:
		err := g.msgr.Edit(ctx, req.Editable, platform.Outgoing{
			Content: "已確認，上傳圖片中...",
		})
		return true, err

	case ok:
		return false, g.cancel(ctx, req.Editable, "\\❎ | 取消中...")

	case reason == collect.EndTime:
		return false, g.cancel(ctx, req.Editable, "\\❎ | 時限已過，取消中...")

	default:
		return false, ctx.Err()
	}
}

// cancel swaps the confirmation for a short notice and removes the message
// after the grace period.
func (g *Gate) cancel(ctx context.Context, ref platform.MessageRef, notice string) error {
	if err := g.msgr.Edit(ctx, ref, platform.Outgoing{Content: notice}); err != nil {
		return err
	}

	time.AfterFunc(g.deleteDelay, func() {
		dctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := g.msgr.Delete(dctx, ref); err != nil {
			logger.Warn("cancel notice cleanup failed", "channel", ref.ChannelID, "error", err)
		}
	})
	return nil
}

func (g *Gate) acquire(ref platform.MessageRef) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[ref]; busy {
		return false
	}
	g.active[ref] = struct{}{}
	return true
}

func (g *Gate) release(ref platform.MessageRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, ref)
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
