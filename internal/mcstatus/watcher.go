package mcstatus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
)

const (
	titleUp   = "🟢伺服器-線上"
	titleDown = "🔴伺服器-停止"
)

// StatusSource provides server status; *Client satisfies it.
type StatusSource interface {
	Status(ctx context.Context) (*ServerStatus, error)
}

// Watcher polls the server and keeps the status thread in sync. Poll is
// driven by the scheduler; one call per tick.
type Watcher struct {
	source   StatusSource
	msgr     platform.Messenger
	editor   platform.ChannelEditor
	threadID string
	botID    string

	mu        sync.Mutex
	online    bool
	players   []string
	lastSeen  map[string]time.Time
	detailMsg *platform.MessageRef
}

func NewWatcher(source StatusSource, msgr platform.Messenger, editor platform.ChannelEditor, threadID, botID string) *Watcher {
	return &Watcher{
		source:   source,
		msgr:     msgr,
		editor:   editor,
		threadID: threadID,
		botID:    botID,
		lastSeen: make(map[string]time.Time),
	}
}

// Init recovers state after a restart: if the thread still shows the server
// as up, the newest bot message in it becomes the detail message again
// instead of posting a duplicate.
func (w *Watcher) Init(ctx context.Context) error {
	name, err := w.editor.ChannelName(ctx, w.threadID)
	if err != nil {
		return fmt.Errorf("read status thread: %w", err)
	}
	if !strings.HasPrefix(name, titleUp) {
		return nil
	}

	msgs, err := w.editor.ChannelMessages(ctx, w.threadID, 50)
	if err != nil {
		return fmt.Errorf("fetch status thread messages: %w", err)
	}
	for _, msg := range msgs {
		if msg.Author.ID == w.botID {
			ref := msg.Ref
			w.mu.Lock()
			w.detailMsg = &ref
			w.online = true
			w.mu.Unlock()
			logger.Info("reusing last server detail message", "message", ref.MessageID)
			return nil
		}
	}
	return nil
}

// Poll fetches the status once and applies any changes to the thread.
func (w *Watcher) Poll(ctx context.Context) error {
	status, err := w.source.Status(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(status.Players.List))
	for _, p := range status.Players.List {
		names = append(names, p.Name)
	}
	sort.Strings(names)

	w.mu.Lock()
	onlineChanged := w.online != status.Online
	playersChanged := !equalStrings(w.players, names)
	now := time.Now()
	for _, old := range w.players {
		if !contains(names, old) {
			w.lastSeen[old] = now
		}
	}
	w.online = status.Online
	w.players = names
	w.mu.Unlock()

	if onlineChanged {
		logger.Info("server status changed", "online", status.Online)
		title := titleDown
		if status.Online {
			title = titleUp
		}
		if err := w.editor.RenameChannel(ctx, w.threadID, title); err != nil {
			return fmt.Errorf("rename status thread: %w", err)
		}
	}

	if playersChanged && status.Online {
		if err := w.updateDetail(ctx, status.Players); err != nil {
			return err
		}
		title := fmt.Sprintf("%s %d/%d", titleUp, status.Players.Online, status.Players.Max)
		if err := w.editor.RenameChannel(ctx, w.threadID, title); err != nil {
			return fmt.Errorf("rename status thread: %w", err)
		}
	}
	return nil
}

func (w *Watcher) updateDetail(ctx context.Context, players Players) error {
	embed := w.detailEmbed(players)

	w.mu.Lock()
	detail := w.detailMsg
	w.mu.Unlock()

	if detail != nil {
		return w.msgr.Edit(ctx, *detail, platform.Outgoing{Embeds: []platform.Embed{embed}})
	}

	ref, err := w.msgr.Send(ctx, w.threadID, platform.Outgoing{Embeds: []platform.Embed{embed}})
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.detailMsg = &ref
	w.mu.Unlock()
	return nil
}

func (w *Watcher) detailEmbed(players Players) platform.Embed {
	names := make([]string, 0, len(players.List))
	for _, p := range players.List {
		names = append(names, p.Name)
	}
	sort.Strings(names)

	var list strings.Builder
	for _, name := range names {
		fmt.Fprintf(&list, "`%s`\n", name)
	}
	online := strings.TrimRight(list.String(), "\n")
	if len(online) > 1023 {
		online = online[:1023]
	}
	if online == "" {
		online = "無"
	}

	w.mu.Lock()
	type seen struct {
		name string
		at   time.Time
	}
	history := make([]seen, 0, len(w.lastSeen))
	for name, at := range w.lastSeen {
		history = append(history, seen{name, at})
	}
	w.mu.Unlock()
	sort.Slice(history, func(i, j int) bool { return history[i].at.After(history[j].at) })

	var seenList strings.Builder
	for _, s := range history {
		fmt.Fprintf(&seenList, "`%s` - <t:%d:R>\n", s.name, s.at.Unix())
	}
	lastSeen := strings.TrimRight(seenList.String(), "\n")
	if lastSeen == "" {
		lastSeen = "無"
	}

	return platform.Embed{
		AuthorName: "📄 伺服器資訊",
		Fields: []platform.EmbedField{
			{Name: "線上人數​​", Value: fmt.Sprintf("%d / %d", players.Online, players.Max), Inline: true},
			{Name: "​", Value: "​", Inline: true},
			{Name: "在線玩家", Value: online, Inline: true},
			{Name: "最後登入時間", Value: lastSeen, Inline: true},
			{Name: "​", Value: fmt.Sprintf("最後更新於<t:%d:R>", time.Now().Unix())},
		},
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
