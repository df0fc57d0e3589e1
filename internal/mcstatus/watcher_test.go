package mcstatus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ibis-bot/ibis/internal/platform"
)

type fakeSource struct {
	status *ServerStatus
	err    error
}

func (f *fakeSource) Status(ctx context.Context) (*ServerStatus, error) {
	return f.status, f.err
}

type fakeEditor struct {
	mu      sync.Mutex
	name    string
	renames []string
	msgs    []platform.Message
}

func (f *fakeEditor) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
	f.renames = append(f.renames, name)
	return nil
}

func (f *fakeEditor) ChannelName(ctx context.Context, channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, nil
}

func (f *fakeEditor) ChannelMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	return f.msgs, nil
}

type fakeMessenger struct {
	mu    sync.Mutex
	sends []platform.Outgoing
	edits []platform.Outgoing
	seq   int
}

func (f *fakeMessenger) Send(ctx context.Context, channelID string, out platform.Outgoing) (platform.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.sends = append(f.sends, out)
	return platform.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("sent-%d", f.seq)}, nil
}

func (f *fakeMessenger) Edit(ctx context.Context, ref platform.MessageRef, out platform.Outgoing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, out)
	return nil
}

func (f *fakeMessenger) Delete(ctx context.Context, ref platform.MessageRef) error { return nil }

func (f *fakeMessenger) Fetch(ctx context.Context, ref platform.MessageRef) (platform.Message, error) {
	return platform.Message{Ref: ref}, nil
}

func online(names ...string) *ServerStatus {
	players := make([]Player, len(names))
	for i, n := range names {
		players[i] = Player{Name: n}
	}
	return &ServerStatus{
		Online:  true,
		Players: Players{Online: len(names), Max: 20, List: players},
	}
}

func TestPollOnlineTransitionRenamesThread(t *testing.T) {
	src := &fakeSource{status: online("alice")}
	editor := &fakeEditor{name: titleDown}
	w := NewWatcher(src, &fakeMessenger{}, editor, "t1", "bot")

	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(editor.renames) == 0 || !strings.HasPrefix(editor.renames[0], titleUp) {
		t.Fatalf("thread not renamed up: %v", editor.renames)
	}
	// player-count suffix comes with the detail update
	if got := editor.name; got != fmt.Sprintf("%s 1/20", titleUp) {
		t.Errorf("final name %q", got)
	}
}

func TestPollOfflineTransition(t *testing.T) {
	src := &fakeSource{status: online("alice")}
	editor := &fakeEditor{name: titleDown}
	w := NewWatcher(src, &fakeMessenger{}, editor, "t1", "bot")
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	src.status = &ServerStatus{Online: false}
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll down: %v", err)
	}
	if editor.name != titleDown {
		t.Errorf("thread not renamed down: %q", editor.name)
	}
}

func TestPollDetailMessageSentOnceThenEdited(t *testing.T) {
	src := &fakeSource{status: online("alice")}
	editor := &fakeEditor{name: titleDown}
	msgr := &fakeMessenger{}
	w := NewWatcher(src, msgr, editor, "t1", "bot")

	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("want 1 detail send, got %d", len(msgr.sends))
	}

	src.status = online("alice", "bob")
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll again: %v", err)
	}
	if len(msgr.sends) != 1 {
		t.Errorf("detail message re-sent instead of edited")
	}
	if len(msgr.edits) != 1 {
		t.Fatalf("want 1 edit, got %d", len(msgr.edits))
	}

	embed := msgr.edits[0].Embeds[0]
	if embed.AuthorName != "📄 伺服器資訊" {
		t.Errorf("unexpected embed author %q", embed.AuthorName)
	}
	var playerField string
	for _, f := range embed.Fields {
		if f.Name == "在線玩家" {
			playerField = f.Value
		}
	}
	if !strings.Contains(playerField, "`alice`") || !strings.Contains(playerField, "`bob`") {
		t.Errorf("player list incomplete: %q", playerField)
	}
}

func TestPollUnchangedPlayersNoEdit(t *testing.T) {
	src := &fakeSource{status: online("alice")}
	editor := &fakeEditor{name: titleDown}
	msgr := &fakeMessenger{}
	w := NewWatcher(src, msgr, editor, "t1", "bot")

	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll again: %v", err)
	}
	if len(msgr.sends)+len(msgr.edits) != 1 {
		t.Errorf("detail updated without a change: sends=%d edits=%d", len(msgr.sends), len(msgr.edits))
	}
}

func TestPollRecordsLastSeen(t *testing.T) {
	src := &fakeSource{status: online("alice", "bob")}
	editor := &fakeEditor{name: titleDown}
	msgr := &fakeMessenger{}
	w := NewWatcher(src, msgr, editor, "t1", "bot")
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	src.status = online("alice")
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll after leave: %v", err)
	}

	embed := msgr.edits[len(msgr.edits)-1].Embeds[0]
	var seenField string
	for _, f := range embed.Fields {
		if f.Name == "最後登入時間" {
			seenField = f.Value
		}
	}
	if !strings.Contains(seenField, "`bob`") {
		t.Errorf("departed player not in last-seen list: %q", seenField)
	}
}

func TestInitReusesDetailMessage(t *testing.T) {
	editor := &fakeEditor{
		name: titleUp + " 2/20",
		msgs: []platform.Message{
			{Ref: platform.MessageRef{ChannelID: "t1", MessageID: "other"}, Author: platform.User{ID: "someone"}},
			{Ref: platform.MessageRef{ChannelID: "t1", MessageID: "detail"}, Author: platform.User{ID: "bot"}},
		},
	}
	msgr := &fakeMessenger{}
	src := &fakeSource{status: online("alice")}
	w := NewWatcher(src, msgr, editor, "t1", "bot")

	if err := w.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := w.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(msgr.sends) != 0 {
		t.Error("detail message duplicated after restart")
	}
	if len(msgr.edits) != 1 {
		t.Errorf("reused detail message not edited: %d", len(msgr.edits))
	}
}

func TestInitSkipsWhenThreadDown(t *testing.T) {
	editor := &fakeEditor{name: titleDown}
	w := NewWatcher(&fakeSource{}, &fakeMessenger{}, editor, "t1", "bot")

	if err := w.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detailMsg != nil {
		t.Error("detail message must not be recovered from a down thread")
	}
}
