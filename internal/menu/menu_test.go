package menu

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/gate"
	"github.com/ibis-bot/ibis/internal/imagehost"
	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/platform"
)

var (
	editable = platform.MessageRef{ChannelID: "c1", MessageID: "m1"}
	author   = platform.User{ID: "u1", Username: "alice"}
)

// memStore is an in-memory Store double.
type memStore struct {
	mu   sync.Mutex
	recs []*keyword.Record
}

func (m *memStore) find(guildID, kw string) *keyword.Record {
	for _, rec := range m.recs {
		if rec.GuildID != guildID {
			continue
		}
		for _, k := range rec.Keywords {
			if k == kw {
				return rec
			}
		}
	}
	return nil
}

func (m *memStore) Find(ctx context.Context, guildID, kw string) (*keyword.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.find(guildID, kw)
	if rec == nil {
		return nil, keyword.ErrNotFound
	}
	cp := *rec
	cp.Keywords = append([]string(nil), rec.Keywords...)
	cp.Responses = append([]keyword.Response(nil), rec.Responses...)
	return &cp, nil
}

func (m *memStore) Exists(ctx context.Context, guildID, kw string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(guildID, kw) != nil, nil
}

func (m *memStore) Create(ctx context.Context, rec *keyword.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) PushKeyword(ctx context.Context, guildID, target, kw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.find(guildID, target)
	if rec == nil {
		return keyword.ErrNotFound
	}
	rec.Keywords = append(rec.Keywords, kw)
	return nil
}

func (m *memStore) PushResponse(ctx context.Context, guildID, target string, resp keyword.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.find(guildID, target)
	if rec == nil {
		return keyword.ErrNotFound
	}
	rec.Responses = append(rec.Responses, resp)
	return nil
}

func (m *memStore) PullKeyword(ctx context.Context, guildID, target, kw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.find(guildID, target)
	if rec == nil {
		return keyword.ErrNotFound
	}
	kept := rec.Keywords[:0]
	for _, k := range rec.Keywords {
		if k != kw {
			kept = append(kept, k)
		}
	}
	rec.Keywords = kept
	return nil
}

func (m *memStore) PullResponse(ctx context.Context, guildID, target, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.find(guildID, target)
	if rec == nil {
		return keyword.ErrNotFound
	}
	kept := rec.Responses[:0]
	for _, r := range rec.Responses {
		if r.URL != url {
			kept = append(kept, r)
		}
	}
	rec.Responses = kept
	return nil
}

func (m *memStore) Delete(ctx context.Context, guildID, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.recs {
		if rec.GuildID != guildID {
			continue
		}
		for _, k := range rec.Keywords {
			if k == target {
				m.recs = append(m.recs[:i], m.recs[i+1:]...)
				return nil
			}
		}
	}
	return keyword.ErrNotFound
}

// fakeMessenger records interactions.
type fakeMessenger struct {
	mu      sync.Mutex
	sends   []platform.Outgoing
	edits   []platform.Outgoing
	deleted []platform.MessageRef
	seq     int
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

func (f *fakeMessenger) Delete(ctx context.Context, ref platform.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeMessenger) Fetch(ctx context.Context, ref platform.MessageRef) (platform.Message, error) {
	return platform.Message{Ref: ref}, nil
}

func (f *fakeMessenger) lastEdit(t *testing.T) platform.Outgoing {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("no edits recorded")
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeMessenger) deletedRefs() []platform.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.MessageRef(nil), f.deleted...)
}

// fakeHost scripts the image host.
type fakeHost struct {
	mu      sync.Mutex
	fail    bool
	uploads []string
	deleted []string
}

func (f *fakeHost) Upload(ctx context.Context, sourceURL string) (imagehost.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return imagehost.Image{}, imagehost.ErrUploadFailed
	}
	f.uploads = append(f.uploads, sourceURL)
	n := len(f.uploads)
	return imagehost.Image{
		URL:        fmt.Sprintf("https://hosted.example/%d.png", n),
		DeleteHash: fmt.Sprintf("h-%d", n),
	}, nil
}

func (f *fakeHost) Delete(ctx context.Context, deleteHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, deleteHash)
	return nil
}

// fakeGate resolves every confirmation with a scripted answer.
type fakeGate struct {
	mu     sync.Mutex
	answer bool
	calls  []gate.Request
}

func (f *fakeGate) Confirm(ctx context.Context, req gate.Request) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.answer, nil
}

type fixture struct {
	msgr    *fakeMessenger
	store   *memStore
	host    *fakeHost
	gate    *fakeGate
	reg     *collect.Registry
	replies *collect.Replies
	runner  *Runner
}

func newFixture() *fixture {
	f := &fixture{
		msgr:    &fakeMessenger{},
		store:   &memStore{},
		host:    &fakeHost{},
		gate:    &fakeGate{answer: true},
		reg:     collect.NewRegistry(),
		replies: collect.NewReplies(),
	}
	f.runner = NewRunner(f.msgr, f.store, f.host, f.gate, f.reg, f.replies)
	return f
}

func (f *fixture) seed(keywords []string, responses []keyword.Response) {
	f.store.recs = append(f.store.recs, &keyword.Record{
		GuildID:   "g1",
		Keywords:  keywords,
		Responses: responses,
		CreatedBy: author.ID,
	})
}

func request() Request {
	return Request{
		GuildID:  "g1",
		Editable: editable,
		Author:   author,
		Keyword:  "hello",
		ImageURL: "https://pics.example/cat.png",
	}
}

// press dispatches a component activation once a collector is listening.
func (f *fixture) press(t *testing.T, ev platform.ComponentEvent) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if f.reg.Dispatch(ev) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("no collector accepted the activation")
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fixture) pressButton(t *testing.T, customID string) {
	t.Helper()
	f.press(t, platform.ComponentEvent{Message: editable, User: author, CustomID: customID})
}

func (f *fixture) choose(t *testing.T, value string) {
	t.Helper()
	f.press(t, platform.ComponentEvent{
		Message: editable, User: author, CustomID: selectList, Values: []string{value},
	})
}

// reply feeds a channel message once a reply wait is armed.
func (f *fixture) reply(t *testing.T, content string) {
	t.Helper()
	msg := platform.Message{
		Ref:     platform.MessageRef{ChannelID: editable.ChannelID, MessageID: "reply-1"},
		GuildID: "g1",
		Author:  author,
		Content: content,
	}
	deadline := time.After(2 * time.Second)
	for {
		if f.replies.Dispatch(msg) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("no reply wait consumed the message")
		case <-time.After(time.Millisecond):
		}
	}
}

func runEdit(t *testing.T, f *fixture, drive func()) {
	t.Helper()
	errs := make(chan error, 1)
	go func() { errs <- f.runner.Edit(context.Background(), request()) }()
	drive()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Edit: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Edit never returned")
	}
}

func TestNewCreatesRecord(t *testing.T) {
	f := newFixture()

	if err := f.runner.New(context.Background(), request()); err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := f.store.find("g1", "hello")
	if rec == nil {
		t.Fatal("record not created")
	}
	if len(rec.Responses) != 1 || rec.Responses[0].DeleteHash != "h-1" {
		t.Fatalf("unexpected responses: %+v", rec.Responses)
	}
	if rec.CreatedBy != author.ID {
		t.Errorf("creator not recorded: %q", rec.CreatedBy)
	}

	final := f.msgr.lastEdit(t)
	if len(final.Embeds) != 1 || !strings.Contains(final.Embeds[0].Title, "觸發詞成功加入清單") {
		t.Errorf("missing success embed: %+v", final)
	}
}

func TestNewConflict(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})

	if err := f.runner.New(context.Background(), request()); err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := f.msgr.lastEdit(t).Content; got != msgKeywordExists {
		t.Errorf("want conflict notice, got %q", got)
	}
	if len(f.host.uploads) != 0 {
		t.Error("conflict must not upload")
	}
	if len(f.gate.calls) != 0 {
		t.Error("conflict must not open a confirmation")
	}
}

func TestNewRejectedByGate(t *testing.T) {
	f := newFixture()
	f.gate.answer = false

	if err := f.runner.New(context.Background(), request()); err != nil {
		t.Fatalf("New: %v", err)
	}

	if f.store.find("g1", "hello") != nil {
		t.Error("rejected confirmation must not create a record")
	}
	if len(f.host.uploads) != 0 {
		t.Error("rejected confirmation must not upload")
	}
}

func TestEditMissingKeyword(t *testing.T) {
	f := newFixture()

	if err := f.runner.Edit(context.Background(), request()); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := f.msgr.lastEdit(t).Content; got != msgKeywordMissing {
		t.Errorf("want missing notice, got %q", got)
	}
}

func TestEditExitEndsMenu(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnExit)
	})

	final := f.msgr.lastEdit(t)
	if final.Content != msgMenuEnded {
		t.Errorf("want end notice, got %q", final.Content)
	}
	if len(final.Rows) != 0 {
		t.Error("ended menu must carry no components")
	}
}

func TestEditAddKeyword(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnAddKeyword)
		f.reply(t, "hi")
	})

	rec := f.store.find("g1", "hi")
	if rec == nil {
		t.Fatal("keyword not appended")
	}
	if got := f.msgr.lastEdit(t).Content; got != msgUpdated {
		t.Errorf("want success notice, got %q", got)
	}

	// the prompt and the user's reply are cleaned up
	var cleaned int
	for _, ref := range f.msgr.deletedRefs() {
		if ref.MessageID == "sent-1" || ref.MessageID == "reply-1" {
			cleaned++
		}
	}
	if cleaned != 2 {
		t.Errorf("prompt/reply not cleaned up, deleted=%v", f.msgr.deletedRefs())
	}
}

func TestEditAddKeywordConflict(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})
	f.seed([]string{"hi"}, []keyword.Response{{URL: "https://hosted.example/1.png"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnAddKeyword)
		f.reply(t, "hi")
	})

	if got := f.msgr.lastEdit(t).Content; got != msgKeywordExists {
		t.Errorf("want conflict notice, got %q", got)
	}
	if rec := f.store.find("g1", "hello"); len(rec.Keywords) != 1 {
		t.Errorf("conflicting keyword was appended: %v", rec.Keywords)
	}
}

func TestEditExitWinsRace(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnAddKeyword)
		// exit pressed instead of replying
		f.pressButton(t, btnExit)
	})

	if got := f.msgr.lastEdit(t).Content; got != msgMenuEnded {
		t.Errorf("want end notice, got %q", got)
	}

	// the ask prompt is removed and the abandoned reply wait is gone, so a
	// late reply is not consumed
	if got := f.replies.Dispatch(platform.Message{
		Ref:    platform.MessageRef{ChannelID: editable.ChannelID, MessageID: "late"},
		Author: author,
	}); got {
		t.Error("late reply consumed after exit")
	}
}

func TestEditAddContent(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png", DeleteHash: "h-0"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnAddContent)
		f.reply(t, "https://pics.example/dog.png")
	})

	rec := f.store.find("g1", "hello")
	if len(rec.Responses) != 2 {
		t.Fatalf("response not appended: %+v", rec.Responses)
	}
	if rec.Responses[1].DeleteHash != "h-1" {
		t.Errorf("hosted copy not recorded: %+v", rec.Responses[1])
	}
	if len(f.gate.calls) != 1 || f.gate.calls[0].ImageURL != "https://pics.example/dog.png" {
		t.Errorf("confirmation not run on the reply content: %+v", f.gate.calls)
	}
	if got := f.msgr.lastEdit(t).Content; got != msgUpdated {
		t.Errorf("want success notice, got %q", got)
	}
}

func TestEditAddContentUploadFails(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})
	f.host.fail = true

	runEdit(t, f, func() {
		f.pressButton(t, btnAddContent)
		f.reply(t, "https://pics.example/dog.png")
	})

	if got := f.msgr.lastEdit(t).Content; got != msgUploadFailed {
		t.Errorf("want upload failure notice, got %q", got)
	}
	if rec := f.store.find("g1", "hello"); len(rec.Responses) != 1 {
		t.Errorf("failed upload must not be recorded: %+v", rec.Responses)
	}
}

func TestEditDeleteNoOptions(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png", DeleteHash: "h-0"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnDelete)
		f.pressButton(t, btnDeleteAll)
	})

	if f.store.find("g1", "hello") != nil {
		t.Error("record survived delete-all")
	}
	if len(f.host.deleted) != 1 || f.host.deleted[0] != "h-0" {
		t.Errorf("hosted image not revoked: %v", f.host.deleted)
	}

	// with one keyword and one image there is nothing to pick individually
	var deleteMenu *platform.Outgoing
	f.msgr.mu.Lock()
	for i := range f.msgr.edits {
		if f.msgr.edits[i].Content == msgDeleteWholeHint {
			deleteMenu = &f.msgr.edits[i]
		}
	}
	f.msgr.mu.Unlock()
	if deleteMenu == nil {
		t.Fatal("delete-whole hint never shown")
	}
	for _, row := range deleteMenu.Rows {
		if row.Select != nil {
			t.Error("no select menu expected when nothing can be picked")
		}
	}
}

func TestEditDeleteSingleKeyword(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello", "hi"}, []keyword.Response{{URL: "https://hosted.example/0.png", DeleteHash: "h-0"}})

	runEdit(t, f, func() {
		f.pressButton(t, btnDelete)
		f.choose(t, tagKeyword+"hi")
	})

	rec := f.store.find("g1", "hello")
	if rec == nil || len(rec.Keywords) != 1 {
		t.Fatalf("keyword not pulled: %+v", rec)
	}
	if len(f.host.deleted) != 0 {
		t.Error("keyword delete must not touch hosted images")
	}
	if got := f.msgr.lastEdit(t).Content; !strings.Contains(got, "觸發詞 `hi`") {
		t.Errorf("unexpected removal notice: %q", got)
	}
}

func TestEditDeleteSingleImage(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{
		{URL: "https://hosted.example/0.png", DeleteHash: "h-0"},
		{URL: "https://hosted.example/1.png", DeleteHash: "h-1"},
	})

	runEdit(t, f, func() {
		f.pressButton(t, btnDelete)
		f.choose(t, tagImage+"https://hosted.example/1.png")
	})

	rec := f.store.find("g1", "hello")
	if len(rec.Responses) != 1 || rec.Responses[0].DeleteHash != "h-0" {
		t.Fatalf("response not pulled: %+v", rec.Responses)
	}
	if len(f.host.deleted) != 1 || f.host.deleted[0] != "h-1" {
		t.Errorf("wrong hosted image revoked: %v", f.host.deleted)
	}
}

func TestEditDeleteOptionsAreTagged(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello", "k:tricky"}, []keyword.Response{
		{URL: "https://hosted.example/0.png", DeleteHash: "h-0"},
	})

	runEdit(t, f, func() {
		f.pressButton(t, btnDelete)
		// a keyword that itself looks like a tagged image value must still
		// round-trip as a keyword
		f.choose(t, tagKeyword+"k:tricky")
	})

	rec := f.store.find("g1", "hello")
	if rec == nil {
		t.Fatal("record lost")
	}
	for _, kw := range rec.Keywords {
		if kw == "k:tricky" {
			t.Fatalf("tagged keyword not pulled: %v", rec.Keywords)
		}
	}
	if len(f.host.deleted) != 0 {
		t.Error("keyword delete must not touch hosted images")
	}
}

func TestPreview(t *testing.T) {
	f := newFixture()
	f.seed([]string{"hello"}, []keyword.Response{{URL: "https://hosted.example/0.png"}})

	out, err := f.runner.Preview(context.Background(), "g1", "hello")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !out.Ephemeral {
		t.Error("preview must be ephemeral")
	}
	if len(out.Embeds) != 1 || out.Embeds[0].ImageURL != "https://hosted.example/0.png" {
		t.Errorf("unexpected preview embed: %+v", out.Embeds)
	}

	miss, err := f.runner.Preview(context.Background(), "g1", "nope")
	if err != nil {
		t.Fatalf("Preview miss: %v", err)
	}
	if miss.Content != msgKeywordMissing {
		t.Errorf("want missing notice, got %q", miss.Content)
	}
}

var _ Store = (*keyword.Store)(nil)
