package antiscam

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ibis-bot/ibis/internal/platform"
)

type fakeMessenger struct {
	mu    sync.Mutex
	sends []platform.Outgoing
}

func (f *fakeMessenger) Send(ctx context.Context, channelID string, out platform.Outgoing) (platform.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, out)
	return platform.MessageRef{ChannelID: channelID, MessageID: "sent"}, nil
}

func (f *fakeMessenger) Edit(ctx context.Context, ref platform.MessageRef, out platform.Outgoing) error {
	return nil
}

func (f *fakeMessenger) Delete(ctx context.Context, ref platform.MessageRef) error { return nil }

func (f *fakeMessenger) Fetch(ctx context.Context, ref platform.MessageRef) (platform.Message, error) {
	return platform.Message{Ref: ref}, nil
}

type fakeModerator struct {
	mu       sync.Mutex
	deleted  []platform.MessageRef
	timeouts []string
}

func (f *fakeModerator) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeModerator) TimeoutMember(ctx context.Context, guildID, userID string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, userID)
	return nil
}

func feedServer(t *testing.T, domains string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"domains":%s}`, domains)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func customFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domains.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write custom domains: %v", err)
	}
	return path
}

func message(user, content string) platform.Message {
	return platform.Message{
		Ref:     platform.MessageRef{ChannelID: "c1", MessageID: "m-" + user},
		GuildID: "g1",
		Author:  platform.User{ID: user, Username: user},
		Content: content,
	}
}

func TestRefreshMergesFeedAndCustom(t *testing.T) {
	srv := feedServer(t, `["steam-free.example","discord-nitro.example"]`)
	custom := customFile(t, "domains:\n  - local-bad.example\n")

	f := New(&fakeMessenger{}, &fakeModerator{}, srv.URL, custom)
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for _, domain := range []string{"steam-free.example", "discord-nitro.example", "local-bad.example"} {
		if _, bad := f.Check("https://" + domain + "/gift"); !bad {
			t.Errorf("domain %q not blocked", domain)
		}
	}
	if _, bad := f.Check("https://github.com/some/repo"); bad {
		t.Error("clean domain blocked")
	}
}

func TestRefreshKeepsOldListOnEmptyFeed(t *testing.T) {
	srv := feedServer(t, `["bad.example"]`)
	f := New(&fakeMessenger{}, &fakeModerator{}, srv.URL, "")
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	empty := feedServer(t, `[]`)
	f.feedURL = empty.URL
	if err := f.Refresh(context.Background()); err == nil {
		t.Fatal("empty feed must be an error")
	}
	if _, bad := f.Check("https://bad.example/x"); !bad {
		t.Error("old list discarded on failed refresh")
	}
}

func TestCheckMatchesHostExactly(t *testing.T) {
	srv := feedServer(t, `["scam.example"]`)
	f := New(&fakeMessenger{}, &fakeModerator{}, srv.URL, "")
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, bad := f.Check("https://scam.example/free-nitro?x=1"); !bad {
		t.Error("path and query must not hide the domain")
	}
	if _, bad := f.Check("https://notscam.example/scam.example"); bad {
		t.Error("domain in the path must not match")
	}
	if _, bad := f.Check("https://sub.scam.example/"); bad {
		t.Error("subdomain is a different host")
	}
}

func TestHandleMessageWarnsThenTimesOut(t *testing.T) {
	srv := feedServer(t, `["scam.example"]`)
	msgr := &fakeMessenger{}
	mod := &fakeModerator{}
	f := New(msgr, mod, srv.URL, "")
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// first offense: delete and warn
	if err := f.HandleMessage(context.Background(), message("u1", "get free stuff https://scam.example/a")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(mod.deleted) != 1 {
		t.Fatalf("message not deleted: %v", mod.deleted)
	}
	if len(mod.timeouts) != 0 {
		t.Fatal("first offense must not time out")
	}
	if len(msgr.sends) != 1 || msgr.sends[0].Content == "" {
		t.Fatalf("warning not sent: %+v", msgr.sends)
	}

	// second offense: timeout with notice embed
	if err := f.HandleMessage(context.Background(), message("u1", "https://scam.example/b")); err != nil {
		t.Fatalf("HandleMessage repeat: %v", err)
	}
	if len(mod.timeouts) != 1 || mod.timeouts[0] != "u1" {
		t.Fatalf("repeat offender not timed out: %v", mod.timeouts)
	}
	last := msgr.sends[len(msgr.sends)-1]
	if len(last.Embeds) != 1 || last.Embeds[0].Title != "自動禁言" {
		t.Errorf("timeout notice missing: %+v", last)
	}
}

func TestHandleMessageIgnoresCleanContent(t *testing.T) {
	srv := feedServer(t, `["scam.example"]`)
	msgr := &fakeMessenger{}
	mod := &fakeModerator{}
	f := New(msgr, mod, srv.URL, "")
	if err := f.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := f.HandleMessage(context.Background(), message("u1", "hello https://github.com")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(mod.deleted) != 0 || len(msgr.sends) != 0 {
		t.Error("clean message must be untouched")
	}
}

func TestHandleMessageSkipsWhenListEmpty(t *testing.T) {
	f := New(&fakeMessenger{}, &fakeModerator{}, "http://unused.example", "")

	if err := f.HandleMessage(context.Background(), message("u1", "https://scam.example")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
}
