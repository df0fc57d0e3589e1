// Package antiscam removes phishing links. The blocklist merges a community
// feed with a locally maintained domain file and is refreshed on a schedule.
package antiscam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
	"github.com/ibis-bot/ibis/internal/scrape"
)

// DefaultFeedURL is the community-maintained phishing domain list.
const DefaultFeedURL = "https://raw.githubusercontent.com/nikolaischunk/discord-phishing-links/main/domain-list.json"

const timeoutDuration = time.Hour

// Filter checks messages against the blocklist and punishes senders.
// First offense deletes the message and warns; a repeat offender is timed
// out for an hour.
type Filter struct {
	msgr    platform.Messenger
	mod     platform.Moderator
	feedURL string
	custom  string
	http    *http.Client

	mu       sync.RWMutex
	domains  map[string]struct{}
	badUsers map[string]struct{}
}

func New(msgr platform.Messenger, mod platform.Moderator, feedURL, customFile string) *Filter {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Filter{
		msgr:     msgr,
		mod:      mod,
		feedURL:  feedURL,
		custom:   customFile,
		http:     &http.Client{Timeout: 30 * time.Second},
		domains:  make(map[string]struct{}),
		badUsers: make(map[string]struct{}),
	}
}

type domainList struct {
	Domains []string `json:"domains" yaml:"domains"`
}

// Refresh replaces the blocklist with the latest feed plus the custom file.
// The old list stays active if the feed is unreachable.
func (f *Filter) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.feedURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch domain feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch domain feed: status %d", resp.StatusCode)
	}

	var feed domainList
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return fmt.Errorf("decode domain feed: %w", err)
	}
	if len(feed.Domains) == 0 {
		return fmt.Errorf("domain feed came back empty")
	}

	merged := make(map[string]struct{}, len(feed.Domains))
	for _, d := range feed.Domains {
		merged[d] = struct{}{}
	}

	if f.custom != "" {
		raw, err := os.ReadFile(f.custom)
		if err != nil {
			return fmt.Errorf("read custom domains: %w", err)
		}
		var custom domainList
		if err := yaml.Unmarshal(raw, &custom); err != nil {
			return fmt.Errorf("parse custom domains: %w", err)
		}
		for _, d := range custom.Domains {
			merged[d] = struct{}{}
		}
	}

	f.mu.Lock()
	f.domains = merged
	f.mu.Unlock()

	logger.Info("phishing domain list updated", "domains", len(merged))
	return nil
}

// Check reports the first blocklisted domain found in content.
func (f *Filter) Check(content string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, raw := range scrape.ExtractURLs(content) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if _, bad := f.domains[u.Hostname()]; bad {
			return u.Hostname(), true
		}
	}
	return "", false
}

// HandleMessage screens one inbound message.
func (f *Filter) HandleMessage(ctx context.Context, msg platform.Message) error {
	f.mu.RLock()
	empty := len(f.domains) == 0
	f.mu.RUnlock()
	if empty {
		logger.Warn("phishing domain list empty, skipping check")
		return nil
	}

	domain, bad := f.Check(msg.Content)
	if !bad {
		return nil
	}

	logger.Info("phishing link detected",
		"domain", domain, "user", msg.Author.Username, "channel", msg.Ref.ChannelID)

	if err := f.mod.DeleteMessage(ctx, msg.Ref); err != nil {
		return fmt.Errorf("delete phishing message: %w", err)
	}

	f.mu.Lock()
	_, repeat := f.badUsers[msg.Author.ID]
	if !repeat {
		f.badUsers[msg.Author.ID] = struct{}{}
	}
	f.mu.Unlock()

	if repeat {
		_, err := f.msgr.Send(ctx, msg.Ref.ChannelID, platform.Outgoing{
			Embeds: []platform.Embed{{
				Title: "自動禁言",
				Fields: []platform.EmbedField{
					{Name: "使用者", Value: msg.Author.Username, Inline: true},
					{Name: "原因", Value: "發送釣魚連結", Inline: true},
				},
			}},
		})
		if err != nil {
			return err
		}
		return f.mod.TimeoutMember(ctx, msg.GuildID, msg.Author.ID, timeoutDuration)
	}

	_, err := f.msgr.Send(ctx, msg.Ref.ChannelID, platform.Outgoing{
		Content: fmt.Sprintf("<@%s> 偵測到釣魚連結，已自動移除。請注意累犯將會被禁言！", msg.Author.ID),
	})
	return err
}
