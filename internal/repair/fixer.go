package repair

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
	"github.com/ibis-bot/ibis/internal/scrape"
)

const (
	btnDismiss = "repair:dismiss"

	twitterIcon = "https://abs.twimg.com/icons/apple-touch-icon-192x192.png"
)

// TweetSource scrapes tweet content; *scrape.TweetScraper satisfies it.
type TweetSource interface {
	Scrape(ctx context.Context, tweetURL string) (*scrape.TweetData, error)
}

// MetaSource fetches page metadata; *scrape.MetadataFetcher satisfies it.
type MetaSource interface {
	Fetch(ctx context.Context, pageURL string) (*scrape.Metadata, error)
}

// Fixer watches inbound messages for links whose previews the platform fails
// to render and posts a repaired preview underneath.
type Fixer struct {
	msgr   platform.Messenger
	cols   collect.Source
	queue  *Queue
	tweets TweetSource
	meta   MetaSource

	checkDelay    time.Duration
	dismissWindow time.Duration
}

type Option func(*Fixer)

// WithCheckDelay overrides the 8 second wait before checking whether the
// origin grew a native preview.
func WithCheckDelay(d time.Duration) Option {
	return func(f *Fixer) { f.checkDelay = d }
}

// WithDismissWindow overrides the 60 second lifetime of the dismiss button.
func WithDismissWindow(d time.Duration) Option {
	return func(f *Fixer) { f.dismissWindow = d }
}

func NewFixer(msgr platform.Messenger, cols collect.Source, queue *Queue, tweets TweetSource, meta MetaSource, opts ...Option) *Fixer {
	f := &Fixer{
		msgr:          msgr,
		cols:          cols,
		queue:         queue,
		tweets:        tweets,
		meta:          meta,
		checkDelay:    8 * time.Second,
		dismissWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HandleMessage inspects one inbound message and posts a repaired preview if
// any of its links needs one. Spoilered messages are never repaired.
func (f *Fixer) HandleMessage(ctx context.Context, msg platform.Message) error {
	if scrape.HasSpoiler(msg.Content) {
		return nil
	}

	var tweetURLs, articleURLs []*url.URL
	for _, raw := range scrape.ExtractURLs(msg.Content) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		switch u.Hostname() {
		case "twitter.com", "x.com":
			// only status links carry a tweet; profile links preview fine
			if tweetID(u) != "" && !hasEmbedFor(msg, u) {
				tweetURLs = append(tweetURLs, u)
			}
		case "liff.line.me":
			articleURLs = append(articleURLs, u)
		}
	}
	if len(tweetURLs) == 0 && len(articleURLs) == 0 {
		return nil
	}

	out := platform.Outgoing{
		ReplyTo:          &msg.Ref,
		SuppressMentions: true,
		Rows: []platform.Row{{Buttons: []platform.Button{
			{ID: btnDismiss, Label: "不需要", Style: platform.ButtonDanger},
		}}},
	}

	if len(tweetURLs) > 0 {
		embeds, files, err := f.fixTweet(ctx, tweetURLs[0])
		if err != nil {
			logger.Warn("tweet preview repair failed", "url", tweetURLs[0].String(), "error", err)
		} else {
			out.Embeds = append(out.Embeds, embeds...)
			out.Files = append(out.Files, files...)
		}
	}
	for _, u := range articleURLs {
		embed, err := f.fixArticle(ctx, u)
		if err != nil {
			logger.Warn("article preview repair failed", "url", u.String(), "error", err)
			continue
		}
		out.Embeds = append(out.Embeds, *embed)
	}

	if len(out.Embeds) == 0 && len(out.Files) == 0 {
		return fmt.Errorf("no preview could be repaired")
	}

	repaired, err := f.msgr.Send(ctx, msg.Ref.ChannelID, out)
	if err != nil {
		return fmt.Errorf("send repaired preview: %w", err)
	}

	f.queue.Add(Entry{Origin: msg.Ref, Repaired: repaired})

	go f.watchDismiss(repaired, msg.Author)
	go f.watchNativePreview(msg.Ref, repaired)
	return nil
}

// OriginDeleted removes the repaired preview when its origin message is
// deleted.
func (f *Fixer) OriginDeleted(ctx context.Context, originID string) {
	entry, ok := f.queue.TakeByOrigin(originID)
	if !ok {
		return
	}

	logger.Info("origin message deleted, removing repaired preview",
		"origin", originID, "repaired", entry.Repaired.MessageID)
	if err := f.msgr.Delete(ctx, entry.Repaired); err != nil {
		logger.Warn("repaired preview cleanup failed", "error", err)
	}
}

// watchDismiss lets the origin author remove the repair within the window.
// After the window the button is stripped and the preview stays.
func (f *Fixer) watchDismiss(repaired platform.MessageRef, author platform.User) {
	col := f.cols.Collect(repaired, func(ev platform.ComponentEvent) bool {
		return ev.User.ID == author.ID && ev.CustomID == btnDismiss
	}, collect.Options{Max: 1, Window: f.dismissWindow})

	ctx, done := context.WithTimeout(context.Background(), f.dismissWindow+10*time.Second)
	defer done()

	_, reason, ok := col.Next(ctx)
	switch {
	case ok:
		f.queue.RemoveRepaired(repaired.MessageID)
		if err := f.msgr.Delete(ctx, repaired); err != nil {
			logger.Warn("dismissed preview delete failed", "error", err)
		}
	case reason == collect.EndTime:
		if err := f.msgr.Edit(ctx, repaired, platform.Outgoing{}); err != nil {
			logger.Debug("dismiss button strip failed", "error", err)
		}
	}
}

// watchNativePreview removes the repair if the origin message renders its
// own preview after all.
func (f *Fixer) watchNativePreview(origin, repaired platform.MessageRef) {
	time.Sleep(f.checkDelay)

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	msg, err := f.msgr.Fetch(ctx, origin)
	if err != nil {
		return
	}
	if msg.EmbedCount == 0 {
		return
	}

	f.queue.RemoveRepaired(repaired.MessageID)
	if err := f.msgr.Delete(ctx, repaired); err != nil {
		logger.Debug("redundant preview delete failed", "error", err)
	}
}

func (f *Fixer) fixTweet(ctx context.Context, u *url.URL) ([]platform.Embed, []platform.FileAttachment, error) {
	if f.tweets == nil {
		return nil, nil, fmt.Errorf("tweet scraping disabled")
	}
	data, err := f.tweets.Scrape(ctx, u.String())
	if err != nil {
		return nil, nil, err
	}

	main := platform.Embed{
		URL:         data.URL,
		AuthorName:  fmt.Sprintf("%s (%s)", data.AuthorName, data.AuthorID),
		AuthorIcon:  data.AuthorPfp,
		Description: data.Description,
		Fields: []platform.EmbedField{
			{Name: "喜歡", Value: data.Likes, Inline: true},
			{Name: "轉推", Value: data.Retweets, Inline: true},
		},
		FooterText: fmt.Sprintf("推文預覽  •  %s 次查看", data.Views),
		FooterIcon: twitterIcon,
		Timestamp:  data.Timestamp,
	}

	var files []platform.FileAttachment
	switch data.MediaType {
	case scrape.TweetMediaImage:
		if len(data.MediaURLs) > 0 {
			main.ImageURL = data.MediaURLs[0]
		}
	case scrape.TweetMediaVideo:
		for _, media := range data.MediaURLs {
			files = append(files, platform.FileAttachment{Name: "preview.mp4", URL: media})
		}
	}

	embeds := []platform.Embed{main}
	if data.MediaType == scrape.TweetMediaImage && len(data.MediaURLs) > 1 {
		for _, media := range data.MediaURLs[1:] {
			embeds = append(embeds, platform.Embed{URL: data.URL, ImageURL: media})
		}
	}
	return embeds, files, nil
}

// fixArticle resolves the in-app article link to its public address and
// builds an embed from the page metadata.
func (f *Fixer) fixArticle(ctx context.Context, u *url.URL) (*platform.Embed, error) {
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("unrecognized article path %q", u.Path)
	}
	publicURL := "https://today.line.me/tw/" + strings.Join(parts[2:], "/")

	meta, err := f.meta.Fetch(ctx, publicURL)
	if err != nil {
		return nil, err
	}

	return &platform.Embed{
		URL:         meta.URL,
		AuthorName:  meta.Publisher,
		Title:       meta.Headline,
		Description: meta.Description,
		ThumbURL:    meta.Image,
		FooterText:  meta.Provider,
		Timestamp:   meta.Published,
	}, nil
}

// tweetID pulls the status ID out of /<user>/status/<id> paths.
func tweetID(u *url.URL) string {
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(parts) >= 3 && parts[1] == "status" {
		return parts[2]
	}
	return ""
}

func hasEmbedFor(msg platform.Message, u *url.URL) bool {
	for _, existing := range msg.EmbedURLs {
		if existing == u.String() {
			return true
		}
	}
	return false
}
