// Package bot is the discordgo edge of the application: the Adapter maps the
// platform capability interfaces onto a gateway session, and the Router feeds
// gateway events into the handlers and command registry.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ibis-bot/ibis/internal/platform"
)

// Adapter implements platform.Messenger, platform.Moderator and
// platform.ChannelEditor over one gateway session.
type Adapter struct {
	session *discordgo.Session
	http    *http.Client
}

func NewAdapter(session *discordgo.Session) *Adapter {
	return &Adapter{
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *Adapter) Send(ctx context.Context, channelID string, out platform.Outgoing) (platform.MessageRef, error) {
	send := &discordgo.MessageSend{
		Content:    out.Content,
		Embeds:     toEmbeds(out.Embeds),
		Components: toComponents(out.Rows),
	}
	if out.ReplyTo != nil {
		send.Reference = &discordgo.MessageReference{
			ChannelID: out.ReplyTo.ChannelID,
			MessageID: out.ReplyTo.MessageID,
		}
	}
	if out.SuppressMentions {
		send.AllowedMentions = &discordgo.MessageAllowedMentions{}
	}

	files, closers, err := a.openFiles(ctx, out.Files)
	if err != nil {
		return platform.MessageRef{}, err
	}
	defer closers()
	send.Files = files

	msg, err := a.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return platform.MessageRef{}, fmt.Errorf("send to %s: %w", channelID, err)
	}
	return platform.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (a *Adapter) Edit(ctx context.Context, ref platform.MessageRef, out platform.Outgoing) error {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	edit.SetContent(out.Content)

	// nil means "leave alone" to the API, so always pass slices to make an
	// edit without embeds or rows clear them.
	embeds := toEmbeds(out.Embeds)
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	edit.SetEmbeds(embeds)

	components := toComponents(out.Rows)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components

	if out.SuppressMentions {
		edit.AllowedMentions = &discordgo.MessageAllowedMentions{}
	}

	if _, err := a.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, ref platform.MessageRef) error {
	if err := a.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return nil
}

func (a *Adapter) Fetch(ctx context.Context, ref platform.MessageRef) (platform.Message, error) {
	msg, err := a.session.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, fmt.Errorf("fetch %s/%s: %w", ref.ChannelID, ref.MessageID, err)
	}
	return fromMessage(msg), nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	return a.Delete(ctx, ref)
}

func (a *Adapter) TimeoutMember(ctx context.Context, guildID, userID string, d time.Duration) error {
	until := time.Now().Add(d)
	if err := a.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("timeout member %s: %w", userID, err)
	}
	return nil
}

func (a *Adapter) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := a.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("rename channel %s: %w", channelID, err)
	}
	return nil
}

func (a *Adapter) ChannelName(ctx context.Context, channelID string) (string, error) {
	if ch, err := a.session.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("channel %s: %w", channelID, err)
	}
	return ch.Name, nil
}

func (a *Adapter) ChannelMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	msgs, err := a.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("channel messages %s: %w", channelID, err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fromMessage(m))
	}
	return out, nil
}

// openFiles resolves URL attachments into readers. The returned closers func
// must be called after the send completes.
func (a *Adapter) openFiles(ctx context.Context, files []platform.FileAttachment) ([]*discordgo.File, func(), error) {
	if len(files) == 0 {
		return nil, func() {}, nil
	}

	var bodies []io.Closer
	closers := func() {
		for _, b := range bodies {
			b.Close()
		}
	}

	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		var reader io.Reader
		switch {
		case f.Data != nil:
			reader = bytes.NewReader(f.Data)
		case f.URL != "":
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
			if err != nil {
				closers()
				return nil, nil, err
			}
			res, err := a.http.Do(req)
			if err != nil {
				closers()
				return nil, nil, fmt.Errorf("fetch attachment %s: %w", f.URL, err)
			}
			if res.StatusCode != http.StatusOK {
				res.Body.Close()
				closers()
				return nil, nil, fmt.Errorf("fetch attachment %s: status %d", f.URL, res.StatusCode)
			}
			bodies = append(bodies, res.Body)
			reader = res.Body
		default:
			continue
		}
		out = append(out, &discordgo.File{Name: f.Name, Reader: reader})
	}
	return out, closers, nil
}
