package bot

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/ibis-bot/ibis/internal/platform"
)

// messageResponder answers prefix invocations with channel messages.
// Ephemeral has no message equivalent and is ignored.
type messageResponder struct {
	msgr   platform.Messenger
	origin platform.MessageRef
}

func (r *messageResponder) Acknowledge(ctx context.Context, content string) (platform.MessageRef, error) {
	return r.msgr.Send(ctx, r.origin.ChannelID, platform.Outgoing{
		Content:          content,
		ReplyTo:          &r.origin,
		SuppressMentions: true,
	})
}

func (r *messageResponder) Respond(ctx context.Context, out platform.Outgoing) error {
	if out.ReplyTo == nil {
		out.ReplyTo = &r.origin
		out.SuppressMentions = true
	}
	out.Ephemeral = false
	_, err := r.msgr.Send(ctx, r.origin.ChannelID, out)
	return err
}

// interactionResponder answers slash invocations. The first response uses the
// interaction itself; anything after that goes out as a followup.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func (r *interactionResponder) Acknowledge(ctx context.Context, content string) (platform.MessageRef, error) {
	err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return platform.MessageRef{}, err
	}
	r.mu.Lock()
	r.responded = true
	r.mu.Unlock()

	msg, err := r.session.InteractionResponse(r.interaction, discordgo.WithContext(ctx))
	if err != nil {
		return platform.MessageRef{}, err
	}
	return platform.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (r *interactionResponder) Respond(ctx context.Context, out platform.Outgoing) error {
	data := &discordgo.InteractionResponseData{
		Content:    out.Content,
		Embeds:     toEmbeds(out.Embeds),
		Components: toComponents(out.Rows),
	}
	if out.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if out.SuppressMentions {
		data.AllowedMentions = &discordgo.MessageAllowedMentions{}
	}

	r.mu.Lock()
	first := !r.responded
	r.responded = true
	r.mu.Unlock()

	if first {
		return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		}, discordgo.WithContext(ctx))
	}

	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content:    data.Content,
		Embeds:     data.Embeds,
		Components: data.Components,
		Flags:      data.Flags,
	}, discordgo.WithContext(ctx))
	return err
}
