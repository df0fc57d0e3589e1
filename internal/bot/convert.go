package bot

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ibis-bot/ibis/internal/platform"
)

func fromUser(u *discordgo.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{ID: u.ID, Username: u.Username, Bot: u.Bot}
}

func fromMessage(m *discordgo.Message) platform.Message {
	msg := platform.Message{
		Ref:        platform.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID},
		GuildID:    m.GuildID,
		Author:     fromUser(m.Author),
		Content:    m.Content,
		EmbedCount: len(m.Embeds),
	}
	for _, att := range m.Attachments {
		msg.AttachmentURLs = append(msg.AttachmentURLs, att.URL)
	}
	for _, e := range m.Embeds {
		switch {
		case e.Image != nil && e.Image.URL != "":
			msg.EmbedURLs = append(msg.EmbedURLs, e.Image.URL)
		case e.Thumbnail != nil && e.Thumbnail.URL != "":
			msg.EmbedURLs = append(msg.EmbedURLs, e.Thumbnail.URL)
		case e.URL != "":
			msg.EmbedURLs = append(msg.EmbedURLs, e.URL)
		}
	}
	return msg
}

func toEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		out = append(out, toEmbed(e))
	}
	return out
}

func toEmbed(e platform.Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		URL:         e.URL,
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIcon}
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.ThumbURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbURL}
	}
	if e.FooterText != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.FooterText, IconURL: e.FooterIcon}
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func toButtonStyle(s platform.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func toComponents(rows []platform.Row) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return nil
	}
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		ar := discordgo.ActionsRow{}
		if row.Select != nil {
			menu := discordgo.SelectMenu{
				CustomID:    row.Select.ID,
				Placeholder: row.Select.Placeholder,
			}
			for _, opt := range row.Select.Options {
				menu.Options = append(menu.Options, discordgo.SelectMenuOption{
					Label: opt.Label,
					Value: opt.Value,
				})
			}
			ar.Components = append(ar.Components, menu)
		}
		for _, b := range row.Buttons {
			btn := discordgo.Button{
				CustomID: b.ID,
				Label:    b.Label,
				Style:    toButtonStyle(b.Style),
				Disabled: b.Disabled,
			}
			if b.Emoji != "" {
				btn.Emoji = &discordgo.ComponentEmoji{Name: b.Emoji}
			}
			ar.Components = append(ar.Components, btn)
		}
		out = append(out, ar)
	}
	return out
}

func toOptionType(t platform.OptionType) discordgo.ApplicationCommandOptionType {
	switch t {
	case platform.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case platform.OptionChannel:
		return discordgo.ApplicationCommandOptionChannel
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

func toCommandOptions(opts []platform.CommandOption) []*discordgo.ApplicationCommandOption {
	out := make([]*discordgo.ApplicationCommandOption, 0, len(opts))
	for _, o := range opts {
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:         toOptionType(o.Type),
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			Autocomplete: o.Autocomplete,
		})
	}
	return out
}

func toApplicationCommand(spec platform.CommandSpec) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        spec.Name,
		Description: spec.Description,
	}
	if len(spec.Subcommands) > 0 {
		for _, sub := range spec.Subcommands {
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        sub.Name,
				Description: sub.Description,
				Options:     toCommandOptions(sub.Options),
			})
		}
		return cmd
	}
	cmd.Options = toCommandOptions(spec.Options)
	return cmd
}
