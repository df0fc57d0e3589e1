// Package platform defines the chat-platform capability surface the rest of
// the bot is written against. The discordgo adapter in internal/bot implements
// these interfaces; tests use in-memory fakes.
package platform

import (
	"context"
	"time"
)

// MessageRef identifies one message on the platform.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// User is the minimal author identity carried through flows.
type User struct {
	ID       string
	Username string
	Bot      bool
}

// Message is an inbound chat message as seen by handlers.
type Message struct {
	Ref            MessageRef
	GuildID        string
	Author         User
	Content        string
	AttachmentURLs []string
	EmbedCount     int
	EmbedURLs      []string
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a platform-neutral rich embed.
type Embed struct {
	URL         string
	AuthorName  string
	AuthorIcon  string
	Title       string
	Description string
	Fields      []EmbedField
	ImageURL    string
	ThumbURL    string
	FooterText  string
	FooterIcon  string
	Color       int
	Timestamp   time.Time
}

// ButtonStyle mirrors the platform's button palette.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interactive button attached to a message.
type Button struct {
	ID       string
	Label    string
	Style    ButtonStyle
	Emoji    string
	Disabled bool
}

// SelectOption is one entry of a single-select menu.
type SelectOption struct {
	Label string
	Value string
}

// Select is a single-choice select menu attached to a message.
type Select struct {
	ID          string
	Placeholder string
	Options     []SelectOption
}

// Row is one action row; a row holds either buttons or one select menu.
type Row struct {
	Buttons []Button
	Select  *Select
}

// FileAttachment is a file sent alongside a message. Exactly one of URL or
// Data is set; URL attachments are fetched by the adapter.
type FileAttachment struct {
	Name string
	URL  string
	Data []byte
}

// Outgoing is the full shape of a message send or edit. On edit, zero-value
// Embeds/Rows clear the corresponding part of the message.
type Outgoing struct {
	Content          string
	Embeds           []Embed
	Rows             []Row
	Files            []FileAttachment
	ReplyTo          *MessageRef
	SuppressMentions bool
	Ephemeral        bool
}

// ComponentEvent is a single component activation (button press or select
// choice) delivered by the collector capability.
type ComponentEvent struct {
	Message  MessageRef
	User     User
	CustomID string
	Values   []string
}

// Messenger sends, edits, deletes and fetches messages.
type Messenger interface {
	Send(ctx context.Context, channelID string, out Outgoing) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, out Outgoing) error
	Delete(ctx context.Context, ref MessageRef) error
	Fetch(ctx context.Context, ref MessageRef) (Message, error)
}

// Moderator covers the moderation actions the anti-phishing filter needs.
type Moderator interface {
	DeleteMessage(ctx context.Context, ref MessageRef) error
	TimeoutMember(ctx context.Context, guildID, userID string, d time.Duration) error
}

// ChannelEditor renames channels and threads (server status tracker).
type ChannelEditor interface {
	RenameChannel(ctx context.Context, channelID, name string) error
	ChannelName(ctx context.Context, channelID string) (string, error)
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]Message, error)
}
