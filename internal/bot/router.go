package bot

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ibis-bot/ibis/internal/alerts"
	"github.com/ibis-bot/ibis/internal/antiscam"
	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/commands"
	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/logger"
	"github.com/ibis-bot/ibis/internal/platform"
	"github.com/ibis-bot/ibis/internal/repair"
)

// previewGrace is how long a keyword reply gets to render its link preview
// before the router falls back to re-sending the image as an upload.
const previewGrace = 1500 * time.Millisecond

var statuses = []string{
	"關鍵字回覆",
	"壞掉的連結",
	"可疑的網址",
}

// Router registers gateway handlers and fans events out to the application.
type Router struct {
	session  *discordgo.Session
	adapter  *Adapter
	registry *commands.Registry
	deps     *commands.Deps
	cols     *collect.Registry
	replies  *collect.Replies
	prefix   string

	fixer    *repair.Fixer
	antiscam *antiscam.Filter
	alerter  *alerts.Alerter

	grace time.Duration
}

type RouterOption func(*Router)

// WithPreviewGrace shortens the native-preview wait in tests.
func WithPreviewGrace(d time.Duration) RouterOption {
	return func(r *Router) { r.grace = d }
}

// WithAlerter forwards handler failures to the owner alerter.
func WithAlerter(a *alerts.Alerter) RouterOption {
	return func(r *Router) { r.alerter = a }
}

func NewRouter(
	session *discordgo.Session,
	adapter *Adapter,
	registry *commands.Registry,
	deps *commands.Deps,
	cols *collect.Registry,
	replies *collect.Replies,
	fixer *repair.Fixer,
	scam *antiscam.Filter,
	opts ...RouterOption,
) *Router {
	r := &Router{
		session:  session,
		adapter:  adapter,
		registry: registry,
		deps:     deps,
		cols:     cols,
		replies:  replies,
		prefix:   deps.Prefix,
		fixer:    fixer,
		antiscam: scam,
		grace:    previewGrace,
	}
	session.AddHandler(r.onReady)
	session.AddHandler(r.onMessageCreate)
	session.AddHandler(r.onMessageDelete)
	session.AddHandler(r.onInteractionCreate)
	return r
}

func (r *Router) onReady(s *discordgo.Session, ev *discordgo.Ready) {
	logger.Info("gateway ready", "user", ev.User.Username)

	specs := r.registry.Specs()
	defs := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, toApplicationCommand(spec))
	}
	if _, err := s.ApplicationCommandBulkOverwrite(ev.User.ID, "", defs); err != nil {
		logger.Error("slash command sync failed", "error", err)
	} else {
		logger.Info("slash commands synced", "count", len(defs))
	}
}

// RotateStatus cycles the watching presence until ctx ends.
func (r *Router) RotateStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	idx := 0
	r.setStatus(statuses[idx])
	for {
		select {
		case <-ticker.C:
			idx = (idx + 1) % len(statuses)
			r.setStatus(statuses[idx])
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) setStatus(text string) {
	err := r.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{
			{Name: text, Type: discordgo.ActivityTypeWatching},
		},
	})
	if err != nil {
		logger.Debug("presence update failed", "error", err)
	}
}

func (r *Router) onMessageCreate(s *discordgo.Session, ev *discordgo.MessageCreate) {
	if ev.Author == nil || ev.Author.Bot {
		return
	}
	msg := fromMessage(ev.Message)
	ctx := context.Background()

	// Pending reply waits (menu add flows) consume the message outright.
	if r.replies.Dispatch(msg) {
		return
	}

	if strings.HasPrefix(msg.Content, r.prefix) {
		r.dispatchPrefix(ctx, msg)
		return
	}

	if r.antiscam != nil {
		if err := r.antiscam.HandleMessage(ctx, msg); err != nil {
			r.fail("antiscam", "message handler failed", err)
		}
	}

	if handled := r.keywordReply(ctx, msg); handled {
		return
	}

	if r.fixer != nil {
		if err := r.fixer.HandleMessage(ctx, msg); err != nil {
			logger.Debug("preview repair skipped", "error", err)
		}
	}
}

// fail logs a handler failure and forwards it to the owner alerter when one
// is configured.
func (r *Router) fail(component, message string, err error) {
	logger.Error(message, "component", component, "error", err)
	if r.alerter != nil {
		r.alerter.Warn(component, message, err)
	}
}

func (r *Router) dispatchPrefix(ctx context.Context, msg platform.Message) {
	args := strings.Fields(strings.TrimPrefix(msg.Content, r.prefix))
	if len(args) == 0 {
		return
	}

	inv := commands.Invocation{
		GuildID:        msg.GuildID,
		ChannelID:      msg.Ref.ChannelID,
		Author:         msg.Author,
		Args:           args,
		AttachmentURLs: msg.AttachmentURLs,
	}
	resp := &messageResponder{msgr: r.adapter, origin: msg.Ref}

	if err := r.registry.Dispatch(ctx, args[0], inv, resp, r.deps); err != nil {
		r.fail("commands", "prefix command failed", err)
	}
}

// keywordReply answers an exact keyword match with a random stored image.
// When the link renders no native preview within the grace period, the sent
// message is replaced by a direct file upload.
func (r *Router) keywordReply(ctx context.Context, msg platform.Message) bool {
	store := r.deps.Keywords
	if store == nil || msg.GuildID == "" {
		return false
	}

	rec, err := store.Match(ctx, msg.GuildID, msg.Content)
	if errors.Is(err, keyword.ErrNotFound) {
		return false
	}
	if err != nil {
		logger.Error("keyword match failed", "error", err)
		return false
	}
	if len(rec.Responses) == 0 {
		return false
	}

	choice := rec.Responses[rand.Intn(len(rec.Responses))]
	ref, err := r.adapter.Send(ctx, msg.Ref.ChannelID, platform.Outgoing{
		Content:          choice.URL,
		ReplyTo:          &msg.Ref,
		SuppressMentions: true,
	})
	if err != nil {
		logger.Error("keyword reply failed", "error", err)
		return true
	}

	go r.ensurePreview(ref, msg.Ref, choice.URL)
	return true
}

func (r *Router) ensurePreview(sent, origin platform.MessageRef, url string) {
	time.Sleep(r.grace)
	ctx := context.Background()

	current, err := r.adapter.Fetch(ctx, sent)
	if err != nil || current.EmbedCount > 0 {
		return
	}

	if err := r.adapter.Delete(ctx, sent); err != nil {
		logger.Debug("preview fallback delete failed", "error", err)
	}
	_, err = r.adapter.Send(ctx, origin.ChannelID, platform.Outgoing{
		ReplyTo:          &origin,
		SuppressMentions: true,
		Files:            []platform.FileAttachment{{Name: "image.png", URL: url}},
	})
	if err != nil {
		logger.Error("preview fallback upload failed", "error", err)
	}
}

func (r *Router) onMessageDelete(s *discordgo.Session, ev *discordgo.MessageDelete) {
	ctx := context.Background()
	if r.fixer != nil {
		r.fixer.OriginDeleted(ctx, ev.ID)
	}
	r.cols.StopAll(platform.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.ID})
}

func (r *Router) onInteractionCreate(s *discordgo.Session, ev *discordgo.InteractionCreate) {
	switch ev.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleCommand(ev)
	case discordgo.InteractionApplicationCommandAutocomplete:
		r.handleAutocomplete(ev)
	case discordgo.InteractionMessageComponent:
		r.handleComponent(ev)
	}
}

func (r *Router) handleCommand(ev *discordgo.InteractionCreate) {
	data := ev.ApplicationCommandData()
	inv := commands.Invocation{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		Author:    interactionUser(ev),
		Options:   make(map[string]string),
	}

	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		inv.Subcommand = opts[0].Name
		opts = opts[0].Options
	}
	for _, opt := range opts {
		inv.Options[opt.Name] = optionString(opt)
	}

	resp := &interactionResponder{session: r.session, interaction: ev.Interaction}
	if err := r.registry.Dispatch(context.Background(), data.Name, inv, resp, r.deps); err != nil {
		r.fail("commands", "slash command failed", err)
	}
}

func (r *Router) handleAutocomplete(ev *discordgo.InteractionCreate) {
	data := ev.ApplicationCommandData()
	if data.Name != "reply" {
		return
	}

	var partial string
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	for _, opt := range opts {
		if opt.Name == "keyword" && opt.Focused {
			partial = opt.StringValue()
		}
	}

	matches := commands.ReplyAutocomplete(context.Background(), r.deps, ev.GuildID, partial)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(matches))
	for _, m := range matches {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: m, Value: m})
	}

	err := r.session.InteractionRespond(ev.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		logger.Debug("autocomplete respond failed", "error", err)
	}
}

func (r *Router) handleComponent(ev *discordgo.InteractionCreate) {
	if ev.Message == nil {
		return
	}
	data := ev.MessageComponentData()

	handled := r.cols.Dispatch(platform.ComponentEvent{
		Message:  platform.MessageRef{ChannelID: ev.ChannelID, MessageID: ev.Message.ID},
		User:     interactionUser(ev),
		CustomID: data.CustomID,
		Values:   data.Values,
	})

	// Always acknowledge so the client does not show a failed interaction;
	// the owning flow edits the message itself.
	err := r.session.InteractionRespond(ev.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		logger.Debug("component ack failed", "error", err, "handled", handled)
	}
}

func interactionUser(ev *discordgo.InteractionCreate) platform.User {
	if ev.Member != nil && ev.Member.User != nil {
		return fromUser(ev.Member.User)
	}
	return fromUser(ev.User)
}

func optionString(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(opt.IntValue(), 10)
	case discordgo.ApplicationCommandOptionChannel:
		if v, ok := opt.Value.(string); ok {
			return v
		}
		return ""
	default:
		return opt.StringValue()
	}
}
