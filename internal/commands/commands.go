// Package commands holds the chat command surface: definitions, the
// registry, and each handler. Handlers receive their collaborators through
// an explicit Deps value instead of reaching for a shared client.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/menu"
	"github.com/ibis-bot/ibis/internal/platform"
)

// Invocation is one command call, from either a prefix message or a slash
// interaction. Options carries slash option values; Args the raw prefix
// tokens (Args[0] is the command name).
type Invocation struct {
	GuildID        string
	ChannelID      string
	Author         platform.User
	Subcommand     string
	Options        map[string]string
	Args           []string
	AttachmentURLs []string
}

// Option returns a named slash option, falling back to the positional prefix
// argument at index pos (1-based, after the subcommand when present).
func (inv Invocation) Option(name string, pos int) string {
	if v, ok := inv.Options[name]; ok {
		return v
	}
	if pos >= 0 && pos < len(inv.Args) {
		return inv.Args[pos]
	}
	return ""
}

// Responder abstracts how a command answers its invocation. The adapter
// backs it with either a message reply or an interaction response.
type Responder interface {
	// Acknowledge posts the editable status message the flows edit in place.
	Acknowledge(ctx context.Context, content string) (platform.MessageRef, error)
	// Respond answers directly; Ephemeral is honored for interactions.
	Respond(ctx context.Context, out platform.Outgoing) error
}

// Deps is everything a command handler may need. Registry points back at the
// registry dispatching the commands, for help and info listings.
type Deps struct {
	Registry  *Registry
	Msgr      platform.Messenger
	Cols      collect.Source
	Menu      *menu.Runner
	Keywords  *keyword.Store
	Shortener *Shortener
	Sauce     *SauceClient
	OwnerID   string
	Prefix    string
	StartedAt time.Time
}

// Command couples a definition with its handler. Usage is the prefix-form
// argument signature shown on argument errors and in help.
type Command struct {
	Name     string
	FullName string
	Detail   string
	Usage    string
	Aliases  []string
	Spec     platform.CommandSpec
	Run      func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error
}

// Registry resolves command names and aliases.
type Registry struct {
	order  []*Command
	byName map[string]*Command
}

func NewRegistry(cmds ...*Command) *Registry {
	r := &Registry{byName: make(map[string]*Command)}
	for _, c := range cmds {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c *Command) {
	r.order = append(r.order, c)
	r.byName[c.Name] = c
	for _, alias := range c.Aliases {
		r.byName[alias] = c
	}
}

// Lookup resolves a name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns the commands in registration order.
func (r *Registry) All() []*Command {
	return r.order
}

// Specs returns the slash definitions for bulk registration.
func (r *Registry) Specs() []platform.CommandSpec {
	specs := make([]platform.CommandSpec, 0, len(r.order))
	for _, c := range r.order {
		if c.Spec.Name != "" {
			specs = append(specs, c.Spec)
		}
	}
	return specs
}

// Dispatch runs the named command. Unknown names are ignored, matching how
// prefix chatter that merely resembles a command should not error.
func (r *Registry) Dispatch(ctx context.Context, name string, inv Invocation, resp Responder, deps *Deps) error {
	c, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	if err := c.Run(ctx, inv, resp, deps); err != nil {
		return fmt.Errorf("command %s: %w", c.Name, err)
	}
	return nil
}

// Default assembles the standard command set.
func Default() *Registry {
	return NewRegistry(
		replyCommand(),
		searchCommand(),
		shortenCommand(),
		infoCommand(),
		sayCommand(),
		timestampCommand(),
		helpCommand(),
	)
}

// usageHint is appended to argument errors on the prefix surface.
func usageHint(prefix string, c *Command) string {
	return fmt.Sprintf("```用法: %s%s %s```\n", prefix, c.Name, c.Usage) +
		"常常打錯指令嗎？又或者忘記指令怎麼打嗎？斜線指令或許正適合你，在對話框輸入`/`試試看吧！\n\n" +
		fmt.Sprintf("註: <>為必填 []為選擇性 |為或者，使用 `%shelp %s` 以獲得更多資訊。", prefix, c.Name)
}

// argsError reports a malformed invocation with the command's usage block.
func argsError(ctx context.Context, resp Responder, deps *Deps, c *Command) error {
	return resp.Respond(ctx, platform.Outgoing{
		Content: msgArgsMissing + "\n" + usageHint(deps.Prefix, c),
	})
}

const msgArgsMissing = "\\❌ | 指令格式錯誤。"
