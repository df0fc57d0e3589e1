package commands

import (
	"context"

	"github.com/ibis-bot/ibis/internal/menu"
	"github.com/ibis-bot/ibis/internal/platform"
)

const (
	subNew  = "new"
	subEdit = "edit"
	subGet  = "get"
)

func replyCommand() *Command {
	cmd := &Command{
		Name:     "reply",
		FullName: "建立/編輯觸發詞",
		Detail:   "使用者打出特定詞彙時會回覆對應圖片。",
		Usage:    "<new|edit> <關鍵字> [圖片網址]",
		Spec: platform.CommandSpec{
			Name:        "reply",
			Description: "建立/編輯觸發詞",
			Subcommands: []platform.Subcommand{
				{
					Name:        subNew,
					Description: "新增觸發詞",
					Options: []platform.CommandOption{
						{Type: platform.OptionString, Name: "keyword", Description: "觸發詞", Required: true},
						{Type: platform.OptionString, Name: "url", Description: "回應的圖片", Required: true},
					},
				},
				{
					Name:        subEdit,
					Description: "編輯觸發詞",
					Options: []platform.CommandOption{
						{Type: platform.OptionString, Name: "keyword", Description: "目標觸發詞", Required: true, Autocomplete: true},
					},
				},
				{
					Name:        subGet,
					Description: "取圖模式",
					Options: []platform.CommandOption{
						{Type: platform.OptionString, Name: "keyword", Description: "目標觸發詞", Required: true, Autocomplete: true},
					},
				},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		return runReply(ctx, inv, resp, deps, cmd)
	}
	return cmd
}

func runReply(ctx context.Context, inv Invocation, resp Responder, deps *Deps, cmd *Command) error {
	sub := inv.Subcommand
	if sub == "" && len(inv.Args) > 1 {
		sub = inv.Args[1]
	}

	switch sub {
	case subGet:
		out, err := deps.Menu.Preview(ctx, inv.GuildID, inv.Option("keyword", 2))
		if err != nil {
			return err
		}
		return resp.Respond(ctx, out)

	case subNew, subEdit:
		// Handled below.

	default:
		return argsError(ctx, resp, deps, cmd)
	}

	keyword := inv.Option("keyword", 2)
	content := inv.Option("url", 3)
	if content == "" && len(inv.AttachmentURLs) > 0 {
		content = inv.AttachmentURLs[0]
	}

	if keyword == "" || (sub == subNew && content == "") {
		return argsError(ctx, resp, deps, cmd)
	}

	editable, err := resp.Acknowledge(ctx, "處理中...")
	if err != nil {
		return err
	}

	req := menu.Request{
		GuildID:  inv.GuildID,
		Editable: editable,
		Author:   inv.Author,
		Keyword:  keyword,
		ImageURL: content,
	}
	if sub == subNew {
		return deps.Menu.New(ctx, req)
	}
	return deps.Menu.Edit(ctx, req)
}

// ReplyAutocomplete serves the keyword option for the edit and get
// subcommands, capped at 8 choices.
func ReplyAutocomplete(ctx context.Context, deps *Deps, guildID, partial string) []string {
	if partial == "" {
		return nil
	}
	matches, err := deps.Keywords.SearchPrefix(ctx, guildID, partial, 8)
	if err != nil {
		return nil
	}
	return matches
}
