package commands

import (
	"context"
	"strings"

	"github.com/ibis-bot/ibis/internal/platform"
)

func sayCommand() *Command {
	cmd := &Command{
		Name:     "say",
		FullName: "代理發言",
		Detail:   "使用bot發送匿名訊息",
		Usage:    "<內容>",
		Spec: platform.CommandSpec{
			Name:        "say",
			Description: "代理發言",
			Options: []platform.CommandOption{
				{Type: platform.OptionString, Name: "message", Description: "內容", Required: true},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		content := inv.Options["message"]
		if content == "" && len(inv.Args) > 1 {
			content = strings.Join(inv.Args[1:], " ")
		}
		if content == "" {
			return argsError(ctx, resp, deps, cmd)
		}
		if _, err := deps.Msgr.Send(ctx, inv.ChannelID, platform.Outgoing{Content: content}); err != nil {
			return err
		}
		return resp.Respond(ctx, platform.Outgoing{
			Content:          "\\✔️ | 已發送！",
			Ephemeral:        true,
			SuppressMentions: true,
		})
	}
	return cmd
}
