package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ibis-bot/ibis/internal/platform"
)

func timestampCommand() *Command {
	cmd := &Command{
		Name:     "timestamp",
		FullName: "Discord timestamp 產生器",
		Detail:   "轉換時間成Discord timestamp",
		Usage:    "<年> <月> <日> <時> <分>",
		Spec: platform.CommandSpec{
			Name:        "timestamp",
			Description: "產生 Discord Timestamp",
			Options: []platform.CommandOption{
				{Type: platform.OptionInteger, Name: "year", Description: "年分", Required: true},
				{Type: platform.OptionInteger, Name: "month", Description: "月分", Required: true},
				{Type: platform.OptionInteger, Name: "day", Description: "日(0~31)", Required: true},
				{Type: platform.OptionInteger, Name: "hour", Description: "小時(24小時制)", Required: true},
				{Type: platform.OptionInteger, Name: "min", Description: "分鐘(0~59)", Required: true},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		parts := make([]int, 5)
		for i, name := range []string{"year", "month", "day", "hour", "min"} {
			v, err := strconv.Atoi(inv.Option(name, i+1))
			if err != nil {
				return argsError(ctx, resp, deps, cmd)
			}
			parts[i] = v
		}

		t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.Local)
		return resp.Respond(ctx, platform.Outgoing{
			Embeds:    []platform.Embed{timestampEmbed(t.Unix())},
			Ephemeral: true,
		})
	}
	return cmd
}

// timestampEmbed lays the format variants out in a three-column grid, with
// zero-width-space fields as row breaks.
func timestampEmbed(unix int64) platform.Embed {
	field := func(style string) platform.EmbedField {
		tag := fmt.Sprintf("<t:%d%s>", unix, style)
		return platform.EmbedField{Name: "`" + tag + "`", Value: tag, Inline: true}
	}
	gap := platform.EmbedField{Name: "​", Value: "​", Inline: true}

	return platform.Embed{
		AuthorName: "Discord Timestamps",
		Fields: []platform.EmbedField{
			field(""), field(":R"), gap,
			field(":D"), field(":T"), gap,
			field(":d"),
		},
	}
}
