package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/ibis-bot/ibis/internal/platform"
)

func helpCommand() *Command {
	cmd := &Command{
		Name:     "help",
		FullName: "help",
		Detail:   "查詢指令用法及詳細資訊",
		Usage:    "[指令名]",
		Spec: platform.CommandSpec{
			Name:        "help",
			Description: "查詢指令用法及詳細資訊",
			Options: []platform.CommandOption{
				{Type: platform.OptionString, Name: "command", Description: "指令名"},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		name := inv.Option("command", 1)
		if name == "" {
			return resp.Respond(ctx, platform.Outgoing{
				Embeds: []platform.Embed{helpCatalog(deps)},
			})
		}

		target, ok := deps.Registry.Lookup(name)
		if !ok {
			return nil
		}
		return resp.Respond(ctx, platform.Outgoing{
			Embeds: []platform.Embed{helpDetail(deps, target)},
		})
	}
	return cmd
}

func helpCatalog(deps *Deps) platform.Embed {
	names := make([]string, 0, len(deps.Registry.All()))
	for _, c := range deps.Registry.All() {
		names = append(names, "`"+c.Name+"`")
	}
	return platform.Embed{
		Title:       "\\❔ 指令清單",
		Description: fmt.Sprintf("輸入 `%shelp [指令名]` 取得更詳細的資訊。", deps.Prefix),
		Fields: []platform.EmbedField{
			{Name: "指令", Value: strings.Join(names, " ")},
		},
	}
}

func helpDetail(deps *Deps, c *Command) platform.Embed {
	usage := strings.TrimSpace(fmt.Sprintf("%s%s %s", deps.Prefix, c.Name, c.Usage))
	lines := []string{usage}
	if c.Spec.Name != "" {
		lines = append(lines, "/"+c.Spec.Name)
	}
	fields := []platform.EmbedField{
		{Name: "使用", Value: strings.Join(lines, "\n")},
	}
	if len(c.Aliases) > 0 {
		fields = append(fields, platform.EmbedField{
			Name:  "別名",
			Value: "`" + strings.Join(c.Aliases, "` `") + "`",
		})
	}
	return platform.Embed{
		Title:       c.FullName,
		Description: c.Detail,
		Fields:      fields,
	}
}
