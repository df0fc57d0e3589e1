package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ibis-bot/ibis/internal/platform"
)

func infoCommand() *Command {
	cmd := &Command{
		Name:     "info",
		FullName: "bot詳細資訊",
		Detail:   "可查看目前啟用的指令。",
		Usage:    "",
		Spec: platform.CommandSpec{
			Name:        "info",
			Description: "關於bot",
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		return resp.Respond(ctx, platform.Outgoing{
			Embeds: []platform.Embed{infoEmbed(deps)},
		})
	}
	return cmd
}

func infoEmbed(deps *Deps) platform.Embed {
	names := make([]string, 0, len(deps.Registry.All()))
	for _, c := range deps.Registry.All() {
		names = append(names, "[\\✔️] "+c.Name)
	}

	fields := []platform.EmbedField{
		{Name: "運行時間", Value: formatUptime(time.Since(deps.StartedAt))},
		{Name: "指令狀態", Value: strings.Join(names, "\n"), Inline: true},
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		fields = append(fields, platform.EmbedField{
			Name:   "CPU",
			Value:  fmt.Sprintf("%.1f%%", pct[0]),
			Inline: true,
		})
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fields = append(fields, platform.EmbedField{
			Name:   "記憶體",
			Value:  fmt.Sprintf("%.0f MB / %.0f MB", float64(vm.Used)/1024/1024, float64(vm.Total)/1024/1024),
			Inline: true,
		})
	}

	return platform.Embed{
		Title:  "\\📄 詳細資訊",
		Fields: fields,
	}
}

func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	return fmt.Sprintf("%d days %d hr %d min %d sec",
		secs/86400, secs/3600%24, secs/60%60, secs%60)
}
