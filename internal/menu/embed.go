package menu

import (
	"strings"

	"github.com/ibis-bot/ibis/internal/keyword"
	"github.com/ibis-bot/ibis/internal/platform"
)

type embedKind int

const (
	embedEdit embedKind = iota
	embedPreview
	embedConflict
)

// keywordEmbed renders a record. The session's target keyword is bolded in
// the keyword column.
func keywordEmbed(rec *keyword.Record, target string, kind embedKind) platform.Embed {
	keywords := make([]string, len(rec.Keywords))
	for i, kw := range rec.Keywords {
		if kw == target {
			keywords[i] = "**" + kw + "**"
		} else {
			keywords[i] = kw
		}
	}

	urls := make([]string, len(rec.Responses))
	for i, resp := range rec.Responses {
		urls[i] = resp.URL
	}

	embed := platform.Embed{
		Fields: []platform.EmbedField{
			{Name: "觸發詞⠀⠀", Value: strings.Join(keywords, "\n"), Inline: true},
		},
	}
	if len(urls) > 0 {
		embed.ThumbURL = urls[0]
	}

	switch kind {
	case embedEdit:
		embed.AuthorName = "🔍 編輯觸發詞"
		embed.Fields = append(embed.Fields,
			platform.EmbedField{Name: "圖片", Value: strings.Join(urls, "\n"), Inline: true})

	case embedPreview:
		embed.AuthorName = "🔍 預覽觸發詞"
		embed.Fields = append(embed.Fields,
			platform.EmbedField{Name: "圖片", Value: strings.Join(urls, "\n"), Inline: true})
		if len(urls) > 0 {
			embed.ImageURL = urls[0]
			embed.ThumbURL = ""
		}

	case embedConflict:
		embed.AuthorName = "與此觸發詞衝突"
	}

	return embed
}
