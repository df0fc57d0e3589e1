package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ibis-bot/ibis/internal/collect"
	"github.com/ibis-bot/ibis/internal/platform"
)

const sauceEndpoint = "https://saucenao.com/search.php"

// SauceClient queries the SauceNao reverse-image search API.
type SauceClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewSauceClient(apiKey string) *SauceClient {
	return &SauceClient{
		apiKey:  apiKey,
		baseURL: sauceEndpoint,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SauceResult is one match, flattened from the API's header/data split.
type SauceResult struct {
	Similarity string
	Thumbnail  string
	IndexName  string
	URL        string
	Title      string
	Author     string
	Source     string
}

type sauceEnvelope struct {
	Results []struct {
		Header struct {
			Similarity string `json:"similarity"`
			Thumbnail  string `json:"thumbnail"`
			IndexName  string `json:"index_name"`
		} `json:"header"`
		Data struct {
			ExtURLs    []string        `json:"ext_urls"`
			Title      string          `json:"title"`
			MemberName string          `json:"member_name"`
			AuthorName string          `json:"author_name"`
			Creator    json.RawMessage `json:"creator"`
			Source     string          `json:"source"`
		} `json:"data"`
	} `json:"results"`
}

// Search returns matches for the image at imageURL, best first.
func (c *SauceClient) Search(ctx context.Context, imageURL string) ([]SauceResult, error) {
	q := url.Values{}
	q.Set("output_type", "2")
	q.Set("api_key", c.apiKey)
	q.Set("url", imageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("saucenao request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("saucenao status %d", res.StatusCode)
	}

	var env sauceEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("saucenao response: %w", err)
	}

	results := make([]SauceResult, 0, len(env.Results))
	for _, r := range env.Results {
		sr := SauceResult{
			Similarity: r.Header.Similarity,
			Thumbnail:  r.Header.Thumbnail,
			IndexName:  r.Header.IndexName,
			Title:      r.Data.Title,
			Source:     r.Data.Source,
		}
		if len(r.Data.ExtURLs) > 0 {
			sr.URL = r.Data.ExtURLs[0]
		}
		switch {
		case r.Data.MemberName != "":
			sr.Author = r.Data.MemberName
		case r.Data.AuthorName != "":
			sr.Author = r.Data.AuthorName
		default:
			// creator is a string on most indexes and an array on a few
			var one string
			if json.Unmarshal(r.Data.Creator, &one) == nil {
				sr.Author = one
			} else {
				var many []string
				if json.Unmarshal(r.Data.Creator, &many) == nil && len(many) > 0 {
					sr.Author = strings.Join(many, ", ")
				}
			}
		}
		results = append(results, sr)
	}
	return results, nil
}

const (
	btnPagePrev = "search:previous"
	btnPageNext = "search:next"

	msgURLNotFound  = "\\❌ | 沒有附加圖片或未偵測到圖片。"
	msgURLIncorrect = "\\❌ | 圖片網址不正確。"
	msgNoResults    = "\\❌ | 找不到相似的圖片。"

	pagerWindow = time.Minute
)

func searchCommand() *Command {
	cmd := &Command{
		Name:     "search",
		FullName: "SauceNao圖片搜尋",
		Detail:   "上傳圖片至SauceNao.com查詢",
		Usage:    "<圖片網址>",
		Aliases:  []string{"find", "sn"},
		Spec: platform.CommandSpec{
			Name:        "search",
			Description: "圖片搜尋",
			Options: []platform.CommandOption{
				{Type: platform.OptionString, Name: "url", Description: "圖片網址", Required: true},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		return runSearch(ctx, inv, resp, deps)
	}
	return cmd
}

func runSearch(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
	editable, err := resp.Acknowledge(ctx, "處理中...")
	if err != nil {
		return err
	}

	target := inv.Option("url", 1)
	if target == "" && len(inv.AttachmentURLs) > 0 {
		target = inv.AttachmentURLs[0]
	}
	if target == "" {
		return deps.Msgr.Edit(ctx, editable, platform.Outgoing{Content: msgURLNotFound})
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return deps.Msgr.Edit(ctx, editable, platform.Outgoing{Content: msgURLIncorrect})
	}

	results, err := deps.Sauce.Search(ctx, target)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return deps.Msgr.Edit(ctx, editable, platform.Outgoing{Content: msgNoResults})
	}

	return browseResults(ctx, deps, editable, inv.Author, results)
}

// browseResults pages through the matches with previous/next buttons. The
// pager lives for one minute after the last activation window opens.
func browseResults(ctx context.Context, deps *Deps, editable platform.MessageRef, author platform.User, results []SauceResult) error {
	index := 0
	render := func(expired bool) platform.Outgoing {
		embed := sauceEmbed(results[index], index, len(results), expired)
		return platform.Outgoing{
			Content: " ",
			Embeds:  []platform.Embed{embed},
			Rows:    []platform.Row{pagerRow(index, len(results), expired)},
		}
	}

	if err := deps.Msgr.Edit(ctx, editable, render(false)); err != nil {
		return err
	}

	col := deps.Cols.Collect(editable, func(ev platform.ComponentEvent) bool {
		return ev.User.ID == author.ID
	}, collect.Options{Window: pagerWindow})

	for {
		ev, _, ok := col.Next(ctx)
		if !ok {
			return deps.Msgr.Edit(ctx, editable, render(true))
		}
		switch ev.CustomID {
		case btnPageNext:
			if index < len(results)-1 {
				index++
			}
		case btnPagePrev:
			if index > 0 {
				index--
			}
		default:
			continue
		}
		if err := deps.Msgr.Edit(ctx, editable, render(false)); err != nil {
			return err
		}
	}
}

func pagerRow(index, total int, expired bool) platform.Row {
	return platform.Row{Buttons: []platform.Button{
		{ID: btnPagePrev, Label: "<", Style: platform.ButtonSecondary, Disabled: expired || index == 0},
		{ID: btnPageNext, Label: ">", Style: platform.ButtonSecondary, Disabled: expired || index == total-1},
	}}
}

func sauceEmbed(r SauceResult, index, total int, expired bool) platform.Embed {
	footer := fmt.Sprintf("%d / %d  •  相似度 %s%%", index+1, total, r.Similarity)
	if expired {
		footer += "  |  已過期"
	}

	embed := platform.Embed{
		Title:      r.Title,
		URL:        r.URL,
		AuthorName: r.IndexName,
		ThumbURL:   r.Thumbnail,
		FooterText: footer,
	}
	if embed.Title == "" {
		embed.Title = r.IndexName
	}

	var lines []string
	if r.Author != "" {
		lines = append(lines, "作者: "+r.Author)
	}
	if r.Source != "" {
		lines = append(lines, "source: "+r.Source)
	}
	embed.Description = strings.Join(lines, "\n")
	return embed
}
