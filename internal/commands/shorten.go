package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ibis-bot/ibis/internal/platform"
)

const reurlEndpoint = "https://api.reurl.cc/shorten"

// Shortener calls the reurl.cc shortening API.
type Shortener struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewShortener(apiKey string) *Shortener {
	return &Shortener{
		apiKey:  apiKey,
		baseURL: reurlEndpoint,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type reurlResponse struct {
	Res      string `json:"res"`
	ShortURL string `json:"short_url"`
}

// Shorten returns the shortened form of url.
func (s *Shortener) Shorten(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("reurl-api-key", s.apiKey)

	res, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reurl request: %w", err)
	}
	defer res.Body.Close()

	var parsed reurlResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("reurl response: %w", err)
	}
	if parsed.Res != "success" {
		return "", fmt.Errorf("reurl status %q", parsed.Res)
	}
	return parsed.ShortURL, nil
}

func shortenCommand() *Command {
	cmd := &Command{
		Name:     "reurl",
		FullName: "reurl縮網址產生器",
		Detail:   "透過reurl.cc產生縮網址。",
		Usage:    "<網址>",
		Spec: platform.CommandSpec{
			Name:        "reurl",
			Description: "縮網址",
			Options: []platform.CommandOption{
				{Type: platform.OptionString, Name: "url", Description: "要轉換的網址", Required: true},
			},
		},
	}
	cmd.Run = func(ctx context.Context, inv Invocation, resp Responder, deps *Deps) error {
		url := inv.Option("url", 1)
		if !strings.HasPrefix(url, "http") {
			return resp.Respond(ctx, platform.Outgoing{
				Content:   "\\❌ | 未收到URL，請確認是否輸入正確？",
				Ephemeral: true,
			})
		}

		short, err := deps.Shortener.Shorten(ctx, url)
		if err != nil {
			return err
		}
		embed := platform.Embed{Description: short}
		if inv.Author.Username != "" {
			embed.FooterText = fmt.Sprintf("由使用者 %s 所發送的網址", inv.Author.Username)
		}
		return resp.Respond(ctx, platform.Outgoing{
			Embeds:    []platform.Embed{embed},
			Ephemeral: true,
		})
	}
	return cmd
}
