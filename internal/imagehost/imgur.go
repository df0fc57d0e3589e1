package imagehost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ibis-bot/ibis/internal/logger"
)

const imgurAPI = "https://api.imgur.com/3"

// Imgur uploads by URL through the anonymous Imgur API. The client ID is an
// application credential, not a user token.
type Imgur struct {
	clientID string
	baseURL  string
	http     *http.Client
}

func NewImgur(clientID string) *Imgur {
	return &Imgur{
		clientID: clientID,
		baseURL:  imgurAPI,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type imgurEnvelope struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		Link       string `json:"link"`
		DeleteHash string `json:"deletehash"`
		Error      any    `json:"error"`
	} `json:"data"`
}

func (i *Imgur) Upload(ctx context.Context, sourceURL string) (Image, error) {
	form := url.Values{}
	form.Set("image", sourceURL)
	form.Set("type", "url")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		i.baseURL+"/upload", strings.NewReader(form.Encode()))
	if err != nil {
		return Image{}, err
	}
	req.Header.Set("Authorization", "Client-ID "+i.clientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.http.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("imgur upload: %w", err)
	}
	defer resp.Body.Close()

	var env imgurEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Image{}, fmt.Errorf("imgur response: %w", err)
	}

	if !env.Success || env.Data.Link == "" {
		logger.Warn("imgur rejected upload", "status", env.Status, "source", sourceURL)
		return Image{}, fmt.Errorf("%w: imgur status %d", ErrUploadFailed, env.Status)
	}

	return Image{URL: env.Data.Link, DeleteHash: env.Data.DeleteHash}, nil
}

func (i *Imgur) Delete(ctx context.Context, deleteHash string) error {
	if deleteHash == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		i.baseURL+"/image/"+deleteHash, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Client-ID "+i.clientID)

	resp, err := i.http.Do(req)
	if err != nil {
		return fmt.Errorf("imgur delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("imgur delete: status %d", resp.StatusCode)
	}
	return nil
}
