package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Metadata is what a page declares about itself through Open Graph tags and
// JSON-LD. Article pages (news sites) usually fill the JSON-LD half.
type Metadata struct {
	URL         string
	Title       string
	Description string
	Image       string
	SiteName    string

	Headline  string
	Publisher string
	Provider  string
	Published time.Time
}

type MetadataFetcher struct {
	http *http.Client
}

func NewMetadataFetcher() *MetadataFetcher {
	return &MetadataFetcher{http: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch downloads the page and extracts its metadata.
func (f *MetadataFetcher) Fetch(ctx context.Context, pageURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ibis/1.0)")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	meta := &Metadata{URL: pageURL}
	walk(root, meta)
	return meta, nil
}

func walk(n *html.Node, meta *Metadata) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "meta":
			readMetaTag(n, meta)
		case "script":
			if attr(n, "type") == "application/ld+json" && n.FirstChild != nil {
				readJSONLD(n.FirstChild.Data, meta)
			}
		case "title":
			if meta.Title == "" && n.FirstChild != nil {
				meta.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, meta)
	}
}

func readMetaTag(n *html.Node, meta *Metadata) {
	content := attr(n, "content")
	if content == "" {
		return
	}
	switch attr(n, "property") {
	case "og:title":
		meta.Title = content
	case "og:description":
		if meta.Description == "" {
			meta.Description = content
		}
	case "og:image":
		meta.Image = content
	case "og:site_name":
		meta.SiteName = content
	case "og:url":
		meta.URL = content
	}
}

// jsonLD covers the subset of schema.org article markup the embeds use.
type jsonLD struct {
	Headline      string     `json:"headline"`
	Description   string     `json:"description"`
	Image         jsonLDText `json:"image"`
	DatePublished string     `json:"datePublished"`
	Publisher     jsonLDName `json:"publisher"`
	Provider      jsonLDName `json:"provider"`
}

type jsonLDName struct {
	Name string `json:"name"`
}

// jsonLDText tolerates both a bare string and an object with a url field.
type jsonLDText string

func (t *jsonLDText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = jsonLDText(s)
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*t = jsonLDText(obj.URL)
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return t.UnmarshalJSON(list[0])
	}
	return nil
}

func readJSONLD(raw string, meta *Metadata) {
	var ld jsonLD
	if err := json.Unmarshal([]byte(raw), &ld); err != nil {
		return
	}

	if ld.Headline != "" {
		meta.Headline = ld.Headline
	}
	if ld.Description != "" {
		meta.Description = ld.Description
	}
	if ld.Image != "" && meta.Image == "" {
		meta.Image = string(ld.Image)
	}
	meta.Publisher = ld.Publisher.Name
	meta.Provider = ld.Provider.Name
	if ld.DatePublished != "" {
		if ts, err := time.Parse(time.RFC3339, ld.DatePublished); err == nil {
			meta.Published = ts
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
