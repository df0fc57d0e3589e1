package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ibis-bot/ibis/internal/logger"
)

// TweetMediaType tags what kind of media a tweet carries.
type TweetMediaType string

const (
	TweetMediaNone  TweetMediaType = "none"
	TweetMediaImage TweetMediaType = "image"
	TweetMediaVideo TweetMediaType = "video"
)

// TweetData is the scraped content of one tweet.
type TweetData struct {
	URL         string
	AuthorName  string
	AuthorID    string
	AuthorPfp   string
	Description string
	MediaType   TweetMediaType
	MediaURLs   []string
	Likes       string
	Retweets    string
	Views       string
	Timestamp   time.Time
}

// TweetScraper reads tweets through a headless browser, since the public
// embed API stopped carrying media.
type TweetScraper struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
}

// NewTweetScraper launches the browser. binPath may be empty to let the
// launcher find one.
func NewTweetScraper(binPath string) (*TweetScraper, error) {
	l := launcher.New().Headless(true)
	if binPath != "" {
		l = l.Bin(binPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	logger.Info("tweet scraper browser ready")
	return &TweetScraper{browser: browser, timeout: 30 * time.Second}, nil
}

func (s *TweetScraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

// Scrape loads the tweet page and reads author, text, metrics and media out
// of the rendered DOM. One page at a time; tweet fixes are rare enough that
// serializing keeps the browser footprint small.
func (s *TweetScraper) Scrape(ctx context.Context, tweetURL string) (*TweetData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil, fmt.Errorf("scraper closed")
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(s.timeout)

	if err := page.Navigate(tweetURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", tweetURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load %s: %w", tweetURL, err)
	}

	article, err := page.Element(`article[tabindex="-1"]`)
	if err != nil {
		return nil, fmt.Errorf("tweet article not found: %w", err)
	}

	data := &TweetData{URL: tweetURL, MediaType: TweetMediaNone}

	if el, err := article.Element(`div[data-testid="User-Name"] a > div > span`); err == nil {
		data.AuthorID, _ = el.Text()
	}
	if el, err := page.Element(`meta[property="og:title"]`); err == nil {
		if title, err := el.Attribute("content"); err == nil && title != nil {
			data.AuthorName = strings.SplitN(*title, "：「", 2)[0]
		}
	}
	if el, err := article.Element(`div[data-testid="Tweet-User-Avatar"] img`); err == nil {
		if src, err := el.Attribute("src"); err == nil && src != nil {
			data.AuthorPfp = *src
		}
	}
	if el, err := article.Element(`div[data-testid="tweetText"]`); err == nil {
		data.Description, _ = el.Text()
	}
	if el, err := article.Element(`time`); err == nil {
		if dt, err := el.Attribute("datetime"); err == nil && dt != nil {
			if ts, err := time.Parse(time.RFC3339, *dt); err == nil {
				data.Timestamp = ts
			}
		}
	}

	// metric spans appear as views, retweets, quotes, likes, bookmarks
	metrics, err := article.Elements(`span[data-testid="app-text-transition-container"] > span > span`)
	if err == nil {
		var values []string
		for _, el := range metrics {
			if txt, err := el.Text(); err == nil {
				values = append(values, txt)
			}
		}
		if len(values) >= 4 {
			data.Views = values[0]
			data.Retweets = values[1]
			data.Likes = values[3]
		}
	}

	if photos, err := article.Elements(`div[data-testid="tweetPhoto"] img`); err == nil && len(photos) > 0 {
		data.MediaType = TweetMediaImage
		for _, el := range photos {
			if src, err := el.Attribute("src"); err == nil && src != nil {
				data.MediaURLs = append(data.MediaURLs, *src)
			}
		}
	} else if videos, err := article.Elements(`div[data-testid="videoComponent"] video`); err == nil && len(videos) > 0 {
		data.MediaType = TweetMediaVideo
		for _, el := range videos {
			if src, err := el.Attribute("poster"); err == nil && src != nil {
				data.MediaURLs = append(data.MediaURLs, *src)
			}
		}
	}

	return data, nil
}
