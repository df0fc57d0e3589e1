// Package scrape pulls remote content the chat platform fails to preview:
// page metadata for article links and tweet data through a headless browser.
package scrape

import "regexp"

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs returns every http(s) URL found in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

var spoilerPattern = regexp.MustCompile(`(?s)\|\|.*\|\|`)

// HasSpoiler reports whether the message hides content behind spoiler bars;
// such messages are never repaired.
func HasSpoiler(text string) bool {
	return spoilerPattern.MatchString(text)
}
