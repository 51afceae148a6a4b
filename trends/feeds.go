package trends

import "strings"

// FeedConfig represents the configuration for a single RSS feed
type FeedConfig struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// FeedPresets maps friendly keys to RSS feed configurations
var FeedPresets = map[string]FeedConfig{
	"hn": {
		Name: "Hacker News",
		URL:  "https://hnrss.org/frontpage",
	},
	"tr": {
		Name: "Technology Review",
		URL:  "https://www.technologyreview.com/feed/",
	},
	"verge": {
		Name: "The Verge",
		URL:  "https://www.theverge.com/rss/index.xml",
	},
	"ars": {
		Name: "Ars Technica",
		URL:  "https://feeds.arstechnica.com/arstechnica/index",
	},
	"cna": {
		Name: "Channel News Asia",
		URL:  "https://www.channelnewsasia.com/api/v1/rss-outbound-feed?_format=xml",
	},
}

// DefaultFeeds is used when no feeds are configured
var DefaultFeeds = []string{"hn", "tr", "verge"}

// ResolveFeed maps a preset key to its feed, or treats input as a URL
func ResolveFeed(input string) FeedConfig {
	input = strings.TrimSpace(input)
	if preset, ok := FeedPresets[strings.ToLower(input)]; ok {
		return preset
	}
	return FeedConfig{Name: input, URL: input}
}
