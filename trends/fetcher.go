package trends

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Story is a single feed item considered as a trend candidate
type Story struct {
	ID          string
	Feed        string
	Title       string
	URL         string
	Summary     string
	Categories  []string
	PublishedAt time.Time
	Excerpt     string
}

// storyID creates a short, stable ID by hashing the link
func storyID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// fetchFeed retrieves and parses an RSS/Atom feed
func fetchFeed(ctx context.Context, client *http.Client, feed FeedConfig, maxCount int) ([]*Story, error) {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.Name, err)
	}

	count := min(len(parsed.Items), maxCount)
	stories := make([]*Story, 0, count)
	for _, item := range parsed.Items[:count] {
		id := item.GUID
		if id == "" && item.Link != "" {
			id = storyID(item.Link)
		}

		var publishedAt time.Time
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		stories = append(stories, &Story{
			ID:          id,
			Feed:        feed.Name,
			Title:       item.Title,
			URL:         item.Link,
			Summary:     summary,
			Categories:  append([]string(nil), item.Categories...),
			PublishedAt: publishedAt,
		})
	}
	return stories, nil
}
