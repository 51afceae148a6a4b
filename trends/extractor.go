package trends

import (
	"fmt"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	workerCount      = 3
	extractorTimeout = 30 * time.Second
)

// extractAll fills in excerpts for stories using a small worker pool.
// Failures leave the feed summary in place.
func (f *FeedTrends) extractAll(stories []*Story) {
	var wg sync.WaitGroup
	queue := make(chan *Story, len(stories))

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for story := range queue {
				if err := extractExcerpt(story); err != nil {
					f.logger.WithField("worker", workerID).WithError(err).Debug("Excerpt extraction failed")
				}
				wg.Done()
			}
		}(i)
	}

	for _, story := range stories {
		wg.Add(1)
		queue <- story
	}
	wg.Wait()
	close(queue)
}

func extractExcerpt(story *Story) error {
	if story.URL == "" {
		return fmt.Errorf("story URL is empty")
	}
	article, err := readability.FromURL(story.URL, extractorTimeout)
	if err != nil {
		return fmt.Errorf("readability extraction failed: %w", err)
	}
	story.Excerpt = article.Excerpt
	if story.Excerpt == "" {
		story.Excerpt = article.TextContent
	}
	return nil
}
