// Package trends finds trending stories for a niche in RSS/Atom feeds. It
// serves as a search-free trend backend for the generation router.
package trends

import (
	"context"
	"html"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"autopilot/generation"
	"autopilot/logging"
)

const (
	perFeedLimit = 30
	maxSources   = 5
	maxContext   = 280
)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// FeedTrends implements generation.TrendBackend on top of news feeds
type FeedTrends struct {
	feeds      []FeedConfig
	httpClient *http.Client
	extract    bool
	seen       Seen
	logger     logging.Logger
}

// Option configures FeedTrends
type Option func(*FeedTrends)

// WithHTTPClient sets the client used to fetch feeds
func WithHTTPClient(c *http.Client) Option { return func(f *FeedTrends) { f.httpClient = c } }

// WithExtraction enables readability excerpts for the matched stories
func WithExtraction(on bool) Option { return func(f *FeedTrends) { f.extract = on } }

// WithSeen skips stories already used for a post within the seen window
func WithSeen(s Seen) Option { return func(f *FeedTrends) { f.seen = s } }

func WithLogger(l logging.Logger) Option { return func(f *FeedTrends) { f.logger = l } }

// New creates a feed trend backend. feeds are preset keys or URLs.
func New(feeds []string, opts ...Option) *FeedTrends {
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	f := &FeedTrends{logger: logging.Discard()}
	for _, in := range feeds {
		f.feeds = append(f.feeds, ResolveFeed(in))
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Trends returns the newest story matching the niche as the first line,
// followed by a short context line. The API key is not needed.
func (f *FeedTrends) Trends(ctx context.Context, _ string, req generation.TrendRequest) (*generation.TrendResult, error) {
	stories, err := f.collect(ctx)
	if err != nil {
		return nil, err
	}

	matched := Match(stories, req.Niche)
	if len(matched) == 0 {
		f.logger.WithField("niche", req.Niche).Info("No feed stories matched niche")
		return &generation.TrendResult{}, nil
	}
	matched = f.freshFirst(ctx, matched)
	if len(matched) > maxSources {
		matched = matched[:maxSources]
	}
	if f.extract {
		f.extractAll(matched[:1])
	}

	top := matched[0]
	if f.seen != nil {
		if err := f.seen.Add(ctx, StoryHash(top)); err != nil {
			f.logger.WithError(err).Warn("Failed to remember story")
		}
	}
	result := &generation.TrendResult{Text: strings.TrimSpace(top.Title)}
	if ctxLine := contextLine(top); ctxLine != "" {
		result.Text += "\n" + ctxLine
	}
	for _, s := range matched {
		if s.URL != "" {
			result.SourceURLs = append(result.SourceURLs, s.URL)
		}
	}
	return result, nil
}

// freshFirst moves stories that were already used behind the unused ones.
// When every story was used the order is unchanged.
func (f *FeedTrends) freshFirst(ctx context.Context, stories []*Story) []*Story {
	if f.seen == nil {
		return stories
	}
	var fresh, used []*Story
	for _, s := range stories {
		ok, err := f.seen.Contains(ctx, StoryHash(s))
		if err != nil {
			f.logger.WithError(err).Warn("Seen lookup failed")
			return stories
		}
		if ok {
			used = append(used, s)
		} else {
			fresh = append(fresh, s)
		}
	}
	return append(fresh, used...)
}

// collect fetches every feed concurrently. It fails only when all feeds fail.
func (f *FeedTrends) collect(ctx context.Context) ([]*Story, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		stories []*Story
		errs    []error
	)
	for _, feed := range f.feeds {
		wg.Add(1)
		go func(feed FeedConfig) {
			defer wg.Done()
			items, err := fetchFeed(ctx, f.httpClient, feed, perFeedLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.WithField("feed", feed.Name).WithError(err).Warn("Feed fetch failed")
				errs = append(errs, err)
				return
			}
			stories = append(stories, items...)
		}(feed)
	}
	wg.Wait()

	if len(stories) == 0 && len(errs) > 0 {
		return nil, &generation.ProviderError{Op: "trends", Message: errs[0].Error()}
	}
	return stories, nil
}

// Match returns stories mentioning any niche keyword, newest first
func Match(stories []*Story, niche string) []*Story {
	keywords := keywordsOf(niche)
	if len(keywords) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []*Story
	for _, s := range stories {
		key := s.URL
		if key == "" {
			key = s.ID
		}
		if seen[key] {
			continue
		}
		words := wordSet(s.Title + " " + stripTags(s.Summary) + " " + strings.Join(s.Categories, " "))
		for _, k := range keywords {
			if words[k] {
				seen[key] = true
				out = append(out, s)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

var stopWords = map[string]bool{"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "for": true, "to": true, "on": true}

func keywordsOf(niche string) []string {
	var out []string
	for w := range wordSet(niche) {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func wordSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func contextLine(s *Story) string {
	text := s.Excerpt
	if text == "" {
		text = stripTags(s.Summary)
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxContext {
		text = strings.TrimSpace(string(r[:maxContext])) + "..."
	}
	return text
}

func stripTags(s string) string {
	return html.UnescapeString(tagRe.ReplaceAllString(s, " "))
}
