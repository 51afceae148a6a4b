package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autopilot/generation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const techFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Tech</title>
<item><title>Old AI chip story</title><link>https://news.example/old</link>
<description>An older &lt;b&gt;AI&lt;/b&gt; item</description><pubDate>Mon, 05 Oct 2026 10:00:00 GMT</pubDate></item>
<item><title>New AI model beats benchmarks</title><link>https://news.example/new</link>
<description>&lt;p&gt;A lab released a model that tops every leaderboard.&lt;/p&gt;</description><pubDate>Sat, 17 Oct 2026 10:00:00 GMT</pubDate></item>
<item><title>Gardening tips for autumn</title><link>https://news.example/garden</link>
<description>Rake the leaves</description><pubDate>Sun, 18 Oct 2026 10:00:00 GMT</pubDate></item>
</channel></rss>`

func feedServer(t *testing.T, body string, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestTrendsPicksNewestMatchingStory(t *testing.T) {
	url := feedServer(t, techFeed, http.StatusOK)
	ft := New([]string{url})

	res, err := ft.Trends(context.Background(), "", generation.TrendRequest{Niche: "AI"})
	require.NoError(t, err)

	assert.Equal(t, "New AI model beats benchmarks\nA lab released a model that tops every leaderboard.", res.Text)
	assert.Equal(t, []string{"https://news.example/new", "https://news.example/old"}, res.SourceURLs)
}

func TestTrendsNoMatchReturnsEmptyText(t *testing.T) {
	url := feedServer(t, techFeed, http.StatusOK)
	ft := New([]string{url})

	res, err := ft.Trends(context.Background(), "", generation.TrendRequest{Niche: "Cryptocurrency"})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestTrendsAllFeedsFailing(t *testing.T) {
	url := feedServer(t, "nope", http.StatusInternalServerError)
	ft := New([]string{url})

	_, err := ft.Trends(context.Background(), "", generation.TrendRequest{Niche: "AI"})
	var pe *generation.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestTrendsPartialFeedFailure(t *testing.T) {
	good := feedServer(t, techFeed, http.StatusOK)
	bad := feedServer(t, "", http.StatusBadGateway)
	ft := New([]string{bad, good})

	res, err := ft.Trends(context.Background(), "", generation.TrendRequest{Niche: "benchmarks"})
	require.NoError(t, err)
	assert.Equal(t, "https://news.example/new", res.SourceURLs[0])
}

func TestMatchIgnoresStopWordsAndDuplicates(t *testing.T) {
	now := time.Now()
	stories := []*Story{
		{ID: "1", URL: "u1", Title: "The state of robotics", PublishedAt: now},
		{ID: "2", URL: "u1", Title: "The state of robotics", PublishedAt: now},
		{ID: "3", URL: "u3", Title: "The weather", PublishedAt: now},
	}

	got := Match(stories, "Robotics and the future")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestResolveFeed(t *testing.T) {
	assert.Equal(t, FeedPresets["hn"], ResolveFeed("HN"))
	assert.Equal(t, "https://x.example/rss", ResolveFeed("https://x.example/rss").URL)
}
