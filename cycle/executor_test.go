package cycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"autopilot/activity"
	"autopilot/generation"
	"autopilot/generation/gentest"
	"autopilot/state"
	"autopilot/store"
	"autopilot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	provider *gentest.Provider
	repo     *store.Repository
	reporter *activity.Reporter
	state    *state.Manager
	exec     *Executor

	mu     sync.Mutex
	phases []types.CyclePhase
}

func newHarness(t *testing.T, cfg types.CycleConfig) *harness {
	t.Helper()
	h := &harness{
		provider: gentest.New(),
		repo:     store.NewRepository(store.NewMemory(), "test:"),
		state:    state.NewManager(cfg),
	}
	h.reporter = activity.NewReporter(activity.WithSink(h.repo))
	h.state.OnPhaseChange(func(p types.CyclePhase) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.phases = append(h.phases, p)
	})

	h.provider.TextFunc = func(_ context.Context, req generation.TextRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "social media post"):
			return "Chips are scarce and prices are rising. What do you think?", nil
		case strings.Contains(req.Prompt, "video title"):
			return "\"The AI Chip Crunch\"", nil
		default:
			return "A glowing silicon wafer on a dark desk", nil
		}
	}
	h.provider.TrendsFunc = func(context.Context, generation.TrendRequest) (*generation.TrendResult, error) {
		return &generation.TrendResult{Text: "AI chips shortage\nOther news", SourceURLs: []string{"https://news.example/chips"}}, nil
	}

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	h.exec = NewExecutor(gentest.Client(h.provider, &gentest.Sleeper{}), h.repo, h.reporter, h.state,
		WithFeatures(h.repo),
		WithClock(func() time.Time { return now }),
	)
	return h
}

func (h *harness) Phases() []types.CyclePhase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.CyclePhase(nil), h.phases...)
}

func entriesFor(entries []types.ActivityLogEntry, agent string, status types.ActivityStatus) int {
	n := 0
	for _, e := range entries {
		if e.AgentName == agent && e.Status == status {
			n++
		}
	}
	return n
}

func errorCount(entries []types.ActivityLogEntry) int {
	n := 0
	for _, e := range entries {
		if e.Status == types.ActivityError {
			n++
		}
	}
	return n
}

func aiConfig(enableVideo bool) types.CycleConfig {
	return types.CycleConfig{TopicNiche: "AI", IntervalMinutes: 60, IsActive: true, EnableVideo: enableVideo}
}

func TestRunImageFailureStillSchedulesPost(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	h.provider.ImageFunc = func(_ context.Context, req generation.ImageRequest) (*types.Media, error) {
		if req.AspectRatio == "16:9" {
			return &types.Media{MimeType: "image/png", Data: gentest.PNG}, nil
		}
		return nil, nil
	}

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	require.NoError(t, err)

	assert.NotEmpty(t, post.Content)
	assert.Empty(t, post.ImageURL)
	assert.Empty(t, post.VideoURL)
	assert.Equal(t, types.PostStatusScheduled, post.Status)
	assert.Equal(t, "AI chips shortage", post.Topic)
	assert.Equal(t, "The AI Chip Crunch", post.Title)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 10, 0, 0, time.UTC), post.ScheduledTime)

	entries := h.reporter.Entries()
	assert.Equal(t, 1, entriesFor(entries, AgentIllustrator, types.ActivityError))
	assert.Equal(t, 1, errorCount(entries))
	assert.Equal(t, 1, entriesFor(entries, AgentScheduler, types.ActivitySuccess))

	posts, err := h.repo.Posts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)

	assert.NotContains(t, h.Phases(), types.PhaseGeneratingVideo)
	assert.Equal(t, types.PhaseCooldown, h.state.Phase())
}

func TestRunFullPipelineWithVideo(t *testing.T) {
	h := newHarness(t, aiConfig(true))

	post, err := h.exec.Run(context.Background(), aiConfig(true))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(post.ImageURL, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(post.VideoURL, "data:video/mp4;base64,"))
	assert.NotEmpty(t, post.ThumbnailURL)
	assert.Equal(t, []string{"https://news.example/chips"}, post.SourceURLs)
	assert.Zero(t, errorCount(h.reporter.Entries()))

	assert.Equal(t, []types.CyclePhase{
		types.PhaseScanningTrends,
		types.PhaseGeneratingContent,
		types.PhaseAnalyzingImagePrompt,
		types.PhaseGeneratingImage,
		types.PhaseGeneratingVideo,
		types.PhaseGeneratingThumbnail,
		types.PhaseScheduling,
		types.PhaseCooldown,
	}, h.Phases())
}

func TestRunVideoDisabledNeverAnimates(t *testing.T) {
	h := newHarness(t, aiConfig(false))

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	require.NoError(t, err)
	assert.Empty(t, post.VideoURL)
	assert.Zero(t, h.provider.Calls("video.start"))
	assert.NotContains(t, h.Phases(), types.PhaseGeneratingVideo)
}

func TestRunVideoSkippedWithoutImage(t *testing.T) {
	h := newHarness(t, aiConfig(true))
	h.provider.ImageFunc = func(context.Context, generation.ImageRequest) (*types.Media, error) {
		return nil, errors.New("image backend down")
	}

	post, err := h.exec.Run(context.Background(), aiConfig(true))
	require.NoError(t, err)
	assert.Empty(t, post.VideoURL)
	assert.Zero(t, h.provider.Calls("video.start"))
}

func TestRunTrendFailureAborts(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	h.provider.TrendsFunc = func(context.Context, generation.TrendRequest) (*generation.TrendResult, error) {
		return nil, &generation.ProviderError{StatusCode: 500, Message: "search unavailable"}
	}

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	assert.Nil(t, post)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, types.PhaseScanningTrends, abort.Phase)

	entries := h.reporter.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, AgentAutoPilot, entries[0].AgentName)
	assert.Equal(t, types.ActivityError, entries[0].Status)

	posts, err := h.repo.Posts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Error(t, h.state.LastError())
}

func TestRunContentFailureAborts(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	h.provider.TextFunc = func(context.Context, generation.TextRequest) (string, error) {
		return "", &generation.ProviderError{StatusCode: 400, Message: "prompt blocked"}
	}

	_, err := h.exec.Run(context.Background(), aiConfig(false))
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, types.PhaseGeneratingContent, abort.Phase)
	assert.Equal(t, 1, errorCount(h.reporter.Entries()))
}

func TestRunMissingCredentialIsReportedDistinctly(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	h.exec.gen = generation.NewClient(h.provider, generation.NewKeyResolver(generation.StaticKey("")))

	_, err := h.exec.Run(context.Background(), aiConfig(false))
	assert.ErrorIs(t, err, generation.ErrMissingCredential)
	entries := h.reporter.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "API key")
}

func TestRunTitleFailureSkipsThumbnail(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	base := h.provider.TextFunc
	h.provider.TextFunc = func(ctx context.Context, req generation.TextRequest) (string, error) {
		if strings.Contains(req.Prompt, "video title") {
			return "", &generation.ProviderError{StatusCode: 500, Message: "boom"}
		}
		return base(ctx, req)
	}

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	require.NoError(t, err)
	assert.Empty(t, post.Title)
	assert.Empty(t, post.ThumbnailURL)
	assert.NotContains(t, h.Phases(), types.PhaseGeneratingThumbnail)
	assert.Equal(t, 1, entriesFor(h.reporter.Entries(), AgentContentWriter, types.ActivityError))
}

func TestRunTitleIsWrittenFromPostContent(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	base := h.provider.TextFunc
	var titlePrompts []string
	h.provider.TextFunc = func(ctx context.Context, req generation.TextRequest) (string, error) {
		if strings.Contains(req.Prompt, "video title") {
			titlePrompts = append(titlePrompts, req.Prompt)
		}
		return base(ctx, req)
	}

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	require.NoError(t, err)
	assert.Equal(t, "The AI Chip Crunch", post.Title)
	require.Len(t, titlePrompts, 1)
	assert.Contains(t, titlePrompts[0], "AI chips shortage")
	assert.Contains(t, titlePrompts[0], post.Content)
}

func TestRunImagePromptFallsBackToTopic(t *testing.T) {
	h := newHarness(t, aiConfig(false))
	base := h.provider.TextFunc
	h.provider.TextFunc = func(ctx context.Context, req generation.TextRequest) (string, error) {
		if strings.Contains(req.Prompt, "Describe, in one paragraph") {
			return "", &generation.ProviderError{StatusCode: 500, Message: "boom"}
		}
		return base(ctx, req)
	}
	var prompts []string
	h.provider.ImageFunc = func(_ context.Context, req generation.ImageRequest) (*types.Media, error) {
		prompts = append(prompts, req.Prompt)
		return &types.Media{MimeType: "image/png", Data: gentest.PNG}, nil
	}

	post, err := h.exec.Run(context.Background(), aiConfig(false))
	require.NoError(t, err)
	assert.NotEmpty(t, post.ImageURL)
	require.NotEmpty(t, prompts)
	assert.Equal(t, "AI chips shortage", prompts[0])
}

func TestTopicFrom(t *testing.T) {
	assert.Equal(t, "AI chips shortage", topicFrom("\n  **AI chips shortage**\nOther"))
	assert.Equal(t, "", topicFrom("   \n "))
	assert.Equal(t, "Title", cleanTitle("\"Title\"\nsecond line"))
}
