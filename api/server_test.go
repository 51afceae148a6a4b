package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"autopilot/activity"
	"autopilot/generation"
	"autopilot/generation/gentest"
	"autopilot/metrics"
	"autopilot/orchestrator"
	"autopilot/state"
	"autopilot/store"
	"autopilot/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	st      *state.Manager
	err     error
	applied []types.CycleConfig
}

func (f *fakeController) UpdateConfig(_ context.Context, cfg types.CycleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, cfg)
	f.st.SetConfig(cfg)
	return nil
}

func (f *fakeController) SetActive(ctx context.Context, active bool) error {
	cfg := f.st.Config()
	cfg.IsActive = active
	return f.UpdateConfig(ctx, cfg)
}

type fixture struct {
	router   *gin.Engine
	ctrl     *fakeController
	repo     *store.Repository
	reporter *activity.Reporter
	provider *gentest.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := state.NewManager(types.CycleConfig{TopicNiche: "AI", IntervalMinutes: 60})
	f := &fixture{
		ctrl:     &fakeController{st: st},
		repo:     store.NewRepository(store.NewMemory(), "test:"),
		reporter: activity.NewReporter(),
		provider: gentest.New(),
	}
	srv := NewServer(f.ctrl, st, f.repo, f.reporter,
		WithAssistant(gentest.Client(f.provider, &gentest.Sleeper{})),
		WithMetrics(metrics.New()),
	)
	f.router = srv.NewRouter()
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusIncludesLogsAndPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reporter.Success(ctx, "Auto-Pilot", "Cycle complete")
	require.NoError(t, f.repo.PrependPost(ctx, types.GeneratedPost{ID: "p1", Title: "Chips", Status: types.PostStatusScheduled, ScheduledTime: time.Now()}))

	w := f.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.PhaseIdle, resp.Phase)
	assert.Equal(t, "AI", resp.Config.TopicNiche)
	require.Len(t, resp.Logs, 1)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "p1", resp.Posts[0].ID)
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/api/config", types.CycleConfig{TopicNiche: "space", IntervalMinutes: 30, IsActive: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.ctrl.applied, 1)
	assert.Equal(t, "space", f.ctrl.applied[0].TopicNiche)

	w = f.do(http.MethodPut, "/api/config", types.CycleConfig{TopicNiche: "space", IntervalMinutes: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/config", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, f.ctrl.applied, 1)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/start", nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/stop", nil).Code)

	require.Len(t, f.ctrl.applied, 2)
	assert.True(t, f.ctrl.applied[0].IsActive)
	assert.False(t, f.ctrl.applied[1].IsActive)
	assert.Equal(t, "AI", f.ctrl.applied[1].TopicNiche)
}

type instantRunner struct{}

func (instantRunner) Run(context.Context, types.CycleConfig) (*types.GeneratedPost, error) {
	return &types.GeneratedPost{ID: "p"}, nil
}

func TestConcurrentStartStopKeepsStoreInSync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := state.NewManager(types.CycleConfig{TopicNiche: "AI", IntervalMinutes: 60})
	repo := store.NewRepository(store.NewMemory(), "test:")
	loop := orchestrator.NewLoop(instantRunner{}, repo, st, orchestrator.WithScheduler(&orchestrator.ManualScheduler{}))
	t.Cleanup(func() { _ = loop.Shutdown(context.Background()) })
	router := NewServer(loop, st, repo, activity.NewReporter()).NewRouter()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		path := "/api/start"
		if i%2 == 1 {
			path = "/api/stop"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	saved, found, err := repo.LoadConfig(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, st.Config(), saved)
}

func TestClosedLoopIsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.ctrl.err = fmt.Errorf("apply: %w", orchestrator.ErrClosed)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/start", nil).Code)
}

func TestPostsFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.PrependPost(ctx, types.GeneratedPost{ID: "a", Status: types.PostStatusPosted}))
	require.NoError(t, f.repo.PrependPost(ctx, types.GeneratedPost{ID: "b", Status: types.PostStatusScheduled}))

	var posts []types.GeneratedPost
	w := f.do(http.MethodGet, "/api/posts?status=scheduled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "b", posts[0].ID)

	w = f.do(http.MethodGet, "/api/logs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestFeatures(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/features", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"high_quality_images":true,"resume_on_abort":true}`, w.Body.String())

	w = f.do(http.MethodPut, "/api/features", types.FeatureToggles{HighQualityImages: false, ResumeOnAbort: true})
	require.Equal(t, http.StatusOK, w.Code)

	features, err := f.repo.Features(context.Background())
	require.NoError(t, err)
	assert.False(t, features.HighQualityImages)
}

func TestCredential(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/credential", map[string]string{"api_key": "  "}).Code)

	w := f.do(http.MethodPut, "/api/credential", map[string]string{"api_key": "secret-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-key")

	key, err := f.repo.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-key", key)
}

func TestAssistReply(t *testing.T) {
	f := newFixture(t)
	f.provider.TextFunc = func(_ context.Context, req generation.TextRequest) (string, error) {
		if strings.Contains(strings.ToLower(req.Prompt), "sentiment") {
			return "Negative", nil
		}
		return "  Thanks for the feedback, we hear you.  ", nil
	}

	w := f.do(http.MethodPost, "/api/assist/reply", ReplyRequest{Comment: "This video is bad"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReplyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, generation.SentimentNegative, resp.Sentiment)
	assert.Equal(t, "Thanks for the feedback, we hear you.", resp.Reply)

	entries := f.reporter.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, AgentAssistant, entries[0].AgentName)
	assert.Equal(t, types.ActivitySuccess, entries[0].Status)
}

func TestAssistReplyFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.TextFunc = func(context.Context, generation.TextRequest) (string, error) {
		return "", errors.New("upstream exploded")
	}

	w := f.do(http.MethodPost, "/api/assist/reply", ReplyRequest{Comment: "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, 1, f.reporter.Len())
	assert.Equal(t, types.ActivityError, f.reporter.Entries()[0].Status)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/assist/reply", map[string]string{}).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/health", nil)
	w := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "autopilot_http_requests_total")
}
