package main

import (
	"context"
	"path/filepath"
	"testing"

	"autopilot/animate"
	"autopilot/artifacts"
	"autopilot/config"
	"autopilot/generation"
	"autopilot/logging"
	"autopilot/store"
	"autopilot/trends"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	return logging.New("error", "text")
}

func TestOpenStoreBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	for name, cfg := range map[string]config.StoreConfig{
		"memory": {Backend: "memory"},
		"redis":  {Backend: "redis", RedisAddr: mr.Addr()},
		"sqlite": {Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "autopilot.db")},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := openStore(cfg)
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
			got, err := s.Get(context.Background(), "k")
			require.NoError(t, err)
			assert.Equal(t, "v", string(got))
		})
	}

	_, err := openStore(config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestBuildProviderRouting(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.TextProvider = "cohere"
	cfg.Generation.CohereAPIKey = "co-key"
	cfg.Generation.VideoProvider = "ffmpeg"
	cfg.Trends.Feeds = []string{"hn"}

	p, err := buildProvider(cfg, store.NewMemory(), testLogger())
	require.NoError(t, err)

	router, ok := p.(*generation.Router)
	require.True(t, ok)
	assert.IsType(t, &generation.CohereText{}, router.TextSource)
	assert.IsType(t, &animate.Animator{}, router.VideoSource)
	assert.IsType(t, &trends.FeedTrends{}, router.TrendSource)
	assert.IsType(t, &generation.RESTProvider{}, router.ImageSource)
}

func TestBuildProviderDefaultsToREST(t *testing.T) {
	p, err := buildProvider(config.Default(), store.NewMemory(), testLogger())
	require.NoError(t, err)

	router := p.(*generation.Router)
	assert.IsType(t, &generation.RESTProvider{}, router.TextSource)
	assert.IsType(t, &generation.RESTProvider{}, router.TrendSource)
}

func TestBuildProviderRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.TextProvider = "cohere"
	_, err := buildProvider(cfg, store.NewMemory(), testLogger())
	assert.ErrorContains(t, err, "COHERE_API_KEY")

	cfg = config.Default()
	cfg.Generation.VideoProvider = "sora"
	_, err = buildProvider(cfg, store.NewMemory(), testLogger())
	assert.Error(t, err)
}

func TestOpenArtifactsWithoutBucket(t *testing.T) {
	s, err := openArtifacts(context.Background(), config.S3Config{}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, artifacts.DataURL{}, s)
}

func TestNewAppMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.executor)
	assert.Equal(t, "AI", a.state.Config().TopicNiche)
}

func TestKeyResolverPrefersSavedCredential(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(store.NewMemory(), "autopilot:")
	cfg := config.Default()
	cfg.Generation.APIKey = "file-key"
	keys := keyResolver(cfg, repo)

	t.Setenv(config.EnvGenerationAPIKey, "")
	key, err := keys.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	t.Setenv(config.EnvGenerationAPIKey, "env-key")
	key, err = keys.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	// Rotating the environment is seen without a restart
	t.Setenv(config.EnvGenerationAPIKey, "rotated-key")
	key, err = keys.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", key)

	require.NoError(t, repo.SaveCredential(ctx, "saved-key"))
	key, err = keys.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "saved-key", key)
}

func TestKeyResolverMissingEverywhere(t *testing.T) {
	t.Setenv(config.EnvGenerationAPIKey, "")
	repo := store.NewRepository(store.NewMemory(), "autopilot:")

	_, err := keyResolver(config.Default(), repo).Resolve(context.Background())
	assert.ErrorIs(t, err, generation.ErrMissingCredential)
}
