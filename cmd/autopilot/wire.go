package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"autopilot/activity"
	"autopilot/animate"
	"autopilot/artifacts"
	"autopilot/config"
	"autopilot/cycle"
	"autopilot/generation"
	"autopilot/logging"
	"autopilot/metrics"
	"autopilot/state"
	"autopilot/store"
	"autopilot/trends"

	"github.com/sirupsen/logrus"
)

// app holds the components shared by every command
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	store    store.Store
	repo     *store.Repository
	reporter *activity.Reporter
	state    *state.Manager
	metrics  *metrics.Metrics
	client   *generation.Client
	executor *cycle.Executor
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logging.New(cfg.Log.Level, cfg.Log.Format),
		metrics: metrics.New(),
	}

	s, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.repo = store.NewRepository(s, cfg.Store.Prefix)
	a.log.WithField("backend", cfg.Store.Backend).Info("Store opened")

	a.reporter = activity.NewReporter(
		activity.WithSink(a.repo),
		activity.WithLogger(a.log.WithField("component", "activity")),
		activity.OnRecord(a.metrics.ActivityRecorded),
	)
	if err := a.reporter.Load(ctx); err != nil {
		a.log.WithError(err).Warn("Failed to restore activity log")
	}

	a.state = state.NewManager(cfg.Cycle)
	a.state.OnPhaseChange(a.metrics.SetPhase)

	provider, err := buildProvider(cfg, s, a.log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	genLog := a.log.WithField("component", "generation")
	policy := generation.DefaultRetryPolicy()
	policy.OnRetry = func(op string, attempt int, wait time.Duration, err error) {
		genLog.WithFields(logging.Fields{"op": op, "attempt": attempt, "delay": wait.String()}).
			WithError(err).Warn("Rate limited, retrying")
		a.metrics.RetryObserved(op, attempt, wait, err)
	}
	a.client = generation.NewClient(provider, keyResolver(cfg, a.repo),
		generation.WithModels(generation.Models{
			Text:    cfg.Generation.TextModel,
			Image:   cfg.Generation.ImageModel,
			ImageHQ: cfg.Generation.ImageModelHQ,
			Video:   cfg.Generation.VideoModel,
		}),
		generation.WithRetryPolicy(policy),
		generation.WithLogger(genLog),
	)

	blobs, err := openArtifacts(ctx, cfg.S3, a.log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	a.executor = cycle.NewExecutor(a.client, a.repo, a.reporter, a.state,
		cycle.WithArtifacts(blobs),
		cycle.WithFeatures(a.repo),
		cycle.WithObserver(a.metrics),
		cycle.WithLogger(a.log.WithField("component", "cycle")),
	)
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// keyResolver prefers the key a user saved through the credential flow, then
// the live environment, then the key read from the config file at startup.
func keyResolver(cfg config.Config, cs generation.CredentialStore) *generation.KeyResolver {
	return generation.NewKeyResolver(
		generation.StoredKey(cs),
		generation.EnvKey(config.EnvGenerationAPIKey),
		generation.StaticKey(cfg.Generation.APIKey),
	)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(store.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
	case "sqlite":
		return store.NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildProvider routes each call type to its configured backend
func buildProvider(cfg config.Config, s store.Store, log *logrus.Logger) (generation.Provider, error) {
	g := cfg.Generation
	router := generation.NewRouter(generation.NewRESTProvider(g.APIURL, &http.Client{Timeout: 2 * time.Minute}))

	switch strings.ToLower(g.TextProvider) {
	case "", "rest":
	case "cohere":
		if g.CohereAPIKey == "" {
			return nil, fmt.Errorf("TEXT_PROVIDER=cohere requires COHERE_API_KEY")
		}
		router.TextSource = generation.NewCohereText(g.CohereAPIKey, config.DefaultCohereModel)
	default:
		return nil, fmt.Errorf("unknown text provider %q", g.TextProvider)
	}

	switch strings.ToLower(g.VideoProvider) {
	case "", "rest":
	case "ffmpeg":
		router.VideoSource = animate.New(animate.WithLogger(log.WithField("component", "animate")))
	default:
		return nil, fmt.Errorf("unknown video provider %q", g.VideoProvider)
	}

	if len(cfg.Trends.Feeds) > 0 {
		router.TrendSource = trends.New(cfg.Trends.Feeds,
			trends.WithExtraction(cfg.Trends.Extract),
			trends.WithSeen(trends.NewStoreSeen(s, cfg.Store.Prefix+"trends:seen", trends.DefaultSeenTTL)),
			trends.WithLogger(log.WithField("component", "trends")),
		)
	}
	return router, nil
}

func openArtifacts(ctx context.Context, cfg config.S3Config, log *logrus.Logger) (artifacts.Store, error) {
	if cfg.Bucket == "" {
		return artifacts.DataURL{}, nil
	}
	s3Store, err := artifacts.NewS3(ctx, artifacts.S3Config{
		Bucket:        cfg.Bucket,
		Region:        cfg.Region,
		Profile:       cfg.Profile,
		Endpoint:      cfg.Endpoint,
		UsePathStyle:  cfg.UsePathStyle,
		Prefix:        cfg.Prefix,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init S3 artifacts: %w", err)
	}
	if err := s3Store.Ping(ctx); err != nil {
		log.WithError(err).Warn("S3 bucket not reachable; uploads may fail")
	}
	log.WithField("bucket", cfg.Bucket).Info("Artifacts stored in S3")
	return s3Store, nil
}
