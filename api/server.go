// Package api is the HTTP control surface of the auto-pilot.
package api

import (
	"context"
	"net/http"

	"autopilot/activity"
	"autopilot/generation"
	"autopilot/logging"
	"autopilot/metrics"
	"autopilot/state"
	"autopilot/types"

	"github.com/gin-gonic/gin"
)

// Controller applies config changes to the running loop
type Controller interface {
	UpdateConfig(ctx context.Context, cfg types.CycleConfig) error
	SetActive(ctx context.Context, active bool) error
}

// Repository is the persisted data the API reads and edits
type Repository interface {
	Posts(ctx context.Context) ([]types.GeneratedPost, error)
	Features(ctx context.Context) (types.FeatureToggles, error)
	SaveFeatures(ctx context.Context, features types.FeatureToggles) error
	SaveCredential(ctx context.Context, key string) error
}

// Assistant handles manual engagement requests
type Assistant interface {
	AnalyzeSentiment(ctx context.Context, text string) (generation.Sentiment, error)
	GenerateReply(ctx context.Context, comment, tone string) (string, error)
}

// Server holds the dependencies of the HTTP handlers
type Server struct {
	loop      Controller
	state     *state.Manager
	repo      Repository
	reporter  *activity.Reporter
	assistant Assistant
	metrics   *metrics.Metrics
	logger    logging.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAssistant enables POST /api/assist/reply
func WithAssistant(a Assistant) Option { return func(s *Server) { s.assistant = a } }

// WithMetrics enables /metrics and request instrumentation
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithLogger(l logging.Logger) Option { return func(s *Server) { s.logger = l } }

func NewServer(loop Controller, st *state.Manager, repo Repository, reporter *activity.Reporter, opts ...Option) *Server {
	s := &Server{
		loop:     loop,
		state:    st,
		repo:     repo,
		reporter: reporter,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRouter constructs a Gin engine with registered routes.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(s.metrics.Middleware())
		r.GET("/metrics", s.metrics.Handler())
	}

	r.GET("/health", handleHealth)

	api := r.Group("/api")
	s.registerControlRoutes(api)
	s.registerDataRoutes(api)
	if s.assistant != nil {
		s.registerAssistRoutes(api)
	}
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
