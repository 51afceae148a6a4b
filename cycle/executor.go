// Package cycle runs one content cycle: trend scan, writing, illustration,
// optional video and thumbnail, then scheduling.
package cycle

import (
	"context"
	"fmt"
	"time"

	"autopilot/activity"
	"autopilot/artifacts"
	"autopilot/config"
	"autopilot/generation"
	"autopilot/logging"
	"autopilot/state"
	"autopilot/types"

	"github.com/google/uuid"
)

// Agent names shown in the activity log
const (
	AgentTrendScanner      = "Trend Scanner"
	AgentContentWriter     = "Content Writer"
	AgentArtDirector       = "Art Director"
	AgentIllustrator       = "Illustrator"
	AgentAnimator          = "Animator"
	AgentThumbnailDesigner = "Thumbnail Designer"
	AgentScheduler         = "Scheduler"
	AgentAutoPilot         = "Auto-Pilot"
)

// Generator is the subset of the generation client the cycle uses
type Generator interface {
	GenerateTrends(ctx context.Context, niche string) (*generation.TrendResult, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string, highQuality bool) (*types.Media, error)
	GenerateVideo(ctx context.Context, prompt string, refs []*types.Media, opts generation.VideoOptions) (*types.Media, error)
	GenerateThumbnail(ctx context.Context, title, niche string) (*types.Media, error)
}

// PostStore receives scheduled posts
type PostStore interface {
	PrependPost(ctx context.Context, post types.GeneratedPost) error
}

// FeatureSource supplies the toggles read at the start of each cycle
type FeatureSource interface {
	Features(ctx context.Context) (types.FeatureToggles, error)
}

// Observer is notified of cycle outcomes (metrics)
type Observer interface {
	CycleFinished(outcome string, elapsed time.Duration)
}

// Cycle outcomes reported to the Observer
const (
	OutcomeScheduled = "scheduled"
	OutcomeAborted   = "aborted"
)

// Executor runs cycles. It does not guard against overlapping runs; the
// orchestration loop owns that.
type Executor struct {
	gen       Generator
	artifacts artifacts.Store
	posts     PostStore
	features  FeatureSource
	reporter  *activity.Reporter
	state     *state.Manager
	observer  Observer
	logger    logging.Logger
	now       func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

func WithArtifacts(s artifacts.Store) Option { return func(e *Executor) { e.artifacts = s } }

func WithFeatures(f FeatureSource) Option { return func(e *Executor) { e.features = f } }

func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

func WithLogger(l logging.Logger) Option { return func(e *Executor) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// NewExecutor creates an executor
func NewExecutor(gen Generator, posts PostStore, reporter *activity.Reporter, st *state.Manager, opts ...Option) *Executor {
	e := &Executor{
		gen:       gen,
		artifacts: artifacts.DataURL{},
		posts:     posts,
		reporter:  reporter,
		state:     st,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// draft accumulates the results of the phases of one cycle
type draft struct {
	cfg      types.CycleConfig
	features types.FeatureToggles
	topic    string
	trend    *generation.TrendResult
	content  string
	title    string
	image    *types.Media
	post     types.GeneratedPost
}

// Run executes one full cycle and returns the scheduled post. A failed
// trend scan, content draft or post save aborts with *AbortError; failures of
// optional steps are logged once and the cycle continues without that asset.
// The phase is left at Cooldown on success.
func (e *Executor) Run(ctx context.Context, cfg types.CycleConfig) (*types.GeneratedPost, error) {
	start := e.now()
	d := &draft{cfg: cfg, features: e.loadFeatures(ctx)}

	if err := e.enter(types.PhaseScanningTrends); err != nil {
		return nil, err
	}
	if err := e.scanTrends(ctx, d); err != nil {
		return nil, e.abort(ctx, types.PhaseScanningTrends, err, start)
	}

	if err := e.enter(types.PhaseGeneratingContent); err != nil {
		return nil, err
	}
	if err := e.writeContent(ctx, d); err != nil {
		return nil, e.abort(ctx, types.PhaseGeneratingContent, err, start)
	}

	if err := e.enter(types.PhaseAnalyzingImagePrompt); err != nil {
		return nil, err
	}
	imagePrompt := e.directArt(ctx, d)

	if err := e.enter(types.PhaseGeneratingImage); err != nil {
		return nil, err
	}
	e.illustrate(ctx, d, imagePrompt)

	if cfg.EnableVideo && d.image != nil {
		if err := e.enter(types.PhaseGeneratingVideo); err != nil {
			return nil, err
		}
		e.animate(ctx, d)
	}

	if d.title != "" {
		if err := e.enter(types.PhaseGeneratingThumbnail); err != nil {
			return nil, err
		}
		e.designThumbnail(ctx, d)
	}

	if err := e.enter(types.PhaseScheduling); err != nil {
		return nil, err
	}
	if err := e.schedule(ctx, d); err != nil {
		return nil, e.abort(ctx, types.PhaseScheduling, err, start)
	}

	if err := e.enter(types.PhaseCooldown); err != nil {
		return nil, err
	}
	e.reporter.Success(ctx, AgentAutoPilot, fmt.Sprintf("Cycle complete. Next run in %d minutes", cfg.IntervalMinutes))
	if e.observer != nil {
		e.observer.CycleFinished(OutcomeScheduled, e.now().Sub(start))
	}

	post := d.post
	return &post, nil
}

func (e *Executor) loadFeatures(ctx context.Context) types.FeatureToggles {
	if e.features == nil {
		return types.DefaultFeatureToggles()
	}
	f, err := e.features.Features(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to load feature toggles, using defaults")
		return types.DefaultFeatureToggles()
	}
	return f
}

func (e *Executor) enter(phase types.CyclePhase) error {
	if err := e.state.SetPhase(phase); err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	e.logger.WithField("phase", phase).Debug("Entering phase")
	return nil
}

func (e *Executor) scanTrends(ctx context.Context, d *draft) error {
	res, err := e.gen.GenerateTrends(ctx, d.cfg.TopicNiche)
	if err != nil {
		return err
	}
	d.trend = res
	d.topic = topicFrom(res.Text)
	if d.topic == "" {
		d.topic = config.TopicFallback
	}
	e.reporter.Success(ctx, AgentTrendScanner, fmt.Sprintf("Found trending topic: %s", d.topic))
	return nil
}

func (e *Executor) writeContent(ctx context.Context, d *draft) error {
	content, err := e.gen.GenerateText(ctx, contentPrompt(d.topic, d.trend.Text, d.cfg.TopicNiche))
	if err != nil {
		return err
	}
	if content == "" {
		return generation.ErrEmptyResponse
	}
	d.content = content

	title, err := e.gen.GenerateText(ctx, titlePrompt(d.topic, d.content))
	if err != nil {
		e.reporter.Error(ctx, AgentContentWriter, fmt.Sprintf("Title generation failed, continuing without title: %v", err))
	} else {
		d.title = cleanTitle(title)
	}
	e.reporter.Success(ctx, AgentContentWriter, "Drafted post content")
	return nil
}

// directArt asks for an image prompt, falling back to the topic itself
func (e *Executor) directArt(ctx context.Context, d *draft) string {
	prompt, err := e.gen.GenerateText(ctx, imagePromptPrompt(d.topic, d.content))
	if err != nil || prompt == "" {
		reason := "empty response"
		if err != nil {
			reason = err.Error()
		}
		e.reporter.Error(ctx, AgentArtDirector, fmt.Sprintf("Image prompt failed, using topic instead: %s", reason))
		return d.topic
	}
	e.reporter.Success(ctx, AgentArtDirector, "Image prompt ready")
	return prompt
}

func (e *Executor) illustrate(ctx context.Context, d *draft, prompt string) {
	img, err := e.gen.GenerateImage(ctx, prompt, d.features.HighQualityImages)
	if err != nil {
		e.reporter.Error(ctx, AgentIllustrator, fmt.Sprintf("Image generation failed: %v", err))
		return
	}
	if img == nil {
		e.reporter.Error(ctx, AgentIllustrator, "Image generation returned no image")
		return
	}

	url, err := e.artifacts.Save(ctx, artifacts.KindImage, img)
	if err != nil {
		e.reporter.Error(ctx, AgentIllustrator, fmt.Sprintf("Failed to store image: %v", err))
		return
	}
	d.image = img
	d.post.ImageURL = url
	e.reporter.Success(ctx, AgentIllustrator, "Image generated")
}

func (e *Executor) animate(ctx context.Context, d *draft) {
	video, err := e.gen.GenerateVideo(ctx, videoPrompt(d.topic), []*types.Media{d.image}, generation.VideoOptions{AspectRatio: "9:16"})
	if err != nil {
		e.reporter.Error(ctx, AgentAnimator, fmt.Sprintf("Video generation failed: %v", err))
		return
	}

	url, err := e.artifacts.Save(ctx, artifacts.KindVideo, video)
	if err != nil {
		e.reporter.Error(ctx, AgentAnimator, fmt.Sprintf("Failed to store video: %v", err))
		return
	}
	d.post.VideoURL = url
	e.reporter.Success(ctx, AgentAnimator, "Video generated")
}

func (e *Executor) designThumbnail(ctx context.Context, d *draft) {
	thumb, err := e.gen.GenerateThumbnail(ctx, d.title, d.cfg.TopicNiche)
	if err == nil && thumb == nil {
		err = generation.ErrEmptyResponse
	}
	if err != nil {
		e.reporter.Error(ctx, AgentThumbnailDesigner, fmt.Sprintf("Thumbnail generation failed: %v", err))
		return
	}

	url, err := e.artifacts.Save(ctx, artifacts.KindThumbnail, thumb)
	if err != nil {
		e.reporter.Error(ctx, AgentThumbnailDesigner, fmt.Sprintf("Failed to store thumbnail: %v", err))
		return
	}
	d.post.ThumbnailURL = url
	e.reporter.Success(ctx, AgentThumbnailDesigner, "Thumbnail generated")
}

func (e *Executor) schedule(ctx context.Context, d *draft) error {
	now := e.now()
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	post := d.post
	post.ID = id.String()
	post.Title = d.title
	post.Content = d.content
	post.Topic = d.topic
	post.SourceURLs = d.trend.SourceURLs
	post.ScheduledTime = now.Add(config.PostScheduleOffset)
	post.Status = types.PostStatusScheduled
	post.CreatedAt = now

	if err := e.posts.PrependPost(ctx, post); err != nil {
		return fmt.Errorf("save post: %w", err)
	}
	d.post = post
	e.reporter.Success(ctx, AgentScheduler, fmt.Sprintf("Post scheduled for %s", post.ScheduledTime.Format("15:04")))
	return nil
}

// abort logs exactly one entry for the failure and wraps it
func (e *Executor) abort(ctx context.Context, phase types.CyclePhase, err error, start time.Time) error {
	msg := fmt.Sprintf("Cycle aborted during %s: %v", phase, err)
	if generation.IsCredentialError(err) {
		msg = fmt.Sprintf("Cycle aborted during %s: API key missing or invalid, select a billed key to continue", phase)
	}
	e.reporter.Error(ctx, AgentAutoPilot, msg)
	e.state.SetError(err)
	if e.observer != nil {
		e.observer.CycleFinished(OutcomeAborted, e.now().Sub(start))
	}
	return &AbortError{Phase: phase, Err: err}
}
