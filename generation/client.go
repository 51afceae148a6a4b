package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autopilot/config"
	"autopilot/logging"
	"autopilot/types"
)

// Models names the model used for each generation kind
type Models struct {
	Text    string
	Image   string
	ImageHQ string
	Video   string
}

// DefaultModels returns the stock model names
func DefaultModels() Models {
	return Models{
		Text:    config.DefaultTextModel,
		Image:   config.DefaultImageModel,
		ImageHQ: config.DefaultImageModelHQ,
		Video:   config.DefaultVideoModel,
	}
}

// VideoOptions overrides the defaults for a single video call
type VideoOptions struct {
	Model       string
	Resolution  string
	AspectRatio string
}

// Sentiment is the outcome of AnalyzeSentiment
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Client wraps a Provider with credential resolution, retries and the
// premium model rules.
type Client struct {
	provider     Provider
	keys         *KeyResolver
	policy       RetryPolicy
	models       Models
	pollInterval time.Duration
	logger       logging.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

func WithRetryPolicy(p RetryPolicy) ClientOption { return func(c *Client) { c.policy = p } }

func WithModels(m Models) ClientOption { return func(c *Client) { c.models = m } }

func WithPollInterval(d time.Duration) ClientOption { return func(c *Client) { c.pollInterval = d } }

func WithLogger(l logging.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// NewClient creates a generation client
func NewClient(p Provider, keys *KeyResolver, opts ...ClientOption) *Client {
	c := &Client{
		provider:     p,
		keys:         keys,
		policy:       DefaultRetryPolicy(),
		models:       DefaultModels(),
		pollInterval: config.VideoPollInterval,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = func(op string, attempt int, wait time.Duration, err error) {
			c.logger.WithFields(logging.Fields{
				"op":      op,
				"attempt": attempt,
				"wait":    wait.String(),
			}).WithError(err).Warn("Rate limited, retrying")
		}
	}
	return c
}

// GenerateText returns a completion for prompt
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	req := TextRequest{Model: c.models.Text, Prompt: prompt, System: contentSystem}
	if err := req.Validate(); err != nil {
		return "", err
	}
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return "", err
	}

	text, err := Retry(ctx, c.policy, "text", func(ctx context.Context) (string, error) {
		return c.provider.Text(ctx, key, req)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateTrends returns grounded trend text for niche
func (c *Client) GenerateTrends(ctx context.Context, niche string) (*TrendResult, error) {
	req := TrendRequest{Model: c.models.Text, Niche: niche}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	res, err := Retry(ctx, c.policy, "trends", func(ctx context.Context) (*TrendResult, error) {
		return c.provider.Trends(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("trends for %q: %w", niche, ErrEmptyResponse)
	}
	return res, nil
}

// GenerateImage returns a square image, or nil when the provider produced
// none. A high quality request that the key is not allowed to make falls
// back once to the standard model.
func (c *Client) GenerateImage(ctx context.Context, prompt string, highQuality bool) (*types.Media, error) {
	return c.image(ctx, ImageRequest{Prompt: prompt, AspectRatio: "1:1"}, highQuality)
}

// GenerateThumbnail returns a 16:9 thumbnail for a titled post
func (c *Client) GenerateThumbnail(ctx context.Context, title, niche string) (*types.Media, error) {
	return c.image(ctx, ImageRequest{Prompt: thumbnailPrompt(title, niche), AspectRatio: "16:9"}, true)
}

func (c *Client) image(ctx context.Context, req ImageRequest, highQuality bool) (*types.Media, error) {
	req.Quality, req.Model = QualityStandard, c.models.Image
	if highQuality {
		req.Quality, req.Model = QualityHigh, c.models.ImageHQ
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	media, err := c.imageOnce(ctx, req)
	if err == nil || !highQuality || !IsPermissionDenied(err) {
		return media, err
	}

	c.logger.WithError(err).WithField("model", req.Model).Warn("High quality image model unavailable, falling back to standard")
	req.Quality, req.Model = QualityStandard, c.models.Image
	media, fallbackErr := c.imageOnce(ctx, req)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: %v (standard fallback: %w)", ErrInvalidOrUnbilledCredential, err, fallbackErr)
	}
	return media, nil
}

func (c *Client) imageOnce(ctx context.Context, req ImageRequest) (*types.Media, error) {
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	media, err := Retry(ctx, c.policy, "image", func(ctx context.Context) (*types.Media, error) {
		return c.provider.Image(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	if media.Empty() {
		return nil, nil
	}
	return media, nil
}

// BuildVideoRequest applies defaults and the multi-reference override: with
// more than one reference the model, resolution and aspect ratio are forced.
func (c *Client) BuildVideoRequest(prompt string, refs []*types.Media, opts VideoOptions) VideoRequest {
	req := VideoRequest{
		Model:       opts.Model,
		Prompt:      prompt,
		References:  refs,
		Resolution:  opts.Resolution,
		AspectRatio: opts.AspectRatio,
	}
	if req.Model == "" {
		req.Model = c.models.Video
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "9:16"
	}
	if len(refs) > 1 {
		req.Model = config.MultiReferenceVideoModel
		req.Resolution = config.MultiReferenceResolution
		req.AspectRatio = config.MultiReferenceAspectRatio
	}
	return req
}

// GenerateVideo starts a video generation and polls until it completes.
// Each poll is retried independently with its own attempt budget.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, refs []*types.Media, opts VideoOptions) (*types.Media, error) {
	req := c.BuildVideoRequest(prompt, refs, opts)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := c.keys.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	op, err := Retry(ctx, c.policy, "video start", func(ctx context.Context) (*VideoOperation, error) {
		return c.provider.StartVideo(ctx, key, req)
	})
	if err != nil {
		return nil, premiumError(err)
	}

	pollPolicy := c.policy.WithMaxAttempts(config.VideoPollMaxAttempts)
	for op == nil || !op.Done {
		if op == nil {
			return nil, fmt.Errorf("video start: %w", ErrEmptyResponse)
		}
		if err := c.policy.sleep(ctx, c.pollInterval); err != nil {
			return nil, fmt.Errorf("video poll wait interrupted: %w", err)
		}
		current := op
		op, err = Retry(ctx, pollPolicy, "video poll", func(ctx context.Context) (*VideoOperation, error) {
			return c.provider.PollVideo(ctx, key, current)
		})
		if err != nil {
			return nil, premiumError(err)
		}
	}

	if op.Video.Empty() {
		return nil, fmt.Errorf("video operation %s: %w", op.Name, ErrEmptyResponse)
	}
	return op.Video, nil
}

// AnalyzeSentiment classifies text as positive, negative or neutral
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	out, err := c.GenerateText(ctx, sentimentPrompt(text))
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, string(SentimentNegative)):
		return SentimentNegative, nil
	case strings.Contains(lower, string(SentimentPositive)):
		return SentimentPositive, nil
	default:
		return SentimentNeutral, nil
	}
}

// GenerateReply drafts a reply to a comment in the given tone
func (c *Client) GenerateReply(ctx context.Context, comment, tone string) (string, error) {
	return c.GenerateText(ctx, replyPrompt(comment, tone))
}

// premiumError marks not-found and permission failures on premium models
func premiumError(err error) error {
	if IsPermissionDenied(err) {
		return fmt.Errorf("%w: %w", ErrInvalidOrUnbilledCredential, err)
	}
	return err
}
