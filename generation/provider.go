package generation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"autopilot/config"
	"autopilot/types"
)

// Quality selects the image model tier
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

var (
	imageAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}
	videoAspectRatios = []string{"16:9", "9:16"}
	videoResolutions  = []string{"720p", "1080p"}
)

// TextRequest asks for a completion
type TextRequest struct {
	Model  string
	Prompt string
	System string
}

func (r TextRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: text prompt is empty", ErrInvalidRequest)
	}
	return nil
}

// ImageRequest asks for a single image
type ImageRequest struct {
	Model       string
	Prompt      string
	Quality     Quality
	AspectRatio string
}

func (r ImageRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: image prompt is empty", ErrInvalidRequest)
	}
	if r.Quality != QualityStandard && r.Quality != QualityHigh {
		return fmt.Errorf("%w: unknown image quality %q", ErrInvalidRequest, r.Quality)
	}
	if r.AspectRatio != "" && !slices.Contains(imageAspectRatios, r.AspectRatio) {
		return fmt.Errorf("%w: unsupported image aspect ratio %q", ErrInvalidRequest, r.AspectRatio)
	}
	return nil
}

// VideoRequest asks for a short clip, optionally guided by reference frames
type VideoRequest struct {
	Model       string
	Prompt      string
	References  []*types.Media
	Resolution  string
	AspectRatio string
}

func (r VideoRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: video prompt is empty", ErrInvalidRequest)
	}
	if len(r.References) > config.MaxReferenceImages {
		return fmt.Errorf("%w: %d reference images, at most %d allowed", ErrInvalidRequest, len(r.References), config.MaxReferenceImages)
	}
	for i, ref := range r.References {
		if ref.Empty() {
			return fmt.Errorf("%w: reference image %d is empty", ErrInvalidRequest, i)
		}
	}
	if r.Resolution != "" && !slices.Contains(videoResolutions, r.Resolution) {
		return fmt.Errorf("%w: unsupported video resolution %q", ErrInvalidRequest, r.Resolution)
	}
	if r.AspectRatio != "" && !slices.Contains(videoAspectRatios, r.AspectRatio) {
		return fmt.Errorf("%w: unsupported video aspect ratio %q", ErrInvalidRequest, r.AspectRatio)
	}
	return nil
}

// TrendRequest asks for grounded trending topics in a niche
type TrendRequest struct {
	Model string
	Niche string
}

func (r TrendRequest) Validate() error {
	if strings.TrimSpace(r.Niche) == "" {
		return fmt.Errorf("%w: trend niche is empty", ErrInvalidRequest)
	}
	return nil
}

// TrendResult is the grounded trend text plus the URLs it was built from
type TrendResult struct {
	Text       string
	SourceURLs []string
}

// VideoOperation tracks a long running video generation
type VideoOperation struct {
	Name  string
	Done  bool
	Video *types.Media
}

// Backends. Each call receives the credential resolved for that call.
type (
	TextBackend interface {
		Text(ctx context.Context, apiKey string, req TextRequest) (string, error)
	}
	ImageBackend interface {
		Image(ctx context.Context, apiKey string, req ImageRequest) (*types.Media, error)
	}
	VideoBackend interface {
		StartVideo(ctx context.Context, apiKey string, req VideoRequest) (*VideoOperation, error)
		PollVideo(ctx context.Context, apiKey string, op *VideoOperation) (*VideoOperation, error)
	}
	TrendBackend interface {
		Trends(ctx context.Context, apiKey string, req TrendRequest) (*TrendResult, error)
	}
)

// Provider is a full generation backend
type Provider interface {
	TextBackend
	ImageBackend
	VideoBackend
	TrendBackend
}

// Router composes a Provider from independent backends so text can come from
// one service while images and video come from another.
type Router struct {
	TextSource  TextBackend
	ImageSource ImageBackend
	VideoSource VideoBackend
	TrendSource TrendBackend
}

// NewRouter routes everything to base; override fields to swap backends
func NewRouter(base Provider) *Router {
	return &Router{TextSource: base, ImageSource: base, VideoSource: base, TrendSource: base}
}

func (r *Router) Text(ctx context.Context, apiKey string, req TextRequest) (string, error) {
	if r.TextSource == nil {
		return "", fmt.Errorf("%w: no text backend configured", ErrInvalidRequest)
	}
	return r.TextSource.Text(ctx, apiKey, req)
}

func (r *Router) Image(ctx context.Context, apiKey string, req ImageRequest) (*types.Media, error) {
	if r.ImageSource == nil {
		return nil, fmt.Errorf("%w: no image backend configured", ErrInvalidRequest)
	}
	return r.ImageSource.Image(ctx, apiKey, req)
}

func (r *Router) StartVideo(ctx context.Context, apiKey string, req VideoRequest) (*VideoOperation, error) {
	if r.VideoSource == nil {
		return nil, fmt.Errorf("%w: no video backend configured", ErrInvalidRequest)
	}
	return r.VideoSource.StartVideo(ctx, apiKey, req)
}

func (r *Router) PollVideo(ctx context.Context, apiKey string, op *VideoOperation) (*VideoOperation, error) {
	if r.VideoSource == nil {
		return nil, fmt.Errorf("%w: no video backend configured", ErrInvalidRequest)
	}
	return r.VideoSource.PollVideo(ctx, apiKey, op)
}

func (r *Router) Trends(ctx context.Context, apiKey string, req TrendRequest) (*TrendResult, error) {
	if r.TrendSource == nil {
		return nil, fmt.Errorf("%w: no trend backend configured", ErrInvalidRequest)
	}
	return r.TrendSource.Trends(ctx, apiKey, req)
}
