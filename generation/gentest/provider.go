// Package gentest provides a scriptable generation.Provider for tests.
package gentest

import (
	"context"
	"sync"
	"time"

	"autopilot/generation"
	"autopilot/types"
)

// PNG is a tiny stand-in image payload
var PNG = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// Provider records calls and delegates to the optional hooks. A nil hook
// returns a canned successful response.
type Provider struct {
	mu    sync.Mutex
	calls map[string]int
	keys  []string

	TextFunc       func(ctx context.Context, req generation.TextRequest) (string, error)
	ImageFunc      func(ctx context.Context, req generation.ImageRequest) (*types.Media, error)
	StartVideoFunc func(ctx context.Context, req generation.VideoRequest) (*generation.VideoOperation, error)
	PollVideoFunc  func(ctx context.Context, op *generation.VideoOperation) (*generation.VideoOperation, error)
	TrendsFunc     func(ctx context.Context, req generation.TrendRequest) (*generation.TrendResult, error)
}

// New returns a Provider with all hooks unset
func New() *Provider {
	return &Provider{calls: make(map[string]int)}
}

func (p *Provider) record(op, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[op]++
	p.keys = append(p.keys, key)
}

// Calls returns how many times op was invoked
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Keys returns every key the provider was called with, in order
func (p *Provider) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *Provider) Text(ctx context.Context, apiKey string, req generation.TextRequest) (string, error) {
	p.record("text", apiKey)
	if p.TextFunc != nil {
		return p.TextFunc(ctx, req)
	}
	return "generated text", nil
}

func (p *Provider) Image(ctx context.Context, apiKey string, req generation.ImageRequest) (*types.Media, error) {
	p.record("image", apiKey)
	if p.ImageFunc != nil {
		return p.ImageFunc(ctx, req)
	}
	return &types.Media{MimeType: "image/png", Data: PNG}, nil
}

func (p *Provider) StartVideo(ctx context.Context, apiKey string, req generation.VideoRequest) (*generation.VideoOperation, error) {
	p.record("video.start", apiKey)
	if p.StartVideoFunc != nil {
		return p.StartVideoFunc(ctx, req)
	}
	return &generation.VideoOperation{Name: "operations/fake", Done: true, Video: Video()}, nil
}

func (p *Provider) PollVideo(ctx context.Context, apiKey string, op *generation.VideoOperation) (*generation.VideoOperation, error) {
	p.record("video.poll", apiKey)
	if p.PollVideoFunc != nil {
		return p.PollVideoFunc(ctx, op)
	}
	return &generation.VideoOperation{Name: op.Name, Done: true, Video: Video()}, nil
}

func (p *Provider) Trends(ctx context.Context, apiKey string, req generation.TrendRequest) (*generation.TrendResult, error) {
	p.record("trends", apiKey)
	if p.TrendsFunc != nil {
		return p.TrendsFunc(ctx, req)
	}
	return &generation.TrendResult{
		Text:       "Quantum chips hit a new milestone\nResearchers announced a stable 1000 qubit processor.",
		SourceURLs: []string{"https://example.com/quantum"},
	}, nil
}

// Video returns a canned clip
func Video() *types.Media {
	return &types.Media{MimeType: "video/mp4", Data: []byte("mp4")}
}

// Sleeper records requested waits without sleeping
type Sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns the recorded waits
func (s *Sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// RateLimited returns a 429 provider error
func RateLimited(message string) error {
	return &generation.ProviderError{Op: "fake", StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: message}
}

// Denied returns a 403 provider error
func Denied() error {
	return &generation.ProviderError{Op: "fake", StatusCode: 403, Status: "PERMISSION_DENIED", Message: "The caller does not have permission"}
}

// Client returns a generation client over p with instant retries
func Client(p generation.Provider, sleeper *Sleeper) *generation.Client {
	policy := generation.DefaultRetryPolicy()
	policy.Sleep = sleeper.Sleep
	return generation.NewClient(p, generation.NewKeyResolver(generation.StaticKey("test-key")),
		generation.WithRetryPolicy(policy),
		generation.WithPollInterval(time.Millisecond),
	)
}
