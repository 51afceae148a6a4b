package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a CycleConfig fails validation
var ErrInvalidConfig = errors.New("invalid cycle config")

// CyclePhase represents the pipeline state machine
type CyclePhase string

const (
	PhaseIdle                 CyclePhase = "idle"
	PhaseScanningTrends       CyclePhase = "scanning_trends"
	PhaseGeneratingContent    CyclePhase = "generating_content"
	PhaseAnalyzingImagePrompt CyclePhase = "analyzing_image_prompt"
	PhaseGeneratingImage      CyclePhase = "generating_image"
	PhaseGeneratingVideo      CyclePhase = "generating_video"
	PhaseGeneratingThumbnail  CyclePhase = "generating_thumbnail"
	PhaseScheduling           CyclePhase = "scheduling"
	PhaseCooldown             CyclePhase = "cooldown"
)

// phaseOrder is the strict order a cycle moves through. Video and thumbnail
// may be skipped, nothing else may.
var phaseOrder = []CyclePhase{
	PhaseIdle,
	PhaseScanningTrends,
	PhaseGeneratingContent,
	PhaseAnalyzingImagePrompt,
	PhaseGeneratingImage,
	PhaseGeneratingVideo,
	PhaseGeneratingThumbnail,
	PhaseScheduling,
	PhaseCooldown,
}

// Index returns the position of the phase in the cycle, or -1 if unknown
func (p CyclePhase) Index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Optional reports whether the phase may be skipped within a cycle
func (p CyclePhase) Optional() bool {
	return p == PhaseGeneratingVideo || p == PhaseGeneratingThumbnail
}

// CanAdvance reports whether moving from p to next respects the cycle order.
// Any phase may fall back to Idle (abort or reset).
func (p CyclePhase) CanAdvance(next CyclePhase) bool {
	if next == PhaseIdle {
		return true
	}
	from, to := p.Index(), next.Index()
	if from < 0 || to <= from {
		return false
	}
	for _, skipped := range phaseOrder[from+1 : to] {
		if !skipped.Optional() {
			return false
		}
	}
	return true
}

// CycleConfig is the caller-owned configuration of the auto-pilot loop
type CycleConfig struct {
	TopicNiche      string `json:"topic_niche" yaml:"topic_niche"`
	IntervalMinutes int    `json:"interval_minutes" yaml:"interval_minutes"`
	IsActive        bool   `json:"is_active" yaml:"is_active"`
	EnableVideo     bool   `json:"enable_video" yaml:"enable_video"`
}

// Validate checks the config invariants
func (c CycleConfig) Validate() error {
	if strings.TrimSpace(c.TopicNiche) == "" {
		return fmt.Errorf("%w: topic niche is required", ErrInvalidConfig)
	}
	if c.IntervalMinutes < 1 {
		return fmt.Errorf("%w: interval must be at least 1 minute, got %d", ErrInvalidConfig, c.IntervalMinutes)
	}
	return nil
}

// FeatureToggles are persisted switches read at the start of every cycle
type FeatureToggles struct {
	HighQualityImages bool `json:"high_quality_images"`
	ResumeOnAbort     bool `json:"resume_on_abort"`
}

// DefaultFeatureToggles is used when the store holds no toggles yet
func DefaultFeatureToggles() FeatureToggles {
	return FeatureToggles{HighQualityImages: true, ResumeOnAbort: true}
}
