package config

import "time"

// Cycle Constants
const (
	// PostScheduleOffset is how far in the future a freshly generated post is scheduled
	PostScheduleOffset = 10 * time.Minute

	// MaxActivityEntries is the number of activity log entries kept
	MaxActivityEntries = 50

	// AbortBackoff is the first delay before resuming after an aborted cycle
	AbortBackoff = time.Minute

	// TopicFallback is used when a trend scan returns only whitespace
	TopicFallback = "latest news"
)

// Retry Constants
const (
	// DefaultMaxAttempts is the attempt budget for a single provider call
	DefaultMaxAttempts = 3

	// VideoPollMaxAttempts is the attempt budget for each video poll
	VideoPollMaxAttempts = 10

	// InitialRetryDelay is the first wait after a rate-limit failure
	InitialRetryDelay = 2 * time.Second

	// RetryBackoffFactor multiplies the delay after each rate-limited attempt
	RetryBackoffFactor = 2.0

	// RetryHintBuffer is added on top of a provider supplied "retry in Ns" hint
	RetryHintBuffer = time.Second

	// VideoPollInterval is the wait between video operation polls
	VideoPollInterval = 10 * time.Second
)

// Model Constants
const (
	DefaultTextModel    = "gemini-2.5-flash"
	DefaultImageModel   = "imagen-4.0-generate-001"
	DefaultImageModelHQ = "imagen-4.0-ultra-generate-001"
	DefaultVideoModel   = "veo-3.1-fast-generate-preview"
	DefaultCohereModel  = "command-r-plus"

	// MultiReferenceVideoModel, MultiReferenceResolution and
	// MultiReferenceAspectRatio are forced whenever more than one reference
	// image is supplied to video generation.
	MultiReferenceVideoModel  = "veo-3.1-generate-preview"
	MultiReferenceResolution  = "720p"
	MultiReferenceAspectRatio = "16:9"

	// MaxReferenceImages is the upper bound of reference frames for a video
	MaxReferenceImages = 3
)

// Video Output Constants
const (
	// AnimationDuration is the length in seconds of a locally animated clip
	AnimationDuration = 6

	// AnimationFPS is the frame rate of a locally animated clip
	AnimationFPS = 25

	// VideoWidth and VideoHeight are the 9:16 output size
	VideoWidth  = 720
	VideoHeight = 1280

	// VideoCodec is the video encoding codec
	VideoCodec = "libx264"

	// VideoPreset is the ffmpeg encoding speed preset
	VideoPreset = "fast"
)

// YouTube Constants
const (
	// YouTubeCategoryID for Science & Technology
	YouTubeCategoryID = "28"

	// YouTubePrivacyStatus sets video visibility
	YouTubePrivacyStatus = "public"

	// MaxTitleLength is the maximum character length for video titles
	MaxTitleLength = 100
)

// EnvGenerationAPIKey names the environment variable holding the provider key
const EnvGenerationAPIKey = "GENERATION_API_KEY"

// Store keys
const (
	KeyConfig     = "config"
	KeyPosts      = "posts"
	KeyLogs       = "logs"
	KeyFeatures   = "features"
	KeyCredential = "credential"
)
