package config

import (
	"fmt"
	"os"

	"autopilot/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration of the auto-pilot service
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Generation GenerationConfig `yaml:"generation"`
	Trends     TrendsConfig     `yaml:"trends"`
	Store      StoreConfig      `yaml:"store"`
	S3         S3Config         `yaml:"s3"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Publish    PublishConfig    `yaml:"publish"`

	// Cycle seeds the loop when the store has no saved config
	Cycle types.CycleConfig `yaml:"cycle"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type GenerationConfig struct {
	APIKey        string `yaml:"api_key"`
	APIURL        string `yaml:"api_url"`
	TextProvider  string `yaml:"text_provider"`
	VideoProvider string `yaml:"video_provider"`
	CohereAPIKey  string `yaml:"cohere_api_key"`
	TextModel     string `yaml:"text_model"`
	ImageModel    string `yaml:"image_model"`
	ImageModelHQ  string `yaml:"image_model_hq"`
	VideoModel    string `yaml:"video_model"`
}

type TrendsConfig struct {
	Feeds   []string `yaml:"feeds"`
	Extract bool     `yaml:"extract"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Prefix     string `yaml:"prefix"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisPass  string `yaml:"redis_pass"`
	RedisDB    int    `yaml:"redis_db"`
	SQLitePath string `yaml:"sqlite_path"`
}

// S3Config selects the artifact bucket. Artifacts are inlined as data URLs when Bucket is empty.
type S3Config struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Profile       string `yaml:"profile"`
	Endpoint      string `yaml:"endpoint"`
	Prefix        string `yaml:"prefix"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	PostsTopic   string   `yaml:"posts_topic"`
	ControlTopic string   `yaml:"control_topic"`
	GroupID      string   `yaml:"group_id"`
}

type PublishConfig struct {
	Schedule              string `yaml:"schedule"`
	YouTubeServiceAccount string `yaml:"youtube_service_account"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Generation: GenerationConfig{
			APIURL:        "https://generativelanguage.googleapis.com",
			TextProvider:  "rest",
			VideoProvider: "rest",
			TextModel:     DefaultTextModel,
			ImageModel:    DefaultImageModel,
			ImageModelHQ:  DefaultImageModelHQ,
			VideoModel:    DefaultVideoModel,
		},
		Store: StoreConfig{
			Backend:    "memory",
			Prefix:     "autopilot:",
			RedisAddr:  "localhost:6379",
			SQLitePath: "autopilot.db",
		},
		Kafka: KafkaConfig{
			PostsTopic:   "autopilot-posts",
			ControlTopic: "autopilot-control",
			GroupID:      "autopilot-consumer-group",
		},
		Publish: PublishConfig{Schedule: "@every 1m"},
		Cycle: types.CycleConfig{
			TopicNiche:      "AI",
			IntervalMinutes: 60,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// A .env file is loaded first when present (non-fatal if missing).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("AUTOPILOT_CONFIG"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = GetEnvOrDefault("PORT", cfg.Server.Port)
	cfg.Log.Level = GetEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = GetEnvOrDefault("LOG_FORMAT", cfg.Log.Format)

	g := &cfg.Generation
	g.APIKey = GetEnvOrDefault(EnvGenerationAPIKey, g.APIKey)
	g.APIURL = GetEnvOrDefault("GENERATION_API_URL", g.APIURL)
	g.TextProvider = GetEnvOrDefault("TEXT_PROVIDER", g.TextProvider)
	g.VideoProvider = GetEnvOrDefault("VIDEO_PROVIDER", g.VideoProvider)
	g.CohereAPIKey = GetEnvOrDefault("COHERE_API_KEY", g.CohereAPIKey)
	g.TextModel = GetEnvOrDefault("TEXT_MODEL", g.TextModel)
	g.ImageModel = GetEnvOrDefault("IMAGE_MODEL", g.ImageModel)
	g.ImageModelHQ = GetEnvOrDefault("IMAGE_MODEL_HQ", g.ImageModelHQ)
	g.VideoModel = GetEnvOrDefault("VIDEO_MODEL", g.VideoModel)

	if feeds := GetEnvList("TREND_FEEDS"); len(feeds) > 0 {
		cfg.Trends.Feeds = feeds
	}
	cfg.Trends.Extract = GetEnvBool("TREND_EXTRACT", cfg.Trends.Extract)

	s := &cfg.Store
	s.Backend = GetEnvOrDefault("STORE_BACKEND", s.Backend)
	s.Prefix = GetEnvOrDefault("STORE_PREFIX", s.Prefix)
	s.RedisAddr = GetEnvOrDefault("REDIS_ADDR", s.RedisAddr)
	s.RedisPass = GetEnvOrDefault("REDIS_PASS", s.RedisPass)
	s.RedisDB = GetEnvInt("REDIS_DB", s.RedisDB)
	s.SQLitePath = GetEnvOrDefault("SQLITE_PATH", s.SQLitePath)

	b := &cfg.S3
	b.Bucket = GetEnvOrDefault("S3_BUCKET", b.Bucket)
	b.Region = GetEnvOrDefault("S3_REGION", b.Region)
	b.Profile = GetEnvOrDefault("S3_PROFILE", b.Profile)
	b.Endpoint = GetEnvOrDefault("S3_ENDPOINT", b.Endpoint)
	b.Prefix = GetEnvOrDefault("S3_PREFIX", b.Prefix)
	b.UsePathStyle = GetEnvBool("S3_USE_PATH_STYLE", b.UsePathStyle)
	b.PublicBaseURL = GetEnvOrDefault("S3_PUBLIC_BASE_URL", b.PublicBaseURL)

	k := &cfg.Kafka
	if brokers := GetEnvList("KAFKA_BOOTSTRAP_SERVERS"); len(brokers) > 0 {
		k.Brokers = brokers
	}
	k.PostsTopic = GetEnvOrDefault("KAFKA_TOPIC_POSTS", k.PostsTopic)
	k.ControlTopic = GetEnvOrDefault("KAFKA_TOPIC_CONTROL", k.ControlTopic)
	k.GroupID = GetEnvOrDefault("KAFKA_CONSUMER_GROUP_ID", k.GroupID)

	cfg.Publish.Schedule = GetEnvOrDefault("PUBLISH_SCHEDULE", cfg.Publish.Schedule)
	cfg.Publish.YouTubeServiceAccount = GetEnvOrDefault("YOUTUBE_SERVICE_ACCOUNT", cfg.Publish.YouTubeServiceAccount)

	c := &cfg.Cycle
	c.TopicNiche = GetEnvOrDefault("AUTOPILOT_NICHE", c.TopicNiche)
	c.IntervalMinutes = GetEnvInt("AUTOPILOT_INTERVAL_MINUTES", c.IntervalMinutes)
	c.EnableVideo = GetEnvBool("AUTOPILOT_ENABLE_VIDEO", c.EnableVideo)
	c.IsActive = GetEnvBool("AUTOPILOT_ACTIVE", c.IsActive)
}
