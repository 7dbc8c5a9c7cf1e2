// Package config loads the engine's runtime configuration.
//
// Grounded on the teacher's internal/config package: .env loading via
// github.com/joho/godotenv, getEnv/getEnvBool/getEnvInt helpers, and
// required-field validation on Load. Generalized from the teacher's
// fixed video-generation settings to spec.md §6's configuration surface
// (offline_only, tier, auto_fallback, max_concurrent_jobs,
// graceful_shutdown_timeout_ms, heartbeat_interval_ms, event_buffer_size,
// retry_defaults) plus provider credentials, and additionally layers an
// optional YAML file over the environment the way link270-shrinkray
// layers its config.yaml, for operators who prefer a file to env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/resilience"
)

// Config is the engine's fully resolved runtime configuration.
type Config struct {
	// HTTP surface
	APIPort            string
	BackendAPIKey      string
	CorsAllowedOrigins string

	// Core job policy, spec.md §6
	OfflineOnly               bool
	Tier                      model.RequestedTier
	AutoFallback              bool
	MaxConcurrentJobs         int
	GracefulShutdownTimeoutMs int
	HeartbeatIntervalMs       int
	EventBufferSize           int
	RetryDefaults             map[model.Stage]resilience.RetryConfig

	// Provider credentials
	OpenAIKey                 string
	GeminiKey                 string
	GeminiStyleReferenceImage string
	ElevenLabsKey             string
	ElevenLabsVoiceID         string

	// Encoder
	FFmpegPath  string
	FFprobePath string

	// Best-effort artifact persistence (optional)
	ArtifactDatabaseURL string

	// Best-effort circuit breaker state persistence across restarts (optional)
	BreakerRedisURL string

	// Work directories
	WorkDir string
}

// fileConfig mirrors the subset of Config that may be set via config.yaml.
// Zero values mean "not set in the file"; env vars still take precedence
// when both are present, matching the teacher's env-first philosophy.
type fileConfig struct {
	APIPort                   string                   `yaml:"api_port"`
	BackendAPIKey             string                   `yaml:"backend_api_key"`
	CorsAllowedOrigins        string                   `yaml:"cors_allowed_origins"`
	OfflineOnly               *bool                    `yaml:"offline_only"`
	Tier                      string                   `yaml:"tier"`
	AutoFallback              *bool                    `yaml:"auto_fallback"`
	MaxConcurrentJobs         int                      `yaml:"max_concurrent_jobs"`
	GracefulShutdownTimeoutMs int                      `yaml:"graceful_shutdown_timeout_ms"`
	HeartbeatIntervalMs       int                      `yaml:"heartbeat_interval_ms"`
	EventBufferSize           int                      `yaml:"event_buffer_size"`
	RetryDefaults             map[string]retryOverride `yaml:"retry_defaults"`
	OpenAIKey                 string                   `yaml:"openai_api_key"`
	GeminiKey                 string                   `yaml:"gemini_api_key"`
	GeminiStyleReferenceImage string                   `yaml:"gemini_style_reference_image"`
	ElevenLabsKey             string                   `yaml:"elevenlabs_api_key"`
	ElevenLabsVoiceID         string                   `yaml:"elevenlabs_voice_id"`
	FFmpegPath                string                   `yaml:"ffmpeg_path"`
	FFprobePath               string                   `yaml:"ffprobe_path"`
	ArtifactDatabaseURL       string                   `yaml:"artifact_database_url"`
	BreakerRedisURL           string                   `yaml:"breaker_redis_url"`
	WorkDir                   string                   `yaml:"work_dir"`
}

type retryOverride struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// Load reads .env (if present), an optional yamlPath config file, then
// environment variables (highest precedence), and validates required
// fields the way the teacher's Load does.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", yamlPath, err)
		}
	}

	cfg := &Config{
		APIPort:            getEnv("API_PORT", firstNonEmpty(fc.APIPort, "8080")),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", fc.BackendAPIKey),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", fc.CorsAllowedOrigins),

		OfflineOnly:               getEnvBool("OFFLINE_ONLY", boolOr(fc.OfflineOnly, false)),
		Tier:                      model.RequestedTier(getEnv("TIER", firstNonEmpty(fc.Tier, string(model.RequestedTierProIfAvailable)))),
		AutoFallback:              getEnvBool("AUTO_FALLBACK", boolOr(fc.AutoFallback, true)),
		MaxConcurrentJobs:         getEnvInt("MAX_CONCURRENT_JOBS", intOr(fc.MaxConcurrentJobs, 5)),
		GracefulShutdownTimeoutMs: getEnvInt("GRACEFUL_SHUTDOWN_TIMEOUT_MS", intOr(fc.GracefulShutdownTimeoutMs, 30000)),
		HeartbeatIntervalMs:       getEnvInt("HEARTBEAT_INTERVAL_MS", intOr(fc.HeartbeatIntervalMs, 10000)),
		EventBufferSize:           getEnvInt("EVENT_BUFFER_SIZE", intOr(fc.EventBufferSize, 1024)),
		RetryDefaults:             resolveRetryDefaults(fc.RetryDefaults),

		OpenAIKey:                 getEnv("OPENAI_API_KEY", fc.OpenAIKey),
		GeminiKey:                 getEnv("GEMINI_API_KEY", fc.GeminiKey),
		GeminiStyleReferenceImage: getEnv("GEMINI_STYLE_REFERENCE_IMAGE", firstNonEmpty(fc.GeminiStyleReferenceImage, "assets/style-reference/sample.jpeg")),
		ElevenLabsKey:             getEnv("ELEVENLABS_API_KEY", fc.ElevenLabsKey),
		ElevenLabsVoiceID:         getEnv("ELEVENLABS_VOICE_ID", fc.ElevenLabsVoiceID),

		FFmpegPath:  getEnv("FFMPEG_PATH", firstNonEmpty(fc.FFmpegPath, "ffmpeg")),
		FFprobePath: getEnv("FFPROBE_PATH", firstNonEmpty(fc.FFprobePath, "ffprobe")),

		ArtifactDatabaseURL: getEnv("ARTIFACT_DATABASE_URL", fc.ArtifactDatabaseURL),
		BreakerRedisURL:     getEnv("BREAKER_REDIS_URL", fc.BreakerRedisURL),
		WorkDir:             getEnv("WORK_DIR", firstNonEmpty(fc.WorkDir, os.TempDir())),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Tier {
	case model.RequestedTierFree, model.RequestedTierProIfAvailable, model.RequestedTierPro:
	default:
		return fmt.Errorf("TIER must be one of Free, ProIfAvailable, Pro, got %q", c.Tier)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be >= 1")
	}
	if c.OfflineOnly && c.Tier == model.RequestedTierPro {
		return fmt.Errorf("TIER=Pro is incompatible with OFFLINE_ONLY=true (spec E307): choose ProIfAvailable or Free")
	}
	return nil
}

func resolveRetryDefaults(overrides map[string]retryOverride) map[model.Stage]resilience.RetryConfig {
	defaults := make(map[model.Stage]resilience.RetryConfig, len(resilience.DefaultRetryConfigs))
	for stage, cfg := range resilience.DefaultRetryConfigs {
		defaults[stage] = cfg
	}
	for stageName, o := range overrides {
		stage := model.Stage(stageName)
		cfg, ok := defaults[stage]
		if !ok {
			cfg = resilience.RetryConfig{}
		}
		if o.MaxAttempts > 0 {
			cfg.MaxAttempts = o.MaxAttempts
		}
		if o.BaseDelayMs > 0 {
			cfg.BaseDelay = time.Duration(o.BaseDelayMs) * time.Millisecond
		}
		if o.MaxDelayMs > 0 {
			cfg.MaxDelay = time.Duration(o.MaxDelayMs) * time.Millisecond
		}
		defaults[stage] = cfg
	}
	return defaults
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func boolOr(p *bool, fallback bool) bool {
	if p != nil {
		return *p
	}
	return fallback
}

func intOr(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
