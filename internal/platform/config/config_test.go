package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"API_PORT", "BACKEND_API_KEY", "CORS_ALLOWED_ORIGINS",
		"OFFLINE_ONLY", "TIER", "AUTO_FALLBACK", "MAX_CONCURRENT_JOBS",
		"GRACEFUL_SHUTDOWN_TIMEOUT_MS", "HEARTBEAT_INTERVAL_MS", "EVENT_BUFFER_SIZE",
		"OPENAI_API_KEY", "GEMINI_API_KEY", "GEMINI_STYLE_REFERENCE_IMAGE",
		"ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID", "FFMPEG_PATH", "FFPROBE_PATH",
		"ARTIFACT_DATABASE_URL", "WORK_DIR",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadAppliesDefaultsWithNoEnvOrFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tier != model.RequestedTierProIfAvailable {
		t.Errorf("Tier = %s, want ProIfAvailable", cfg.Tier)
	}
	if !cfg.AutoFallback {
		t.Errorf("AutoFallback = false, want true by default")
	}
	if cfg.MaxConcurrentJobs != 5 {
		t.Errorf("MaxConcurrentJobs = %d, want 5", cfg.MaxConcurrentJobs)
	}
	if cfg.HeartbeatIntervalMs != 10000 {
		t.Errorf("HeartbeatIntervalMs = %d, want 10000", cfg.HeartbeatIntervalMs)
	}
	if cfg.EventBufferSize != 1024 {
		t.Errorf("EventBufferSize = %d, want 1024", cfg.EventBufferSize)
	}
	if len(cfg.RetryDefaults) == 0 {
		t.Errorf("expected non-empty RetryDefaults")
	}
}

func TestLoadRejectsOfflineOnlyWithProTier(t *testing.T) {
	clearEnv(t)
	os.Setenv("OFFLINE_ONLY", "true")
	os.Setenv("TIER", "Pro")
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for offline_only + Pro tier, got nil")
	}
}

func TestLoadRejectsInvalidTier(t *testing.T) {
	clearEnv(t)
	os.Setenv("TIER", "Ultra")
	defer clearEnv(t)

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid tier, got nil")
	}
}

func TestLoadEnvOverridesYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "max_concurrent_jobs: 2\ntier: Free\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	os.Setenv("MAX_CONCURRENT_JOBS", "9")
	defer clearEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxConcurrentJobs != 9 {
		t.Errorf("MaxConcurrentJobs = %d, want 9 (env should win)", cfg.MaxConcurrentJobs)
	}
	if cfg.Tier != model.RequestedTierFree {
		t.Errorf("Tier = %s, want Free (from yaml, no env set)", cfg.Tier)
	}
}

func TestLoadRetryDefaultsOverrideMergesWithBuiltins(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "retry_defaults:\n  Script:\n    max_attempts: 7\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	defer clearEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	script := cfg.RetryDefaults[model.StageScript]
	if script.MaxAttempts != 7 {
		t.Errorf("Script.MaxAttempts = %d, want 7", script.MaxAttempts)
	}
	if _, ok := cfg.RetryDefaults[model.StageVoice]; !ok {
		t.Errorf("expected untouched Voice stage default to remain present")
	}
}
