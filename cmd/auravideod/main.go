// Command auravideod is the composition root for Aura Video Studio's job
// execution and pipeline orchestration engine: it loads configuration,
// wires every provider adapter into the registry, assembles C1-C12, and
// serves the HTTP/SSE surface until a termination signal arrives.
//
// Grounded directly on the teacher's cmd/api/main.go: the same
// config-load -> wire services -> start server -> signal.Notify ->
// shutdown shape, generalized from the teacher's fixed DB/Redis/storage
// wiring to this engine's provider registry and engine components.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/composer"
	"github.com/aura-video/studio-engine/internal/engine/eventbus"
	"github.com/aura-video/studio-engine/internal/engine/jobstore"
	"github.com/aura-video/studio-engine/internal/engine/orchestrator"
	"github.com/aura-video/studio-engine/internal/engine/provider"
	"github.com/aura-video/studio-engine/internal/engine/resilience"
	"github.com/aura-video/studio-engine/internal/engine/shutdown"
	"github.com/aura-video/studio-engine/internal/engine/supervisor"
	"github.com/aura-video/studio-engine/internal/engine/validate"
	"github.com/aura-video/studio-engine/internal/httpapi"
	"github.com/aura-video/studio-engine/internal/platform/artifactstore"
	"github.com/aura-video/studio-engine/internal/platform/config"
	"github.com/aura-video/studio-engine/internal/platform/logging"
	"github.com/aura-video/studio-engine/internal/platform/sysprofile"
	"github.com/aura-video/studio-engine/internal/providers/elevenlabstts"
	"github.com/aura-video/studio-engine/internal/providers/geminiimage"
	"github.com/aura-video/studio-engine/internal/providers/nulltts"
	"github.com/aura-video/studio-engine/internal/providers/openaillm"
	"github.com/aura-video/studio-engine/internal/providers/rulebasedllm"
)

func main() {
	log := logging.WithComponent("main")
	log.Info().Msg("starting auravideod")

	cfg, err := config.Load(os.Getenv("AURA_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	profile := sysprofile.Detect(context.Background())
	log.Info().Int("logical_cores", profile.LogicalCores).Float64("ram_gib", profile.RAMGiB).
		Str("tier", string(profile.Tier)).Msg("detected system profile")

	registry := provider.NewRegistry()

	// LLM: OpenAI when configured, rule-based fallback always available so
	// Free-tier/offline submissions always have a Script provider.
	if cfg.OpenAIKey != "" {
		if err := registry.RegisterLLM(openaillm.New(cfg.OpenAIKey, "")); err != nil {
			log.Fatal().Err(err).Msg("register openai llm")
		}
		log.Info().Msg("LLM provider: OpenAI")
	}
	if err := registry.RegisterLLM(rulebasedllm.New()); err != nil {
		log.Fatal().Err(err).Msg("register rule-based llm")
	}

	// Image: Gemini when configured. No Free-tier image provider exists;
	// the orchestrator degrades Visuals to placeholder stills instead.
	if cfg.GeminiKey != "" {
		if err := registry.RegisterImage(geminiimage.New(cfg.GeminiKey, cfg.GeminiStyleReferenceImage, cfg.WorkDir)); err != nil {
			log.Fatal().Err(err).Msg("register gemini image")
		}
		log.Info().Msg("Image provider: Gemini")
	}

	// TTS: ElevenLabs when configured, Null (silent) fallback always
	// available so Free-tier/offline submissions always have a Voice
	// provider.
	if cfg.ElevenLabsKey != "" {
		if err := registry.RegisterTTS(elevenlabstts.New(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.WorkDir)); err != nil {
			log.Fatal().Err(err).Msg("register elevenlabs tts")
		}
		log.Info().Msg("TTS provider: ElevenLabs")
	}
	if err := registry.RegisterTTS(nulltts.New(cfg.WorkDir)); err != nil {
		log.Fatal().Err(err).Msg("register null tts")
	}

	sup := supervisor.New()
	comp := composer.New(composer.Config{BinaryPath: cfg.FFmpegPath, WorkDir: cfg.WorkDir}, sup)
	if err := registry.RegisterEncoder(comp); err != nil {
		log.Fatal().Err(err).Msg("register encoder")
	}
	registry.Seal()

	bus := eventbus.New(eventbus.Config{
		BufferSize:        cfg.EventBufferSize,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
	})
	store := jobstore.New(bus)

	var breaker *resilience.Breaker
	if cfg.BreakerRedisURL != "" {
		redisStore, err := resilience.NewRedisStore(context.Background(), cfg.BreakerRedisURL, "auravideod")
		if err != nil {
			log.Fatal().Err(err).Msg("connect breaker redis store")
		}
		defer redisStore.Close()
		breaker = resilience.NewBreakerWithStore(resilience.BreakerConfig{}, redisStore)
		log.Info().Msg("circuit breaker state persisted to redis")
	} else {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{})
	}

	var persister *artifactstore.Store
	if cfg.ArtifactDatabaseURL != "" {
		persister, err = artifactstore.New(cfg.ArtifactDatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect artifact store")
		}
		if err := persister.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("ensure artifact store schema")
		}
		defer persister.Close()
		log.Info().Msg("best-effort artifact persistence enabled")
	}

	orch := orchestrator.New(store, bus, registry, breaker, comp, persister, orchestrator.Config{
		WorkDir:           cfg.WorkDir,
		MaxConcurrentJobs: int64(cfg.MaxConcurrentJobs),
	})
	validator := validate.NewValidator(registry, cfg.FFmpegPath, cfg.WorkDir, nil)

	handler := httpapi.NewHandler(store, bus, validator, orch, profile, cfg.AutoFallback)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})
	if cfg.BackendAPIKey != "" {
		log.Info().Msg("API key authentication enabled")
	} else {
		log.Warn().Msg("no BACKEND_API_KEY set, API is unprotected")
	}

	server := &http.Server{Addr: ":" + cfg.APIPort, Handler: router}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdownOrch := shutdown.New(store, bus, sup, orch, shutdown.Config{
		GracefulTimeout: time.Duration(cfg.GracefulShutdownTimeoutMs) * time.Millisecond,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received, draining")

	report := shutdownOrch.Shutdown()
	log.Info().Int("jobs_warned", report.JobsWarned).Int("jobs_canceled", report.JobsCanceled).
		Bool("drained_before_kill", report.DrainedBeforeKill).Msg("engine teardown complete")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.GracefulShutdownTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
