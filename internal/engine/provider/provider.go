// Package provider defines the capability-typed interfaces the pipeline
// orchestrator drives (LLM, TTS, Image, VideoEncoder) and the name-keyed,
// write-once-at-startup registry that holds their concrete implementations.
//
// The pattern is the teacher's own services.TTSService interface
// (internal/services/tts.go) generalized from one category to four: every
// provider exposes its capability manifest alongside its operation so the
// selection engine (C2) never needs to special-case a concrete type.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// ScriptRequest is the input to an LLM provider's script drafting call.
type ScriptRequest struct {
	Brief model.Brief
	Plan  model.PlanSpec
}

// ScriptResult is the output of a script drafting call.
type ScriptResult struct {
	Text string
}

// LLM drafts a script from a brief and plan. Streaming providers call
// onChunk as text becomes available; onChunk may be nil, and a
// non-streaming provider is free to ignore it and only return the final
// result.
type LLM interface {
	Manifest() model.ProviderManifest
	GenerateScript(ctx context.Context, req ScriptRequest, onChunk func(text string)) (ScriptResult, error)
}

// VoiceRequest is the input to a TTS provider's synthesis call.
type VoiceRequest struct {
	Lines []string
	Voice model.VoiceSpec
}

// VoiceResult is the output of a synthesis call: a narration audio file on
// disk (registered with the cleanup manager by the caller) plus its
// measured duration.
type VoiceResult struct {
	AudioPath  string
	DurationMs int
	Format     string
}

// TTS synthesizes narration audio from script lines.
type TTS interface {
	Manifest() model.ProviderManifest
	Synthesize(ctx context.Context, req VoiceRequest) (VoiceResult, error)
}

// ImageRequest is the input to an Image provider's scene generation call.
type ImageRequest struct {
	ScenePrompt string
	Aspect      model.Aspect
	SceneIndex  int
}

// ImageResult is the output of a scene generation call.
type ImageResult struct {
	AssetPaths []string
}

// Image generates visual assets for one scene.
type Image interface {
	Manifest() model.ProviderManifest
	GenerateScene(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// RenderProgress is a point-in-time progress report from a VideoEncoder.
type RenderProgress struct {
	Percentage   float64
	Elapsed      time.Duration
	ETA          time.Duration
	CurrentStage string
}

// VideoEncoder drives the external encoder subprocess to turn a timeline
// into a final video file, reporting progress through sink as it runs.
type VideoEncoder interface {
	Manifest() model.ProviderManifest
	Render(ctx context.Context, timeline model.Timeline, spec model.RenderSpec, sink func(RenderProgress)) (outputPath string, err error)
}

// Registry is a name-keyed, per-category catalog of providers. It is
// write-once: Register calls are expected at startup, after which the
// read accessors and Manifests are safe for concurrent readers without further locking
// concerns beyond the mutex guarding the startup window itself.
type Registry struct {
	mu   sync.RWMutex
	llm  map[string]LLM
	tts  map[string]TTS
	image map[string]Image
	encoder map[string]VideoEncoder
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:     make(map[string]LLM),
		tts:     make(map[string]TTS),
		image:   make(map[string]Image),
		encoder: make(map[string]VideoEncoder),
	}
}

// RegisterLLM adds an LLM provider under its manifest name.
func (r *Registry) RegisterLLM(p LLM) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("provider: registry sealed, cannot register %q", p.Manifest().Name)
	}
	r.llm[p.Manifest().Name] = p
	return nil
}

// RegisterTTS adds a TTS provider under its manifest name.
func (r *Registry) RegisterTTS(p TTS) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("provider: registry sealed, cannot register %q", p.Manifest().Name)
	}
	r.tts[p.Manifest().Name] = p
	return nil
}

// RegisterImage adds an Image provider under its manifest name.
func (r *Registry) RegisterImage(p Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("provider: registry sealed, cannot register %q", p.Manifest().Name)
	}
	r.image[p.Manifest().Name] = p
	return nil
}

// RegisterEncoder adds a VideoEncoder provider under its manifest name.
func (r *Registry) RegisterEncoder(p VideoEncoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("provider: registry sealed, cannot register %q", p.Manifest().Name)
	}
	r.encoder[p.Manifest().Name] = p
	return nil
}

// Seal prevents further registration. The composition root calls this once
// after wiring every provider, matching the "registrations happen once at
// startup" contract.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// LLM returns the named LLM provider, or false if absent. Absent providers
// are represented by absence, never a nil entry.
func (r *Registry) LLM(name string) (LLM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.llm[name]
	return p, ok
}

// TTS returns the named TTS provider, or false if absent.
func (r *Registry) TTS(name string) (TTS, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tts[name]
	return p, ok
}

// Image returns the named Image provider, or false if absent.
func (r *Registry) Image(name string) (Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.image[name]
	return p, ok
}

// Encoder returns the named VideoEncoder provider, or false if absent.
func (r *Registry) Encoder(name string) (VideoEncoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.encoder[name]
	return p, ok
}

// Manifests returns the capability manifest of every registered provider in
// the given category, in registration order is not guaranteed (map-backed);
// callers that need a deterministic chain should sort by tier via C2.
func (r *Registry) Manifests(category model.ProviderCategory) []model.ProviderManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ProviderManifest
	switch category {
	case model.CategoryLLM:
		for _, p := range r.llm {
			out = append(out, p.Manifest())
		}
	case model.CategoryTTS:
		for _, p := range r.tts {
			out = append(out, p.Manifest())
		}
	case model.CategoryImage:
		for _, p := range r.image {
			out = append(out, p.Manifest())
		}
	case model.CategoryVideoEncoder:
		for _, p := range r.encoder {
			out = append(out, p.Manifest())
		}
	}
	return out
}
