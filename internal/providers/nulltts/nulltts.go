// Package nulltts implements a provider.TTS with no network dependency:
// it writes a minimal silent WAV file sized to the requested narration's
// estimated speaking duration, used as the chain's last resort for
// Free-tier and offline jobs when no hosted TTS provider is reachable.
//
// No teacher precedent (every services.* TTS client hits a hosted API);
// built fresh in the same small-struct idiom as rulebasedllm, generalizing
// the orchestrator's own silent-narration degrade path into an actual
// registrable provider so offline jobs can request it explicitly instead
// of only falling back to it implicitly.
package nulltts

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"context"

	"github.com/google/uuid"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

const (
	sampleRate    = 16000
	bitsPerSample = 16
	channels      = 1
	wordsPerMinute = 150.0
)

// Provider synthesizes silent narration audio.
type Provider struct {
	workDir string
}

// New returns a Provider writing silent WAV files under workDir.
func New(workDir string) *Provider {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Provider{workDir: workDir}
}

func (p *Provider) Manifest() model.ProviderManifest {
	return model.ProviderManifest{
		Name:                 "Null",
		Category:             model.CategoryTTS,
		Tier:                 model.ProviderTierFree,
		OnlineRequired:       false,
		SupportsStreaming:    false,
		SupportsCancellation: false,
	}
}

// Synthesize writes a silent PCM WAV file long enough to cover the
// estimated speaking duration of req.Lines at a typical speech rate.
func (p *Provider) Synthesize(ctx context.Context, req provider.VoiceRequest) (provider.VoiceResult, error) {
	text := strings.Join(req.Lines, " ")
	words := len(strings.Fields(text))
	rate := req.Voice.Rate
	if rate == 0 {
		rate = 1.0
	}
	durationMs := int(float64(words) / (wordsPerMinute * rate) * 60 * 1000)
	if durationMs < 500 {
		durationMs = 500
	}

	audio := silentWAV(durationMs)
	outPath := filepath.Join(p.workDir, fmt.Sprintf("silent-%s.wav", uuid.NewString()))
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "write silent audio file", err)
	}

	return provider.VoiceResult{AudioPath: outPath, DurationMs: durationMs, Format: "wav"}, nil
}

// silentWAV builds a canonical 16-bit mono PCM WAV file of durationMs
// silence.
func silentWAV(durationMs int) []byte {
	numSamples := sampleRate * durationMs / 1000
	dataSize := numSamples * channels * (bitsPerSample / 8)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	blockAlign := channels * (bitsPerSample / 8)
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	// remaining bytes are zero-initialized silence already.
	return buf
}
