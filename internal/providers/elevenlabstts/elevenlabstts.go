// Package elevenlabstts implements a provider.TTS backed by the
// ElevenLabs text-to-speech REST API.
//
// Grounded directly on the teacher's internal/services/elevenlabs.go: a
// plain net/http POST to the text-to-speech endpoint with a JSON body
// (model_id, voice_settings, speed), the response body is the raw MP3
// audio, and duration is estimated heuristically rather than read back
// from the API, since ElevenLabs does not report it.
package elevenlabstts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

const (
	apiBase    = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultModelID = "eleven_flash_v2_5"
)

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	Speed         float64       `json:"speed,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Provider synthesizes narration via the ElevenLabs REST API.
type Provider struct {
	apiKey     string
	defaultVoiceID string
	workDir    string
	client     *http.Client
}

// New returns a Provider. defaultVoiceID is used when
// model.VoiceSpec.VoiceName is empty; workDir is where synthesized audio
// files are written (caller/orchestrator owns their cleanup lifetime).
func New(apiKey, defaultVoiceID, workDir string) *Provider {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Provider{
		apiKey:         apiKey,
		defaultVoiceID: defaultVoiceID,
		workDir:        workDir,
		client:         &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *Provider) Manifest() model.ProviderManifest {
	return model.ProviderManifest{
		Name:                 "elevenlabs",
		Category:             model.CategoryTTS,
		Tier:                 model.ProviderTierPro,
		OnlineRequired:       true,
		SupportsStreaming:    false,
		SupportsCancellation: true,
	}
}

// Synthesize joins req.Lines into one narration block and posts it to
// ElevenLabs, writing the returned MP3 bytes to a file under workDir.
func (p *Provider) Synthesize(ctx context.Context, req provider.VoiceRequest) (provider.VoiceResult, error) {
	text := strings.Join(req.Lines, " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrInputValidation, p.Manifest().Name, "no narration text to synthesize", nil)
	}

	voiceID := req.Voice.VoiceName
	if voiceID == "" {
		voiceID = p.defaultVoiceID
	}
	if voiceID == "" {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrInputValidation, p.Manifest().Name, "no voice id configured", nil)
	}

	speed := req.Voice.Rate
	if speed == 0 {
		speed = 1.0
	}

	body := ttsRequest{
		Text:    text,
		ModelID: defaultModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			UseSpeakerBoost: true,
		},
		Speed: speed,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "marshal request", err)
	}

	url := fmt.Sprintf("%s/%s", apiBase, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return provider.VoiceResult{}, classifyNetErr(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "read response body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return provider.VoiceResult{}, classifyStatus(resp.StatusCode, audio)
	}

	outPath := filepath.Join(p.workDir, fmt.Sprintf("voice-%s.mp3", uuid.NewString()))
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return provider.VoiceResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "write audio file", err)
	}

	return provider.VoiceResult{
		AudioPath:  outPath,
		DurationMs: estimateDurationMs(text, speed),
		Format:     "mp3",
	}, nil
}

// estimateDurationMs approximates spoken duration from word count and
// speech rate, the same heuristic the teacher uses since ElevenLabs never
// reports duration in its synchronous TTS response.
func estimateDurationMs(text string, speed float64) int {
	words := len(strings.Fields(text))
	const wordsPerMinute = 150.0
	minutes := float64(words) / (wordsPerMinute * speed)
	return int(minutes * 60 * 1000)
}

func classifyNetErr(err error) error {
	return model.NewEngineError(model.ErrTimeoutOrCancel, "elevenlabs", err.Error(), err)
}

func classifyStatus(status int, body []byte) error {
	msg := fmt.Sprintf("elevenlabs returned status %d: %s", status, truncate(string(body), 500))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewEngineError(model.ErrAuthFailure, "elevenlabs", msg, nil)
	case http.StatusTooManyRequests:
		return model.NewEngineError(model.ErrRateLimit, "elevenlabs", msg, nil)
	default:
		return model.NewEngineError(model.ErrGeneric, "elevenlabs", msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
