// Package geminiimage implements a provider.Image backed by Gemini's
// multimodal image generation model, using the official
// google.golang.org/genai SDK rather than a hand-rolled REST client.
//
// The teacher's internal/services/gemini.go talks to the same
// gemini-3-pro-image-preview model but does so with a raw net/http POST
// against the generateContent REST endpoint, since the teacher predates
// this module's adoption of the genai SDK (used elsewhere in the teacher
// only for Veo, via internal/services/veo.go). This adapter keeps the
// teacher's prompt-construction logic (style-reference framing, aspect
// ratio handling, composeImagePrompt's structure) but issues the call
// through client.Models.GenerateContent the way veo.go drives
// client.Models.GenerateVideos, so the module's one Gemini API key and
// one client type serve both image and video generation.
package geminiimage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"github.com/google/uuid"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/outputs"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

const defaultModel = "gemini-3-pro-image-preview"

// Provider generates scene visuals via Gemini image generation.
type Provider struct {
	apiKey             string
	model              string
	styleReferencePath string
	workDir            string
}

// New returns a Provider. styleReferencePath, if non-empty and readable,
// is sent alongside every prompt as a style reference image, exactly as
// the teacher's GeminiService does; workDir is where generated images are
// written.
func New(apiKey, styleReferencePath, workDir string) *Provider {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Provider{apiKey: apiKey, model: defaultModel, styleReferencePath: styleReferencePath, workDir: workDir}
}

func (p *Provider) Manifest() model.ProviderManifest {
	return model.ProviderManifest{
		Name:                 "gemini",
		Category:             model.CategoryImage,
		Tier:                 model.ProviderTierPro,
		OnlineRequired:       true,
		SupportsStreaming:    false,
		SupportsCancellation: true,
	}
}

// GenerateScene renders one image for req.ScenePrompt.
func (p *Provider) GenerateScene(ctx context.Context, req provider.ImageRequest) (provider.ImageResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return provider.ImageResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "create genai client", err)
	}

	promptText := composePrompt(req)
	parts := []*genai.Part{genai.NewPartFromText(promptText)}
	if styleData, mimeType, ok := p.loadStyleReference(); ok {
		parts = append(parts, genai.NewPartFromBytes(styleData, mimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return provider.ImageResult{}, classifyErr(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return provider.ImageResult{}, model.NewEngineError(model.ErrEmptyOutput, p.Manifest().Name, "no candidates in response", nil)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			outPath := filepath.Join(p.workDir, fmt.Sprintf("scene-%d-%s.png", req.SceneIndex, uuid.NewString()))
			if err := os.WriteFile(outPath, part.InlineData.Data, 0o644); err != nil {
				return provider.ImageResult{}, model.NewEngineError(model.ErrGeneric, p.Manifest().Name, "write image file", err)
			}
			if v := outputs.Image(outPath); !v.Valid {
				return provider.ImageResult{}, model.NewEngineError(model.ErrOutputInvalid, p.Manifest().Name, v.Reason, nil)
			}
			return provider.ImageResult{AssetPaths: []string{outPath}}, nil
		}
	}
	return provider.ImageResult{}, model.NewEngineError(model.ErrEmptyOutput, p.Manifest().Name, "response contained no inline image data", nil)
}

// composePrompt builds the scene prompt, generalizing the teacher's
// composeImagePrompt: style-reference framing, the scene description
// itself, and an aspect-ratio/orientation closing line.
func composePrompt(req provider.ImageRequest) string {
	var b strings.Builder
	b.WriteString("STYLE REFERENCE: if a reference image is attached, copy only its artistic style, brushwork, lighting, and color palette. Do not copy its subject or scene.\n\n")
	b.WriteString("SCENE TO DEPICT:\n")
	b.WriteString(req.ScenePrompt)

	orient, ratio := orientationFor(req.Aspect)
	fmt.Fprintf(&b, "\n\nOutput: %s %s, highest quality.", orient, ratio)
	return b.String()
}

func orientationFor(aspect model.Aspect) (label, ratio string) {
	switch aspect {
	case model.AspectWidescreen16x9:
		return "Landscape", "16:9"
	case model.AspectSquare1x1:
		return "Square", "1:1"
	default:
		return "Portrait", "9:16"
	}
}

func (p *Provider) loadStyleReference() ([]byte, string, bool) {
	if p.styleReferencePath == "" {
		return nil, "", false
	}
	data, err := os.ReadFile(p.styleReferencePath)
	if err != nil {
		return nil, "", false
	}
	mimeType := "image/jpeg"
	if filepath.Ext(p.styleReferencePath) == ".png" {
		mimeType = "image/png"
	}
	return data, mimeType, true
}

func classifyErr(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate") || strings.Contains(lower, "quota") || strings.Contains(lower, "429"):
		return model.NewEngineError(model.ErrRateLimit, "gemini", msg, err)
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "permission") || strings.Contains(lower, "401") || strings.Contains(lower, "403"):
		return model.NewEngineError(model.ErrAuthFailure, "gemini", msg, err)
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return model.NewEngineError(model.ErrContentPolicy, "gemini", msg, err)
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "canceled"):
		return model.NewEngineError(model.ErrTimeoutOrCancel, "gemini", msg, err)
	default:
		return model.NewEngineError(model.ErrGeneric, "gemini", msg, err)
	}
}
