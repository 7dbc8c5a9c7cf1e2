// Package openaillm implements a provider.LLM backed by OpenAI chat
// completions.
//
// Grounded on the teacher's internal/services/openai.go GeneratePlan: a
// long structured system prompt built from the brief/plan fields, one
// CreateChatCompletion call, then a required-field validation pass before
// the result is accepted. The teacher asks the model for JSON clips; this
// adapter asks for a plain scene-marked script instead, since
// provider.ScriptResult is just narration text and C10's outputs.Script
// validator only requires a recognizable scene marker, not a JSON shape.
package openaillm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/outputs"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

const defaultModel = "gpt-5-mini"

// Provider drafts scripts via the OpenAI chat completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// New returns a Provider using apiKey. modelName empty defaults to
// defaultModel.
func New(apiKey, modelName string) *Provider {
	if modelName == "" {
		modelName = defaultModel
	}
	return &Provider{client: openai.NewClient(apiKey), model: modelName}
}

func (p *Provider) Manifest() model.ProviderManifest {
	return model.ProviderManifest{
		Name:                 "openai",
		Category:             model.CategoryLLM,
		Tier:                 model.ProviderTierPro,
		OnlineRequired:       true,
		SupportsStreaming:    false,
		SupportsCancellation: true,
	}
}

// GenerateScript asks OpenAI for a scene-marked narration script matching
// req.Brief and req.Plan. onChunk is never called; the OpenAI client used
// here has no streaming mode wired.
func (p *Provider) GenerateScript(ctx context.Context, req provider.ScriptRequest, onChunk func(text string)) (provider.ScriptResult, error) {
	systemPrompt := buildSystemPrompt(req)
	userPrompt := buildUserPrompt(req)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return provider.ScriptResult{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return provider.ScriptResult{}, model.NewEngineError(model.ErrEmptyOutput, p.Manifest().Name, "openai returned no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	style := req.Plan.Style
	if v := outputs.Script(text, style); !v.Valid {
		return provider.ScriptResult{}, model.NewEngineError(model.ErrOutputInvalid, p.Manifest().Name, v.Reason, nil)
	}
	return provider.ScriptResult{Text: text}, nil
}

func buildSystemPrompt(req provider.ScriptRequest) string {
	aspectDesc := "portrait-format viewing (like TikTok/Reels/Shorts)"
	switch req.Brief.Aspect {
	case model.AspectWidescreen16x9:
		aspectDesc = "landscape-format viewing (like YouTube)"
	case model.AspectSquare1x1:
		aspectDesc = "square-format viewing (like Instagram feed)"
	}

	tone := req.Brief.Tone
	if tone == "" {
		tone = "documentary"
	}
	language := req.Brief.Language
	if language == "" {
		language = "en"
	}
	style := req.Plan.Style
	if style == "" {
		style = "narration"
	}
	marker := "Scene"
	if strings.EqualFold(style, "screenplay") {
		marker = "INT."
	}

	return fmt.Sprintf(`You are an expert video scriptwriter producing narration for %s (%s).

TOPIC: %s
AUDIENCE: %s
GOAL: %s
TONE: %s
LANGUAGE: %s
TARGET DURATION: %.0f seconds
PACING: %s
DENSITY: %s

Write the full narration as a sequence of scenes. Begin every scene with a
line starting exactly with %q followed by its number (for example %q),
then the narration for that scene on the following lines. Write
conversationally, as if spoken aloud — short sentences, natural pauses,
no stage directions, no markdown. Do not include anything other than the
scene-marked narration text in your response.`,
		aspectDesc, req.Brief.Aspect, req.Brief.Topic, req.Brief.Audience, req.Brief.Goal,
		tone, language, req.Plan.TargetDuration.Seconds(), req.Plan.Pacing, req.Plan.Density,
		marker, marker+" 1")
}

func buildUserPrompt(req provider.ScriptRequest) string {
	return fmt.Sprintf("Write the narration script now for topic %q.", req.Brief.Topic)
}

func classifyError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return model.NewEngineError(model.ErrRateLimit, "openai", msg, err)
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "401") || strings.Contains(lower, "invalid api key"):
		return model.NewEngineError(model.ErrAuthFailure, "openai", msg, err)
	case strings.Contains(lower, "context deadline exceeded") || strings.Contains(lower, "canceled"):
		return model.NewEngineError(model.ErrTimeoutOrCancel, "openai", msg, err)
	default:
		return model.NewEngineError(model.ErrGeneric, "openai", msg, err)
	}
}
