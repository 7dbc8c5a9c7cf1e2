// Package rulebasedllm implements a provider.LLM with no network
// dependency: a deterministic, template-driven script generator used as
// the chain's last resort for Free-tier and offline jobs (the
// "RuleBased" provider named in spec.md §8), when no hosted LLM is
// registered or reachable.
//
// The teacher has no offline fallback (every services.* client is a
// hosted API wrapper); this is built fresh in the teacher's idiom of a
// small, dependency-free struct, the same shape as
// internal/services/tts.go's bare interface definition.
package rulebasedllm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/outputs"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

// Provider drafts a plain, formulaic scene-marked script from the brief
// alone. It never calls out to the network and always succeeds given any
// non-empty topic.
type Provider struct{}

// New returns a Provider.
func New() *Provider { return &Provider{} }

func (p *Provider) Manifest() model.ProviderManifest {
	return model.ProviderManifest{
		Name:                 "RuleBased",
		Category:             model.CategoryLLM,
		Tier:                 model.ProviderTierFree,
		OnlineRequired:       false,
		SupportsStreaming:    false,
		SupportsCancellation: false,
	}
}

// GenerateScript stitches together a small number of templated scenes
// covering the brief's topic, goal, and audience. onChunk is ignored.
func (p *Provider) GenerateScript(ctx context.Context, req provider.ScriptRequest, onChunk func(text string)) (provider.ScriptResult, error) {
	topic := strings.TrimSpace(req.Brief.Topic)
	if topic == "" {
		return provider.ScriptResult{}, model.NewEngineError(model.ErrInputValidation, p.Manifest().Name, "brief has no topic", nil)
	}
	goal := req.Brief.Goal
	if goal == "" {
		goal = "share something worth knowing"
	}
	audience := req.Brief.Audience
	if audience == "" {
		audience = "a curious viewer"
	}

	marker := "Scene"
	if strings.EqualFold(req.Plan.Style, "screenplay") {
		marker = "INT."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 1\n", marker)
	fmt.Fprintf(&b, "Here's something about %s that's worth a minute of your time.\n\n", topic)
	fmt.Fprintf(&b, "%s 2\n", marker)
	fmt.Fprintf(&b, "The short version: %s. This is meant for %s.\n\n", goal, audience)
	fmt.Fprintf(&b, "%s 3\n", marker)
	fmt.Fprintf(&b, "That's %s in a nutshell. Thanks for watching.\n", topic)

	text := b.String()
	if v := outputs.Script(text, req.Plan.Style); !v.Valid {
		return provider.ScriptResult{}, model.NewEngineError(model.ErrOutputInvalid, p.Manifest().Name, v.Reason, nil)
	}
	return provider.ScriptResult{Text: text}, nil
}
