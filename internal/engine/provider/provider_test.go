package provider

import (
	"context"
	"testing"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

type fakeLLM struct{ name string }

func (f fakeLLM) Manifest() model.ProviderManifest {
	return model.ProviderManifest{Name: f.name, Category: model.CategoryLLM, Tier: model.ProviderTierFree}
}
func (f fakeLLM) GenerateScript(ctx context.Context, req ScriptRequest, onChunk func(string)) (ScriptResult, error) {
	return ScriptResult{Text: "hello"}, nil
}

func TestRegisterAndLookupLLM(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterLLM(fakeLLM{name: "rulebased"}); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	p, ok := r.LLM("rulebased")
	if !ok {
		t.Fatal("expected rulebased to be registered")
	}
	if p.Manifest().Name != "rulebased" {
		t.Errorf("Manifest().Name = %s, want rulebased", p.Manifest().Name)
	}
	if _, ok := r.LLM("missing"); ok {
		t.Error("expected missing provider to be absent, not a nil entry")
	}
}

func TestSealRejectsFurtherRegistration(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	err := r.RegisterLLM(fakeLLM{name: "late"})
	if err == nil {
		t.Fatal("expected registration after Seal to fail")
	}
}

func TestManifestsFiltersByCategory(t *testing.T) {
	r := NewRegistry()
	r.RegisterLLM(fakeLLM{name: "a"})
	r.RegisterLLM(fakeLLM{name: "b"})
	r.Seal()

	manifests := r.Manifests(model.CategoryLLM)
	if len(manifests) != 2 {
		t.Fatalf("len(manifests) = %d, want 2", len(manifests))
	}
	if len(r.Manifests(model.CategoryTTS)) != 0 {
		t.Error("expected no TTS manifests registered")
	}
}
