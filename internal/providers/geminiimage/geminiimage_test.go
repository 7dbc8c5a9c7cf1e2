package geminiimage

import (
	"errors"
	"strings"
	"testing"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/provider"
)

func TestComposePromptCarriesSceneAndOrientation(t *testing.T) {
	prompt := composePrompt(provider.ImageRequest{ScenePrompt: "a lighthouse at dusk", Aspect: model.AspectWidescreen16x9})
	if !strings.Contains(prompt, "a lighthouse at dusk") {
		t.Errorf("expected scene prompt to appear, got: %s", prompt)
	}
	if !strings.Contains(prompt, "Landscape") || !strings.Contains(prompt, "16:9") {
		t.Errorf("expected landscape/16:9 orientation language, got: %s", prompt)
	}
}

func TestOrientationForDefaultsToPortrait(t *testing.T) {
	label, ratio := orientationFor(model.Aspect(""))
	if label != "Portrait" || ratio != "9:16" {
		t.Errorf("expected Portrait/9:16 default, got %s/%s", label, ratio)
	}
}

func TestOrientationForSquare(t *testing.T) {
	label, ratio := orientationFor(model.AspectSquare1x1)
	if label != "Square" || ratio != "1:1" {
		t.Errorf("expected Square/1:1, got %s/%s", label, ratio)
	}
}

func TestClassifyErrMapsKnownPatterns(t *testing.T) {
	cases := []struct {
		msg  string
		code model.ErrorCode
	}{
		{"429 quota exceeded", model.ErrRateLimit},
		{"403 permission denied", model.ErrAuthFailure},
		{"blocked by safety filters", model.ErrContentPolicy},
		{"context deadline exceeded", model.ErrTimeoutOrCancel},
		{"some other failure", model.ErrGeneric},
	}
	for _, c := range cases {
		err := classifyErr(errors.New(c.msg))
		ee, ok := err.(*model.EngineError)
		if !ok {
			t.Fatalf("expected *model.EngineError, got %T", err)
		}
		if ee.Code != c.code {
			t.Errorf("classifyErr(%q) code = %s, want %s", c.msg, ee.Code, c.code)
		}
	}
}

func TestLoadStyleReferenceMissingFileReturnsFalse(t *testing.T) {
	p := New("key", "/nonexistent/style-ref.jpg", t.TempDir())
	_, _, ok := p.loadStyleReference()
	if ok {
		t.Errorf("expected loadStyleReference to report false for a missing file")
	}
}
