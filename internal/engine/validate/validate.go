// Package validate implements the pre-generation validator (C8): one
// synchronous pass over a submission before a job is accepted, checking
// spec validity, provider availability, encoder reachability, and resource
// preconditions.
//
// Grounded on the teacher's internal/api/handlers.go CreateProject
// validation block (required-field checks before a project/job is
// created), generalized from "topic must be non-empty" to the full brief/
// plan/voice/render closed-set and range validation this spec requires.
package validate

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/provider"
	"github.com/aura-video/studio-engine/internal/engine/selection"
)

// Request mirrors the public "submit job" input from spec §6.
type Request struct {
	Brief         model.Brief
	Plan          model.PlanSpec
	Voice         model.VoiceSpec
	Render        model.RenderSpec
	OfflineOnly   bool
	Tier          model.RequestedTier
	CorrelationID string
}

// Issue is one validation failure, severe enough to reject the submission.
type Issue struct {
	Code    model.ErrorCode
	Message string
}

// ValidationResult is C8's output.
type ValidationResult struct {
	IsValid  bool
	Issues   []Issue
	Warnings []string
}

// MostSevere returns the first recorded issue, used to pick the error code
// surfaced to the caller on a failed validation.
func (r ValidationResult) MostSevere() (Issue, bool) {
	if len(r.Issues) == 0 {
		return Issue{}, false
	}
	return r.Issues[0], true
}

// DiskFreeFunc reports free bytes on the volume backing path.
type DiskFreeFunc func(path string) (uint64, error)

// Validator runs the C8 pass. Construct one per process and reuse it: the
// encoder reachability probe is cached for the process lifetime.
type Validator struct {
	registry     *provider.Registry
	encoderPath  string
	workDir      string
	diskFree     DiskFreeFunc
	probeOnce    sync.Once
	probeOK      bool
	probeErr     error
}

// NewValidator returns a Validator bound to registry for provider
// availability checks, encoderPath as the external encoder binary to
// probe, workDir as the volume to check for free space, and diskFree as
// the free-space query (e.g. backed by gopsutil/disk).
func NewValidator(registry *provider.Registry, encoderPath, workDir string, diskFree DiskFreeFunc) *Validator {
	return &Validator{registry: registry, encoderPath: encoderPath, workDir: workDir, diskFree: diskFree}
}

// Validate runs the full C8 pass over req.
func (v *Validator) Validate(ctx context.Context, req Request) ValidationResult {
	result := ValidationResult{IsValid: true}

	v.validateSpec(req, &result)
	v.validateProviders(req, &result)
	v.validateEncoder(ctx, &result)
	v.validateResources(req, &result)

	return result
}

func (v *Validator) validateSpec(req Request, result *ValidationResult) {
	fail := func(format string, args ...any) {
		result.IsValid = false
		result.Issues = append(result.Issues, Issue{Code: model.ErrInputValidation, Message: fmt.Sprintf(format, args...)})
	}

	switch req.Brief.Aspect {
	case model.AspectWidescreen16x9, model.AspectVertical9x16, model.AspectSquare1x1:
	default:
		fail("brief.aspect %q is not a recognized aspect", req.Brief.Aspect)
	}
	if req.Brief.Topic == "" {
		fail("brief.topic must not be empty")
	}

	if req.Plan.TargetDuration < time.Second || req.Plan.TargetDuration > 2*time.Hour {
		fail("plan.target_duration %s out of range [1s, 2h]", req.Plan.TargetDuration)
	}
	switch req.Plan.Pacing {
	case model.PacingFast, model.PacingConversational, model.PacingSlow:
	default:
		fail("plan.pacing %q is not a recognized pacing", req.Plan.Pacing)
	}
	switch req.Plan.Density {
	case model.DensitySparse, model.DensityBalanced, model.DensityDense:
	default:
		fail("plan.density %q is not a recognized density", req.Plan.Density)
	}

	if req.Voice.Rate < 0.5 || req.Voice.Rate > 2.0 {
		fail("voice.rate %.2f out of range [0.5, 2.0]", req.Voice.Rate)
	}
	if req.Voice.Pitch < 0.5 || req.Voice.Pitch > 2.0 {
		fail("voice.pitch %.2f out of range [0.5, 2.0]", req.Voice.Pitch)
	}
	switch req.Voice.PauseStyle {
	case model.PauseShort, model.PauseNatural, model.PauseLong:
	default:
		fail("voice.pause_style %q is not a recognized pause style", req.Voice.PauseStyle)
	}

	switch req.Render.Container {
	case model.ContainerMP4, model.ContainerMKV, model.ContainerWebM:
	default:
		fail("render.container %q is not a recognized container", req.Render.Container)
	}
	switch req.Render.VideoCodec {
	case model.CodecH264, model.CodecVP9, model.CodecAV1:
	default:
		fail("render.video_codec %q is not a recognized codec", req.Render.VideoCodec)
	}
	if req.Render.FPS < 24 || req.Render.FPS > 120 {
		fail("render.fps %d out of range [24, 120]", req.Render.FPS)
	}
	if req.Render.QualityLevel < 0 || req.Render.QualityLevel > 100 {
		fail("render.quality_level %d out of range [0, 100]", req.Render.QualityLevel)
	}
	if req.Render.Width <= 0 || req.Render.Height <= 0 {
		fail("render resolution %dx%d is invalid", req.Render.Width, req.Render.Height)
	}

	switch req.Tier {
	case model.RequestedTierFree, model.RequestedTierProIfAvailable, model.RequestedTierPro:
	default:
		fail("tier %q is not a recognized tier", req.Tier)
	}

	// Offline + Pro is its own, more specific rejection (E307), checked
	// here so the submission is refused even before a job is created.
	if req.OfflineOnly && req.Tier == model.RequestedTierPro {
		result.IsValid = false
		result.Issues = append([]Issue{{Code: model.ErrOfflineViolation, Message: "tier Pro requested under offline_only"}}, result.Issues...)
	}
}

// requiredStages are the categories whose total absence fails validation
// outright; TTS and Image are deliberately absent here because the
// orchestrator degrades gracefully (placeholder visuals, silent narration)
// when no provider is available for those stages (spec §4.9).
var requiredStages = []struct {
	Stage    model.Stage
	Category model.ProviderCategory
}{
	{model.StageScript, model.CategoryLLM},
	{model.StageRender, model.CategoryVideoEncoder},
}

var softStages = []struct {
	Stage    model.Stage
	Category model.ProviderCategory
}{
	{model.StageVoice, model.CategoryTTS},
	{model.StageVisuals, model.CategoryImage},
}

func (v *Validator) validateProviders(req Request, result *ValidationResult) {
	for _, s := range requiredStages {
		available := v.registry.Manifests(s.Category)
		_, err := selection.Select(selection.Input{
			Stage:         s.Stage,
			Category:      s.Category,
			RequestedTier: req.Tier,
			OfflineOnly:   req.OfflineOnly,
			Available:     available,
		})
		if err != nil {
			result.IsValid = false
			code := model.ErrNoProviderAvailable
			var ee *model.EngineError
			if asEngineError(err, &ee) {
				code = ee.Code
			}
			result.Issues = append(result.Issues, Issue{Code: code, Message: fmt.Sprintf("stage %s: %v", s.Stage, err)})
		}
	}
	for _, s := range softStages {
		available := v.registry.Manifests(s.Category)
		_, err := selection.Select(selection.Input{
			Stage:         s.Stage,
			Category:      s.Category,
			RequestedTier: req.Tier,
			OfflineOnly:   req.OfflineOnly,
			Available:     available,
		})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("stage %s: no provider available, will degrade gracefully", s.Stage))
		}
	}
}

func asEngineError(err error, target **model.EngineError) bool {
	ee, ok := err.(*model.EngineError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

func (v *Validator) validateEncoder(ctx context.Context, result *ValidationResult) {
	v.probeOnce.Do(func() {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		cmd := exec.CommandContext(probeCtx, v.encoderPath, "-version")
		v.probeErr = cmd.Run()
		v.probeOK = v.probeErr == nil
	})
	if !v.probeOK {
		result.IsValid = false
		result.Issues = append(result.Issues, Issue{
			Code:    model.ErrEncoderRuntime,
			Message: fmt.Sprintf("encoder %q did not respond to version probe: %v", v.encoderPath, v.probeErr),
		})
	}
}

// estimateBytes lower-bounds expected output size from resolution, fps,
// duration, and a codec-specific bits-per-pixel factor.
func estimateBytes(render model.RenderSpec, duration time.Duration) int64 {
	factor := 0.08
	switch render.VideoCodec {
	case model.CodecH264:
		factor = 0.08
	case model.CodecVP9:
		factor = 0.06
	case model.CodecAV1:
		factor = 0.04
	}
	pixelsPerFrame := float64(render.Width * render.Height)
	frames := duration.Seconds() * float64(render.FPS)
	bits := pixelsPerFrame * frames * factor
	return int64(bits / 8)
}

func (v *Validator) validateResources(req Request, result *ValidationResult) {
	if v.diskFree == nil {
		return
	}
	free, err := v.diskFree(v.workDir)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not determine free disk space: %v", err))
		return
	}
	needed := estimateBytes(req.Render, req.Plan.TargetDuration)
	if needed > 0 && free < uint64(needed) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"estimated output size %d bytes may exceed free disk space %d bytes on %s", needed, free, v.workDir))
	}
}
