package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/cleanup"
	"github.com/aura-video/studio-engine/internal/engine/eventbus"
	"github.com/aura-video/studio-engine/internal/engine/jobstore"
	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/provider"
	"github.com/aura-video/studio-engine/internal/engine/resilience"
	"github.com/aura-video/studio-engine/internal/providers/nulltts"
	"github.com/aura-video/studio-engine/internal/providers/rulebasedllm"
)

// These are the spec §8 end-to-end scenarios, made executable by driving
// Orchestrator.Submit through the videoRenderer port instead of a real ffmpeg
// binary: a mock encoder writes a validator-passing mp4 fixture directly.

// mockEncoder is an in-package videoRenderer double. It never shells out;
// it reports a couple of progress ticks through sink and then writes an
// mp4 fixture sized to clear outputs.Video's duration/bitrate threshold.
type mockEncoder struct {
	name  string
	tier  model.ProviderTier
	block chan struct{} // if non-nil, RenderJob waits on it (or ctx) before finishing
}

func (m *mockEncoder) Manifest() model.ProviderManifest {
	return model.ProviderManifest{Name: m.name, Category: model.CategoryVideoEncoder, Tier: m.tier}
}

func (m *mockEncoder) RenderJob(ctx context.Context, jobID string, timeline model.Timeline, spec model.RenderSpec, scope *cleanup.Scope, sink func(provider.RenderProgress)) (string, error) {
	if sink != nil {
		sink(provider.RenderProgress{Percentage: 50})
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if sink != nil {
		sink(provider.RenderProgress{Percentage: 100})
	}
	path := filepath.Join(os.TempDir(), jobID+"-render.mp4")
	data := append([]byte{0, 0, 0, 0}, []byte("ftyp")...)
	data = append(data, make([]byte, 32768)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	scope.RegisterTemp(path)
	return path, nil
}

// mockLLM is a provider.LLM double that always fails with a retryable
// EngineError, used to exercise scenario 2's Pro-tier fallback.
type mockLLM struct {
	name string
	tier model.ProviderTier
}

func (m *mockLLM) Manifest() model.ProviderManifest {
	return model.ProviderManifest{Name: m.name, Category: model.CategoryLLM, Tier: m.tier}
}

func (m *mockLLM) GenerateScript(ctx context.Context, req provider.ScriptRequest, onChunk func(string)) (provider.ScriptResult, error) {
	return provider.ScriptResult{}, model.NewEngineError(model.ErrGeneric, m.name, "simulated outage", nil)
}

func testJob(id string, tier model.RequestedTier, offline bool) *model.Job {
	return &model.Job{
		ID:     id,
		Brief:  model.Brief{Topic: "volcanoes", Goal: "explain eruptions", Audience: "curious teens"},
		Plan:   model.PlanSpec{TargetDuration: 4 * time.Second},
		Voice:  model.VoiceSpec{Rate: 1.0},
		Render: model.RenderSpec{Container: "mp4", FPS: 30, VideoKbps: 10, AudioKbps: 5},
		Tier:   tier,
		OfflineOnly: offline,
		Status: model.JobStatusQueued,
		CreatedUTC: time.Now().UTC(),
	}
}

func waitForTerminal(t *testing.T, store *jobstore.Store, jobID string, timeout time.Duration) *model.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, ok := store.Get(jobID)
		if ok && job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status within %v", jobID, timeout)
	return nil
}

// TestScenarioHappyFreeOnlyPathReachesDone is spec §8 scenario 1: an
// offline, Free-tier job with only the reference free providers registered
// (no image provider at all) should still reach Done with a valid video
// artifact, degrading gracefully to placeholder visuals.
func TestScenarioHappyFreeOnlyPathReachesDone(t *testing.T) {
	registry := provider.NewRegistry()
	if err := registry.RegisterLLM(rulebasedllm.New()); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	if err := registry.RegisterTTS(nulltts.New(t.TempDir())); err != nil {
		t.Fatalf("RegisterTTS: %v", err)
	}
	registry.Seal()

	bus := eventbus.New(eventbus.Config{})
	store := jobstore.New(bus)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig)
	enc := &mockEncoder{name: "MockEncoder", tier: model.ProviderTierFree}
	orch := New(store, bus, registry, breaker, enc, nil, Config{WorkDir: t.TempDir()})

	job := testJob("scenario1", model.RequestedTierFree, true)
	if err := store.Create(job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sub := bus.Subscribe(job.ID, "")
	var overall []float64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events {
			if ev.Kind == model.EventStepProgress {
				overall = append(overall, ev.PercentOverall)
			}
		}
	}()

	if err := orch.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	final := waitForTerminal(t, store, job.ID, 5*time.Second)
	sub.Close()
	<-done

	if final.Status != model.JobStatusDone {
		t.Fatalf("expected Done, got %s (failure: %+v)", final.Status, final.Failure)
	}
	if final.Percent != 100 {
		t.Errorf("expected final percent 100, got %v", final.Percent)
	}

	var hasVideo bool
	for _, a := range final.Artifacts {
		if a.Kind == "video" {
			hasVideo = true
		}
	}
	if !hasVideo {
		t.Errorf("expected a video artifact, got %+v", final.Artifacts)
	}

	var sawImageWarning bool
	for _, w := range final.Warnings {
		if strings.Contains(w, "image provider") {
			sawImageWarning = true
		}
	}
	if !sawImageWarning {
		t.Errorf("expected a no-image-provider warning, got %v", final.Warnings)
	}

	for i := 1; i < len(overall); i++ {
		if overall[i] < overall[i-1] {
			t.Errorf("percent_overall regressed at event %d: %v -> %v (full stream %v)", i, overall[i-1], overall[i], overall)
		}
	}
	if len(overall) == 0 {
		t.Errorf("expected at least one step-progress event")
	}
}

// TestScenarioProWithAutomaticFallback is spec §8 scenario 2: a Pro-tier
// request whose Pro LLM always fails should fall through to the RuleBased
// free provider and record the runtime fallback.
func TestScenarioProWithAutomaticFallback(t *testing.T) {
	registry := provider.NewRegistry()
	failingPro := &mockLLM{name: "MockPro", tier: model.ProviderTierPro}
	if err := registry.RegisterLLM(failingPro); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	if err := registry.RegisterLLM(rulebasedllm.New()); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	if err := registry.RegisterTTS(nulltts.New(t.TempDir())); err != nil {
		t.Fatalf("RegisterTTS: %v", err)
	}
	registry.Seal()

	bus := eventbus.New(eventbus.Config{})
	store := jobstore.New(bus)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig)
	enc := &mockEncoder{name: "MockEncoder", tier: model.ProviderTierFree}
	orch := New(store, bus, registry, breaker, enc, nil, Config{WorkDir: t.TempDir()})

	job := testJob("scenario2", model.RequestedTierPro, false)
	if err := store.Create(job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orch.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	final := waitForTerminal(t, store, job.ID, 10*time.Second)
	if final.Status != model.JobStatusDone {
		t.Fatalf("expected Done, got %s (failure: %+v)", final.Status, final.Failure)
	}
	if got := final.ProviderUsedPerStage[model.StageScript]; got != "RuleBased" {
		t.Errorf("expected Script stage to fall back to RuleBased, got %q", got)
	}

	var scriptRecord *model.SelectionRecord
	for i := range final.SelectionHistory {
		if final.SelectionHistory[i].Stage == model.StageScript {
			scriptRecord = &final.SelectionHistory[i]
		}
	}
	if scriptRecord == nil {
		t.Fatalf("expected a Script selection record, got %+v", final.SelectionHistory)
	}
	if !scriptRecord.IsFallback {
		t.Errorf("expected the Script selection record to be marked as a fallback")
	}
	if scriptRecord.FallbackFrom != model.RequestedTierPro {
		t.Errorf("expected fallback_from Pro, got %q", scriptRecord.FallbackFrom)
	}
}

// TestScenarioCancellationMidRender is spec §8 scenario 4: canceling a
// running job while it is blocked in Render should land it in Canceled
// with CanceledUTC set.
func TestScenarioCancellationMidRender(t *testing.T) {
	registry := provider.NewRegistry()
	if err := registry.RegisterLLM(rulebasedllm.New()); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	if err := registry.RegisterTTS(nulltts.New(t.TempDir())); err != nil {
		t.Fatalf("RegisterTTS: %v", err)
	}
	registry.Seal()

	bus := eventbus.New(eventbus.Config{})
	store := jobstore.New(bus)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig)
	enc := &mockEncoder{name: "MockEncoder", tier: model.ProviderTierFree, block: make(chan struct{})}
	orch := New(store, bus, registry, breaker, enc, nil, Config{WorkDir: t.TempDir()})

	job := testJob("scenario4", model.RequestedTierFree, true)
	if err := store.Create(job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orch.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := store.Get(job.ID); ok && j.Stage == model.StageRender {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := orch.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	final := waitForTerminal(t, store, job.ID, 5*time.Second)
	if final.Status != model.JobStatusCanceled {
		t.Fatalf("expected Canceled, got %s", final.Status)
	}
	if final.CanceledUTC == nil {
		t.Errorf("expected CanceledUTC to be set")
	}
}

