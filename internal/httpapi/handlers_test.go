package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aura-video/studio-engine/internal/engine/composer"
	"github.com/aura-video/studio-engine/internal/engine/eventbus"
	"github.com/aura-video/studio-engine/internal/engine/jobstore"
	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/orchestrator"
	"github.com/aura-video/studio-engine/internal/engine/provider"
	"github.com/aura-video/studio-engine/internal/engine/resilience"
	"github.com/aura-video/studio-engine/internal/engine/supervisor"
	"github.com/aura-video/studio-engine/internal/engine/validate"
	"github.com/aura-video/studio-engine/internal/providers/rulebasedllm"
)

// newTestHandler wires a full, minimal engine stack: rulebasedllm as the
// only LLM provider and the composer (using "echo" as a stand-in
// "-version"-probeable binary) as the only encoder, so C8 validation
// passes without a real ffmpeg install or network access.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	registry := provider.NewRegistry()
	if err := registry.RegisterLLM(rulebasedllm.New()); err != nil {
		t.Fatalf("RegisterLLM: %v", err)
	}
	sup := supervisor.New()
	comp := composer.New(composer.Config{BinaryPath: "echo", WorkDir: t.TempDir()}, sup)
	if err := registry.RegisterEncoder(comp); err != nil {
		t.Fatalf("RegisterEncoder: %v", err)
	}
	registry.Seal()

	bus := eventbus.New(eventbus.Config{})
	store := jobstore.New(bus)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{})
	orch := orchestrator.New(store, bus, registry, breaker, comp, nil, orchestrator.Config{WorkDir: t.TempDir()})
	validator := validate.NewValidator(registry, "echo", t.TempDir(), nil)

	profile := model.SystemProfile{LogicalCores: 4, RAMGiB: 8, Tier: model.SystemTierB}
	return NewHandler(store, bus, validator, orch, profile, true)
}

// withURLParam mutates req in place to carry a chi route param, the way
// chi's router would populate it when dispatching through a mux; handler
// tests call it directly since they bypass NewRouter.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	*req = *req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	return req
}

func validSubmitBody() submitJobRequest {
	return submitJobRequest{
		Brief:  briefDTO{Topic: "Quick Start", Audience: "Beginners", Goal: "Explain", Tone: "Friendly", Language: "English", Aspect: string(model.AspectWidescreen16x9)},
		Plan:   planDTO{TargetDurationSeconds: 10, Pacing: string(model.PacingFast), Density: string(model.DensitySparse)},
		Voice:  voiceDTO{VoiceName: "Default", Rate: 1, Pitch: 1, PauseStyle: string(model.PauseNatural)},
		Render: renderDTO{Width: 1280, Height: 720, Container: string(model.ContainerMP4), VideoCodec: string(model.CodecH264), FPS: 30, QualityLevel: 75},
		Tier:   string(model.RequestedTierFree),
	}
}

func TestSubmitJobAcceptsValidRequest(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(validSubmitBody())

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}
	var resp submitJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.JobID == "" {
		t.Errorf("expected a job id")
	}
	if resp.Status != string(model.JobStatusQueued) {
		t.Errorf("status = %s, want Queued", resp.Status)
	}
}

func TestSubmitJobRejectsOfflineProCombination(t *testing.T) {
	h := newTestHandler(t)
	reqBody := validSubmitBody()
	reqBody.OfflineOnly = true
	reqBody.Tier = string(model.RequestedTierPro)
	body, _ := json.Marshal(reqBody)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body: %s", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ErrorCode != string(model.ErrOfflineViolation) {
		t.Errorf("error_code = %s, want E307", resp.ErrorCode)
	}
}

func TestSubmitJobRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetJobReturnsNotFoundForUnknownID(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	rec := httptest.NewRecorder()
	withURLParam(req, "id", "nope")
	h.GetJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelJobReturnsNotFoundForUnknownID(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/nope/cancel", nil)
	rec := httptest.NewRecorder()
	withURLParam(req, "id", "nope")
	h.CancelJob(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobsReturnsEmptyResultInitially(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	rec := httptest.NewRecorder()
	h.ListJobs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp listJobsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 0 {
		t.Errorf("total = %d, want 0", resp.Total)
	}
}

func TestSubmitThenGetJobRoundTrips(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(validSubmitBody())

	submitReq := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	submitRec := httptest.NewRecorder()
	h.SubmitJob(submitRec, submitReq)

	var submitResp submitJobResponse
	json.Unmarshal(submitRec.Body.Bytes(), &submitResp)

	// Give the orchestrator's background goroutine a moment to move the
	// job off Queued so GetJob reflects live state rather than racing it.
	time.Sleep(20 * time.Millisecond)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+submitResp.JobID, nil)
	getRec := httptest.NewRecorder()
	withURLParam(getReq, "id", submitResp.JobID)
	h.GetJob(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", getRec.Code, getRec.Body.String())
	}
}
