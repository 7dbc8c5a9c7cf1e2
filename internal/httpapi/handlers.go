package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aura-video/studio-engine/internal/engine/eventbus"
	"github.com/aura-video/studio-engine/internal/engine/jobstore"
	"github.com/aura-video/studio-engine/internal/engine/model"
	"github.com/aura-video/studio-engine/internal/engine/orchestrator"
	"github.com/aura-video/studio-engine/internal/engine/validate"
	"github.com/aura-video/studio-engine/internal/platform/logging"
	"github.com/aura-video/studio-engine/internal/platform/metrics"
)

// Handler holds the collaborators the external surface drives: C6's job
// store for snapshots, C7's event bus for streaming, C8's validator for
// pre-flight checks, and C9's orchestrator to actually run a job.
//
// Grounded on the teacher's internal/api.Handler, generalized from a
// db/queue/storage-backed handler to one driven entirely by the
// in-process engine components.
type Handler struct {
	store        *jobstore.Store
	bus          *eventbus.Bus
	validator    *validate.Validator
	orchestrator *orchestrator.Orchestrator
	profile      model.SystemProfile
	autoFallback bool
}

// NewHandler returns a Handler wired to its collaborators.
func NewHandler(store *jobstore.Store, bus *eventbus.Bus, validator *validate.Validator, orch *orchestrator.Orchestrator, profile model.SystemProfile, autoFallback bool) *Handler {
	return &Handler{store: store, bus: bus, validator: validator, orchestrator: orch, profile: profile, autoFallback: autoFallback}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitJob handles POST /v1/jobs (spec.md §6 "Submit job").
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondCode(w, http.StatusBadRequest, model.ErrInputValidation, "invalid request body")
		return
	}

	correlationID := req.CorrelationID
	jobID := uuid.NewString()
	if correlationID == "" {
		correlationID = jobID
	}
	ctx := logging.WithCorrelationID(r.Context(), correlationID)

	result := h.validator.Validate(ctx, validate.Request{
		Brief:         model.Brief{Topic: req.Brief.Topic, Audience: req.Brief.Audience, Goal: req.Brief.Goal, Tone: req.Brief.Tone, Language: req.Brief.Language, Aspect: model.Aspect(req.Brief.Aspect)},
		Plan:          model.PlanSpec{Pacing: model.Pacing(req.Plan.Pacing), Density: model.Density(req.Plan.Density), Style: req.Plan.Style},
		Voice:         model.VoiceSpec{VoiceName: req.Voice.VoiceName, Rate: req.Voice.Rate, Pitch: req.Voice.Pitch, PauseStyle: model.PauseStyle(req.Voice.PauseStyle)},
		Render:        model.RenderSpec{Width: req.Render.Width, Height: req.Render.Height, Container: model.Container(req.Render.Container), VideoCodec: model.VideoCodec(req.Render.VideoCodec), FPS: req.Render.FPS, QualityLevel: req.Render.QualityLevel},
		OfflineOnly:   req.OfflineOnly,
		Tier:          model.RequestedTier(req.Tier),
		CorrelationID: correlationID,
	})
	if !result.IsValid {
		issue, _ := result.MostSevere()
		logging.FromContext(ctx).Warn().Str("error_code", string(issue.Code)).Msg("job submission rejected")
		respondCode(w, statusForCode(issue.Code), issue.Code, issue.Message)
		return
	}

	job := req.toJob(jobID, correlationID, h.profile, h.autoFallback)
	if err := h.store.Create(job); err != nil {
		respondCode(w, http.StatusInternalServerError, model.ErrGeneric, err.Error())
		return
	}
	if err := h.orchestrator.Submit(ctx, job); err != nil {
		respondCode(w, http.StatusServiceUnavailable, model.ErrGeneric, "engine is shutting down")
		return
	}

	metrics.JobsTotal.WithLabelValues("Queued").Inc()
	respondJSON(w, http.StatusAccepted, submitJobResponse{
		JobID: job.ID, CorrelationID: job.CorrelationID, Status: string(job.Status), Percent: job.Percent,
	})
}

// GetJob handles GET /v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := h.store.Get(id)
	if !ok {
		respondCode(w, http.StatusNotFound, model.ErrInputValidation, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /v1/jobs, paginated per spec.md §6.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobstore.ListFilter{Limit: 20}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		st := model.JobStatus(status)
		filter.Status = &st
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}

	jobs, total := h.store.List(filter)
	resp := listJobsResponse{Total: total}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	respondJSON(w, http.StatusOK, resp)
}

// CancelJob handles POST /v1/jobs/{id}/cancel. Idempotent: canceling a job
// already in a terminal state just returns its current snapshot.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Get(id); !ok {
		respondCode(w, http.StatusNotFound, model.ErrInputValidation, "job not found")
		return
	}
	if err := h.orchestrator.Cancel(id); err != nil {
		job, ok := h.store.Get(id)
		if ok && job.Status.IsTerminal() {
			respondJSON(w, http.StatusOK, toJobResponse(job))
			return
		}
		respondCode(w, http.StatusInternalServerError, model.ErrGeneric, err.Error())
		return
	}
	job, _ := h.store.Get(id)
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func statusForCode(code model.ErrorCode) int {
	switch code {
	case model.ErrInputValidation:
		return http.StatusBadRequest
	case model.ErrOfflineViolation:
		return http.StatusUnprocessableEntity
	case model.ErrNoProviderAvailable:
		return http.StatusServiceUnavailable
	case model.ErrAuthFailure:
		return http.StatusUnauthorized
	case model.ErrRateLimit:
		return http.StatusTooManyRequests
	case model.ErrInsufficientResources:
		return http.StatusInsufficientStorage
	default:
		return http.StatusBadRequest
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondCode(w http.ResponseWriter, status int, code model.ErrorCode, message string) {
	respondJSON(w, status, errorResponse{ErrorCode: string(code), Message: message})
}
