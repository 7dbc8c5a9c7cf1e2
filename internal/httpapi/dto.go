// Package httpapi is the external HTTP/SSE surface over the job
// execution engine (spec.md §6), wired to C6 (job store), C7 (event
// bus), C8 (pre-generation validator), and C9 (orchestrator).
//
// Grounded on the teacher's internal/api package: a thin Handler struct
// holding its collaborators, chi route registration in NewRouter, and
// the same respondJSON/respondError envelope and API-key middleware.
package httpapi

import (
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// submitJobRequest mirrors spec.md §6's "Submit job" input exactly.
type submitJobRequest struct {
	Brief         briefDTO  `json:"brief"`
	Plan          planDTO   `json:"plan"`
	Voice         voiceDTO  `json:"voice"`
	Render        renderDTO `json:"render"`
	OfflineOnly   bool      `json:"offline_only"`
	Tier          string    `json:"tier"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type briefDTO struct {
	Topic    string `json:"topic"`
	Audience string `json:"audience"`
	Goal     string `json:"goal"`
	Tone     string `json:"tone"`
	Language string `json:"language"`
	Aspect   string `json:"aspect"`
}

type planDTO struct {
	TargetDurationSeconds float64 `json:"target_duration_seconds"`
	Pacing                string  `json:"pacing"`
	Density               string  `json:"density"`
	Style                 string  `json:"style"`
}

type voiceDTO struct {
	VoiceName  string  `json:"voice_name"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
	PauseStyle string  `json:"pause_style"`
}

type renderDTO struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Container      string `json:"container"`
	VideoCodec     string `json:"video_codec"`
	FPS            int    `json:"fps"`
	VideoKbps      int    `json:"video_kbps"`
	AudioKbps      int    `json:"audio_kbps"`
	QualityLevel   int    `json:"quality_level"`
	EnableSceneCut bool   `json:"enable_scene_cut"`
}

// toJob builds the engine's model.Job from the wire request. id and
// correlationID are assigned by the handler (correlationID defaults to id
// when the caller didn't supply one); profile and autoFallback come from
// process configuration, not the request body.
func (r submitJobRequest) toJob(id, correlationID string, profile model.SystemProfile, autoFallback bool) *model.Job {
	return &model.Job{
		ID:            id,
		CorrelationID: correlationID,
		Brief: model.Brief{
			Topic:    r.Brief.Topic,
			Audience: r.Brief.Audience,
			Goal:     r.Brief.Goal,
			Tone:     r.Brief.Tone,
			Language: r.Brief.Language,
			Aspect:   model.Aspect(r.Brief.Aspect),
		},
		Plan: model.PlanSpec{
			TargetDuration: time.Duration(r.Plan.TargetDurationSeconds * float64(time.Second)),
			Pacing:         model.Pacing(r.Plan.Pacing),
			Density:        model.Density(r.Plan.Density),
			Style:          r.Plan.Style,
		},
		Voice: model.VoiceSpec{
			VoiceName:  r.Voice.VoiceName,
			Rate:       r.Voice.Rate,
			Pitch:      r.Voice.Pitch,
			PauseStyle: model.PauseStyle(r.Voice.PauseStyle),
		},
		Render: model.RenderSpec{
			Width:          r.Render.Width,
			Height:         r.Render.Height,
			Container:      model.Container(r.Render.Container),
			VideoCodec:     model.VideoCodec(r.Render.VideoCodec),
			FPS:            r.Render.FPS,
			VideoKbps:      r.Render.VideoKbps,
			AudioKbps:      r.Render.AudioKbps,
			QualityLevel:   r.Render.QualityLevel,
			EnableSceneCut: r.Render.EnableSceneCut,
		},
		SystemProfile: profile,
		OfflineOnly:   r.OfflineOnly,
		Tier:          model.RequestedTier(r.Tier),
		AutoFallback:  autoFallback,
		Status:        model.JobStatusQueued,
		Stage:         model.StageInitialization,
		CreatedUTC:    time.Now().UTC(),
	}
}

type submitJobResponse struct {
	JobID         string  `json:"job_id"`
	CorrelationID string  `json:"correlation_id"`
	Status        string  `json:"status"`
	Percent       float64 `json:"percent"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type jobResponse struct {
	JobID                string            `json:"job_id"`
	CorrelationID        string            `json:"correlation_id"`
	Status               string            `json:"status"`
	Stage                string            `json:"stage"`
	Percent              float64           `json:"percent"`
	ProviderUsedPerStage map[string]string `json:"provider_used_per_stage,omitempty"`
	Warnings             []string          `json:"warnings,omitempty"`
	Artifacts            []artifactDTO     `json:"artifacts,omitempty"`
	Failure              *failureDTO       `json:"failure,omitempty"`
	CreatedUTC           time.Time         `json:"created_utc"`
	StartedUTC           *time.Time        `json:"started_utc,omitempty"`
	EndedUTC             *time.Time        `json:"ended_utc,omitempty"`
}

type artifactDTO struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"`
}

type failureDTO struct {
	Stage            string   `json:"stage"`
	ErrorCode        string   `json:"error_code"`
	Message          string   `json:"message"`
	StderrSnippet    string   `json:"stderr_snippet,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

func toJobResponse(j *model.Job) jobResponse {
	providerUsed := make(map[string]string, len(j.ProviderUsedPerStage))
	for stage, name := range j.ProviderUsedPerStage {
		providerUsed[string(stage)] = name
	}
	resp := jobResponse{
		JobID:                j.ID,
		CorrelationID:        j.CorrelationID,
		Status:               string(j.Status),
		Stage:                string(j.Stage),
		Percent:              j.Percent,
		ProviderUsedPerStage: providerUsed,
		Warnings:             j.Warnings,
		CreatedUTC:           j.CreatedUTC,
		StartedUTC:           j.StartedUTC,
		EndedUTC:             j.EndedUTC,
	}
	for _, a := range j.Artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactDTO{Path: a.Path, SizeBytes: a.SizeBytes, Kind: a.Kind})
	}
	if j.Failure != nil {
		resp.Failure = &failureDTO{
			Stage:            string(j.Failure.Stage),
			ErrorCode:        string(j.Failure.ErrorCode),
			Message:          j.Failure.Message,
			StderrSnippet:    j.Failure.StderrSnippet,
			SuggestedActions: j.Failure.SuggestedActions,
		}
	}
	return resp
}

type listJobsResponse struct {
	Jobs  []jobResponse `json:"jobs"`
	Total int           `json:"total"`
}

type eventDTO struct {
	EventID        string   `json:"event_id"`
	JobID          string   `json:"job_id"`
	Kind           string   `json:"kind"`
	Stage          string   `json:"stage"`
	PercentStage   float64  `json:"percent_stage"`
	PercentOverall float64  `json:"percent_overall"`
	Message        string   `json:"message"`
	CorrelationID  string   `json:"correlation_id"`
	Warnings       []string `json:"warnings,omitempty"`
	SubstageDetail string   `json:"substage_detail,omitempty"`
	CurrentItem    int      `json:"current_item,omitempty"`
	TotalItems     int      `json:"total_items,omitempty"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
}

func toEventDTO(ev model.JobEvent) eventDTO {
	return eventDTO{
		EventID:        ev.EventID,
		JobID:          ev.JobID,
		Kind:           string(ev.Kind),
		Stage:          string(ev.Stage),
		PercentStage:   ev.PercentStage,
		PercentOverall: ev.PercentOverall,
		Message:        ev.Message,
		CorrelationID:  ev.CorrelationID,
		Warnings:       ev.Warnings,
		SubstageDetail: ev.SubstageDetail,
		CurrentItem:    ev.CurrentItem,
		TotalItems:     ev.TotalItems,
		TimestampUTC:   ev.TimestampUTC,
	}
}
