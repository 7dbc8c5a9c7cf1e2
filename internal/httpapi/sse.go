package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// SubscribeEvents handles GET /v1/jobs/{id}/events, spec.md §6's
// "Subscribe to events (streaming)". Accepts an optional last_event_id
// query parameter (mirroring the SSE Last-Event-ID convention) for resume.
//
// No teacher precedent (the teacher has no streaming surface); built on
// net/http's Flusher the way any chi-based SSE handler is written, paired
// with C7's eventbus.Bus.Subscribe for backlog replay and heartbeats.
func (h *Handler) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, ok := h.store.Get(jobID); !ok {
		respondCode(w, http.StatusNotFound, model.ErrInputValidation, "job not found")
		return
	}

	lastEventID := r.URL.Query().Get("last_event_id")
	if lastEventID == "" {
		lastEventID = r.Header.Get("Last-Event-ID")
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondCode(w, http.StatusInternalServerError, model.ErrGeneric, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe(jobID, lastEventID)
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Kind == model.EventJobCompleted || ev.Kind == model.EventJobFailed || ev.Kind == model.EventJobCanceled {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev model.JobEvent) error {
	payload, err := json.Marshal(toEventDTO(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.EventID, ev.Kind, payload)
	return err
}
